package topics

import "testing"

func TestNamespaceTopics(t *testing.T) {
	ns := New("/plant/")
	cases := map[string]string{
		ns.ServerStatus():         "plant/status/server",
		ns.SimulationStatus("p1"): "plant/status/simulations/p1",
		ns.SimulationIndex():      "plant/status/simulations/_index",
		ns.SystemEvents():         "plant/events/system",
		ns.SimulationEvents():     "plant/events/simulation",
		ns.SimulationLogs("p1"):   "plant/logs/simulations/p1",
		ns.Command(ActionStart):   "plant/cmd/simulation/start",
		ns.CommandWildcard():      "plant/cmd/#",
		ns.CommandResponse("c-1"): "plant/cmd-response/c-1",
		ns.StatusWildcard():       "plant/status/#",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("topic = %q, want %q", got, want)
		}
	}
}

func TestDefaultPrefix(t *testing.T) {
	if got := New("").ServerStatus(); got != "fleetsim/status/server" {
		t.Fatalf("ServerStatus = %q", got)
	}
}

func TestParseCommand(t *testing.T) {
	ns := New("fleetsim")
	tests := []struct {
		topic  string
		action string
		ok     bool
	}{
		{"fleetsim/cmd/simulation/start", "start", true},
		{"fleetsim/cmd/simulation/resume", "resume", true},
		{"fleetsim/cmd/simulation/", "", false},
		{"fleetsim/cmd/other/start", "", false},
		{"other/cmd/simulation/start", "", false},
		{"fleetsim/cmd/simulation/start/extra", "", false},
	}
	for _, tt := range tests {
		action, ok := ns.ParseCommand(tt.topic)
		if action != tt.action || ok != tt.ok {
			t.Errorf("ParseCommand(%q) = %q,%v want %q,%v", tt.topic, action, ok, tt.action, tt.ok)
		}
	}
}

func TestProfileFromStatus(t *testing.T) {
	ns := New("fleetsim")
	if id, ok := ns.ProfileFromStatus("fleetsim/status/simulations/p9"); !ok || id != "p9" {
		t.Fatalf("got %q,%v", id, ok)
	}
	if _, ok := ns.ProfileFromStatus("fleetsim/status/simulations/_index"); ok {
		t.Fatalf("index topic must not parse as a profile")
	}
}
