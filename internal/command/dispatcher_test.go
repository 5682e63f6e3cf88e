package command

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"fleetsim/internal/logging"
	"fleetsim/internal/profile"
	"fleetsim/internal/store"
	"fleetsim/internal/topics"
)

type call struct {
	action string
	id     string
}

type fakeManager struct {
	mu    sync.Mutex
	calls []call
	err   error
	panic bool
}

func (f *fakeManager) record(action, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panic {
		panic("engine exploded")
	}
	f.calls = append(f.calls, call{action, id})
	return f.err
}

func (f *fakeManager) StartSimulation(ctx context.Context, p *profile.Profile, s *profile.Schema, b *profile.Broker) error {
	return f.record("start", p.ID)
}
func (f *fakeManager) StopSimulation(ctx context.Context, id string) error {
	return f.record("stop", id)
}
func (f *fakeManager) PauseSimulation(ctx context.Context, id string) error {
	return f.record("pause", id)
}
func (f *fakeManager) ResumeSimulation(ctx context.Context, id string) error {
	return f.record("resume", id)
}

type response struct {
	corr string
	err  error
}

type fakeResponder struct {
	responses []response
}

func (f *fakeResponder) PublishCommandResponse(corr string, err error) {
	f.responses = append(f.responses, response{corr, err})
}

func newDispatcher(mgr *fakeManager) (*Dispatcher, *fakeResponder) {
	doc := store.Document{
		Brokers:  []profile.Broker{{ID: "b1", Host: "localhost", Port: 1883}},
		Schemas:  []profile.Schema{{ID: "s1"}},
		Profiles: []profile.Profile{{ID: "p1", SchemaID: "s1", BrokerID: "b1"}, {ID: "p2", SchemaID: "missing", BrokerID: "b1"}},
	}
	resp := &fakeResponder{}
	return New(topics.New("fleetsim"), mgr, store.NewMemoryStore(doc), resp, logging.Nop()), resp
}

func TestDispatchActions(t *testing.T) {
	mgr := &fakeManager{}
	d, resp := newDispatcher(mgr)
	ctx := context.Background()
	for _, action := range []string{"start", "pause", "resume", "stop"} {
		d.Handle(ctx, "fleetsim/cmd/simulation/"+action, []byte(`{"profileId":"p1","correlationId":"c-`+action+`"}`))
	}
	if len(mgr.calls) != 4 || mgr.calls[0] != (call{"start", "p1"}) || mgr.calls[3] != (call{"stop", "p1"}) {
		t.Fatalf("calls = %+v", mgr.calls)
	}
	if len(resp.responses) != 4 {
		t.Fatalf("expected one response per command, got %d", len(resp.responses))
	}
	for _, r := range resp.responses {
		if r.err != nil {
			t.Fatalf("unexpected failure for %s: %v", r.corr, r.err)
		}
	}
}

func TestIgnoresUIOrigin(t *testing.T) {
	mgr := &fakeManager{}
	d, resp := newDispatcher(mgr)
	d.Handle(context.Background(), "fleetsim/cmd/simulation/stop", []byte(`{"profileId":"p1","correlationId":"c1","origin":"ui"}`))
	if len(mgr.calls) != 0 || len(resp.responses) != 0 {
		t.Fatalf("ui commands must be ignored")
	}
}

func TestMalformedPayloadIsDropped(t *testing.T) {
	mgr := &fakeManager{}
	d, resp := newDispatcher(mgr)
	d.Handle(context.Background(), "fleetsim/cmd/simulation/stop", []byte(`{not json`))
	if len(mgr.calls) != 0 || len(resp.responses) != 0 {
		t.Fatalf("malformed commands must be dropped silently")
	}
}

func TestFailureResponses(t *testing.T) {
	cases := []struct {
		name    string
		topic   string
		payload string
		want    string
	}{
		{"missing profile id", "fleetsim/cmd/simulation/stop", `{"correlationId":"c"}`, "profileId is required"},
		{"unknown action", "fleetsim/cmd/simulation/explode", `{"profileId":"p1","correlationId":"c"}`, "unknown command"},
		{"unknown profile", "fleetsim/cmd/simulation/start", `{"profileId":"nope","correlationId":"c"}`, "profile nope not found"},
		{"missing schema", "fleetsim/cmd/simulation/start", `{"profileId":"p2","correlationId":"c"}`, "schema missing of profile p2 not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mgr := &fakeManager{}
			d, resp := newDispatcher(mgr)
			d.Handle(context.Background(), tc.topic, []byte(tc.payload))
			if len(resp.responses) != 1 {
				t.Fatalf("expected exactly one response, got %d", len(resp.responses))
			}
			if err := resp.responses[0].err; err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestManagerErrorsAndPanicsAnswerOnce(t *testing.T) {
	mgr := &fakeManager{err: errors.New("simulation p1 is not running")}
	d, resp := newDispatcher(mgr)
	d.Handle(context.Background(), "fleetsim/cmd/simulation/pause", []byte(`{"profileId":"p1","correlationId":"c1"}`))
	if len(resp.responses) != 1 || resp.responses[0].err.Error() != "simulation p1 is not running" {
		t.Fatalf("responses = %+v", resp.responses)
	}

	mgr.err = nil
	mgr.panic = true
	d.Handle(context.Background(), "fleetsim/cmd/simulation/stop", []byte(`{"profileId":"p1","correlationId":"c2"}`))
	if len(resp.responses) != 2 || !strings.Contains(resp.responses[1].err.Error(), "panicked") {
		t.Fatalf("panic should become one failure response: %+v", resp.responses)
	}
}

func TestNoResponseWithoutCorrelation(t *testing.T) {
	mgr := &fakeManager{err: errors.New("boom")}
	d, resp := newDispatcher(mgr)
	d.Handle(context.Background(), "fleetsim/cmd/simulation/stop", []byte(`{"profileId":"p1"}`))
	if len(mgr.calls) != 1 || len(resp.responses) != 0 {
		t.Fatalf("calls=%d responses=%d", len(mgr.calls), len(resp.responses))
	}
}
