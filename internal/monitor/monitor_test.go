package monitor

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fleetsim/internal/backbone"
	"fleetsim/internal/engine"
	"fleetsim/internal/topics"
)

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

func TestHandleRoutesTopics(t *testing.T) {
	p := &fakeProgram{}
	m := &Monitor{program: p, topics: topics.New("fleetsim")}

	m.Handle("fleetsim/status/server", []byte(`{"status":"online","uptimeSeconds":5}`))
	m.Handle("fleetsim/status/simulations/p1", []byte(`{"profileId":"p1","state":"running","nodeCount":3,"timestamp":1}`))
	m.Handle("fleetsim/status/simulations/p1", nil)
	m.Handle("fleetsim/status/simulations/_index", []byte(`{"profileIds":[]}`))
	m.Handle("fleetsim/events/simulation", []byte(`{"type":"started","profileId":"p1","timestamp":0}`))
	m.Handle("fleetsim/events/simulation", []byte(`garbage`))

	if len(p.msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d: %#v", len(p.msgs), p.msgs)
	}
	if _, ok := p.msgs[0].(serverMsg); !ok {
		t.Fatalf("expected serverMsg, got %T", p.msgs[0])
	}
	if st, ok := p.msgs[1].(statusMsg); !ok || st.NodeCount != 3 {
		t.Fatalf("expected statusMsg, got %#v", p.msgs[1])
	}
	if c, ok := p.msgs[2].(clearMsg); !ok || c.id != "p1" {
		t.Fatalf("expected clearMsg, got %#v", p.msgs[2])
	}
	if l, ok := p.msgs[3].(logMsg); !ok || !strings.Contains(l.line, "started") {
		t.Fatalf("expected logMsg, got %#v", p.msgs[3])
	}
}

func TestModelUpdatesTableFromStatus(t *testing.T) {
	m := newModel("fleetsim")
	mi, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m = mi.(model)
	st := backbone.SimulationStatus{
		Snapshot:  engine.Snapshot{ProfileID: "p1", State: "running", NodeCount: 4, MessagesPublished: 12},
		Timestamp: time.Now().UnixMilli(),
	}
	mi, _ = m.Update(statusMsg{st})
	m = mi.(model)
	rows := m.table.Rows()
	if len(rows) != 1 || rows[0][0] != "p1" || rows[0][2] != "4" || rows[0][3] != "12" {
		t.Fatalf("unexpected rows %v", rows)
	}
	mi, _ = m.Update(clearMsg{id: "p1"})
	m = mi.(model)
	if len(m.table.Rows()) != 0 {
		t.Fatalf("clear should remove the row")
	}
}

func TestWrapToggle(t *testing.T) {
	m := newModel("fleetsim")
	mi, _ := m.Update(tea.WindowSizeMsg{Width: 20, Height: 30})
	m = mi.(model)
	mi, _ = m.Update(logMsg{line: "one two three four five six"})
	m = mi.(model)
	if m.vp.TotalLineCount() < 2 {
		t.Fatalf("long line should wrap at width 20")
	}
	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("w")})
	m = mi.(model)
	if m.wrap || m.vp.TotalLineCount() != 1 {
		t.Fatalf("w should disable wrapping")
	}
}
