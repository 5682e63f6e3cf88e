// Package monitor renders control-plane status and events in the terminal.
package monitor

import (
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fleetsim/internal/backbone"
	"fleetsim/internal/topics"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

type serverMsg struct{ backbone.ServerStatus }

type statusMsg struct{ backbone.SimulationStatus }

type clearMsg struct{ id string }

// logMsg carries an event line for the viewport.
type logMsg struct{ line string }

// Monitor feeds control-plane messages into a bubbletea program.
type Monitor struct {
	program teaProgram
	topics  topics.Namespace
	run     func() error
}

// New creates a Monitor for the namespace ns.
func New(ns topics.Namespace) *Monitor {
	p := tea.NewProgram(newModel(ns.Prefix()), tea.WithAltScreen())
	return &Monitor{
		program: p,
		topics:  ns,
		run: func() error {
			_, err := p.Run()
			return err
		},
	}
}

// Run blocks until the user quits.
func (m *Monitor) Run() error { return m.run() }

// Handle converts one control-plane message into a UI update.
func (m *Monitor) Handle(topic string, payload []byte) {
	switch {
	case topic == m.topics.ServerStatus():
		var st backbone.ServerStatus
		if err := json.Unmarshal(payload, &st); err == nil {
			m.program.Send(serverMsg{st})
		}
	case topic == m.topics.SimulationIndex():
	case topic == m.topics.SystemEvents() || topic == m.topics.SimulationEvents():
		var ev backbone.EventMessage
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		m.program.Send(logMsg{line: formatEvent(ev)})
	default:
		id, ok := m.topics.ProfileFromStatus(topic)
		if !ok {
			return
		}
		if len(payload) == 0 {
			m.program.Send(clearMsg{id: id})
			return
		}
		var st backbone.SimulationStatus
		if err := json.Unmarshal(payload, &st); err == nil {
			m.program.Send(statusMsg{st})
		}
	}
}

func formatEvent(ev backbone.EventMessage) string {
	ts := time.UnixMilli(ev.Timestamp).Format("15:04:05")
	line := fmt.Sprintf("%s %-13s", ts, ev.Type)
	if ev.ProfileID != "" {
		line += " " + ev.ProfileID
	}
	if ev.NodeID != "" {
		line += "/" + ev.NodeID
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	return line
}
