package backbone

import "fleetsim/internal/engine"

// Origins tag where a command was issued.
const (
	OriginUI  = "ui"
	OriginCLI = "cli"
)

// Command is published on P/cmd/simulation/<action>.
type Command struct {
	ProfileID     string `json:"profileId"`
	CorrelationID string `json:"correlationId,omitempty"`
	Origin        string `json:"origin,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// CommandResponse answers a correlated command.
type CommandResponse struct {
	CorrelationID string  `json:"correlationId"`
	Success       bool    `json:"success"`
	Error         *string `json:"error"`
	Timestamp     int64   `json:"timestamp"`
}

// ServerStatus is the retained heartbeat.
type ServerStatus struct {
	Status            string `json:"status"`
	UptimeSeconds     int64  `json:"uptimeSeconds"`
	StoreConnected    bool   `json:"storeConnected"`
	ActiveSimulations int    `json:"activeSimulations"`
	Timestamp         int64  `json:"timestamp"`
}

// SimulationStatus is the retained per-profile status.
type SimulationStatus struct {
	engine.Snapshot
	Timestamp int64 `json:"timestamp"`
}

// ActiveIndex lists running profile ids.
type ActiveIndex struct {
	ProfileIDs []string `json:"profileIds"`
	Timestamp  int64    `json:"timestamp"`
}

// EventMessage is published on the system and simulation event topics.
type EventMessage struct {
	Type      string `json:"type"`
	ProfileID string `json:"profileId,omitempty"`
	NodeID    string `json:"nodeId,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// LogMessage is published on P/logs/simulations/<id>.
type LogMessage struct {
	ProfileID string `json:"profileId"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
