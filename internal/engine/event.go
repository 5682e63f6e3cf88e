package engine

import (
	"time"

	"fleetsim/internal/profile"
)

// EventType names an engine notification.
type EventType string

// Engine events. Each lifecycle event fires once per transition.
const (
	EventStarted      EventType = "started"
	EventStopped      EventType = "stopped"
	EventPaused       EventType = "paused"
	EventResumed      EventType = "resumed"
	EventStatusUpdate EventType = "status-update"
	EventStartError   EventType = "start-error"
	EventLog          EventType = "log"
	EventNodeFailure  EventType = "node-failure"
	EventPublishError EventType = "publish-error"
)

// Snapshot is a point-in-time view of an engine.
type Snapshot struct {
	ProfileID         string        `json:"profileId"`
	ProfileName       string        `json:"profileName"`
	State             profile.State `json:"state"`
	IsRunning         bool          `json:"isRunning"`
	IsPaused          bool          `json:"isPaused"`
	IsConnected       bool          `json:"isConnected"`
	StartTime         time.Time     `json:"startTime"`
	LastActivity      time.Time     `json:"lastActivity"`
	NodeCount         int           `json:"nodeCount"`
	ReconnectAttempts int           `json:"reconnectAttempts"`
	MessagesPublished int64         `json:"messagesPublished"`
	PublishErrors     int64         `json:"publishErrors"`
}

// Event is delivered to listeners outside the engine lock.
type Event struct {
	Type      EventType
	ProfileID string
	Time      time.Time
	Level     string
	Message   string
	NodeID    string
	Status    Snapshot
}

// Listener receives engine events synchronously.
type Listener func(Event)
