package profile

import "time"

// State is the lifecycle state of a simulation engine.
type State string

// Engine states.
const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateError    State = "error"
)

// Status is the persisted status sub-document of a profile.
type Status struct {
	State             State     `yaml:"state" json:"state"`
	IsRunning         bool      `yaml:"isRunning" json:"isRunning"`
	IsPaused          bool      `yaml:"isPaused" json:"isPaused"`
	IsConnected       bool      `yaml:"isConnected" json:"isConnected"`
	StartTime         time.Time `yaml:"startTime,omitempty" json:"startTime,omitempty"`
	LastActivity      time.Time `yaml:"lastActivity,omitempty" json:"lastActivity,omitempty"`
	NodeCount         int       `yaml:"nodeCount" json:"nodeCount"`
	ReconnectAttempts int       `yaml:"reconnectAttempts" json:"reconnectAttempts"`
	Error             string    `yaml:"error,omitempty" json:"error,omitempty"`
	UpdatedAt         time.Time `yaml:"updatedAt" json:"updatedAt"`
}

// StatusPatch holds the status fields changed by one transition. Nil fields are untouched.
type StatusPatch struct {
	State             *State     `json:"state,omitempty"`
	IsRunning         *bool      `json:"isRunning,omitempty"`
	IsPaused          *bool      `json:"isPaused,omitempty"`
	IsConnected       *bool      `json:"isConnected,omitempty"`
	StartTime         *time.Time `json:"startTime,omitempty"`
	NodeCount         *int       `json:"nodeCount,omitempty"`
	ReconnectAttempts *int       `json:"reconnectAttempts,omitempty"`
	Error             *string    `json:"error,omitempty"`
}

// Apply merges the patch into s and stamps UpdatedAt.
func (p StatusPatch) Apply(s *Status, now time.Time) {
	if p.State != nil {
		s.State = *p.State
	}
	if p.IsRunning != nil {
		s.IsRunning = *p.IsRunning
	}
	if p.IsPaused != nil {
		s.IsPaused = *p.IsPaused
	}
	if p.IsConnected != nil {
		s.IsConnected = *p.IsConnected
	}
	if p.StartTime != nil {
		s.StartTime = *p.StartTime
	}
	if p.NodeCount != nil {
		s.NodeCount = *p.NodeCount
	}
	if p.ReconnectAttempts != nil {
		s.ReconnectAttempts = *p.ReconnectAttempts
	}
	if p.Error != nil {
		s.Error = *p.Error
	}
	s.UpdatedAt = now
}

// StoppedPatch is the patch written when a simulation is stopped.
func StoppedPatch() StatusPatch {
	return StatusPatch{
		State:       Ptr(StateStopped),
		IsRunning:   Ptr(false),
		IsPaused:    Ptr(false),
		IsConnected: Ptr(false),
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
