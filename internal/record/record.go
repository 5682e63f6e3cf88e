// Package record stores published telemetry samples and replays them.
package record

import (
	"encoding/json"
	"time"
)

// Sample is one successfully published telemetry message.
type Sample struct {
	ProfileID string          `json:"profile_id"`
	NodeID    string          `json:"node_id"`
	Topic     string          `json:"topic"`
	Value     any             `json:"value"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"ts"`
}

// Recorder is implemented by every sample sink.
type Recorder interface {
	Record(Sample) error
}

// Optional: recorders holding resources can be closed.
type closer interface {
	Close() error
}

// Close closes r if it holds resources.
func Close(r Recorder) error {
	if c, ok := r.(closer); ok {
		return c.Close()
	}
	return nil
}
