package profile

import (
	"testing"
	"time"
)

func TestStatusPatchApply(t *testing.T) {
	s := Status{State: StateRunning, IsRunning: true, IsConnected: true, NodeCount: 4}
	now := time.Unix(100, 0)
	StoppedPatch().Apply(&s, now)
	if s.State != StateStopped || s.IsRunning || s.IsPaused || s.IsConnected {
		t.Fatalf("unexpected status after stop patch: %+v", s)
	}
	if s.NodeCount != 4 {
		t.Fatalf("node count should be untouched, got %d", s.NodeCount)
	}
	if !s.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", s.UpdatedAt, now)
	}
}

func TestEffectiveTimeScale(t *testing.T) {
	p := &Profile{}
	if p.EffectiveTimeScale() != 1 {
		t.Fatalf("zero time scale should default to 1")
	}
	p.Global.TimeScale = 2
	if p.EffectiveTimeScale() != 2 {
		t.Fatalf("time scale = %v", p.EffectiveTimeScale())
	}
	if p.DefaultFrequency() != time.Second {
		t.Fatalf("default frequency = %v", p.DefaultFrequency())
	}
}
