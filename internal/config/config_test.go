package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetsim.yaml")
	yaml := `
topicPrefix: plant
backbone:
  host: mqtt.internal
  heartbeatInterval: 5s
engine:
  maxReconnectAttempts: 3
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.TopicPrefix != "plant" || cfg.Backbone.Host != "mqtt.internal" {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.Backbone.Port != 1883 {
		t.Errorf("port default = %d", cfg.Backbone.Port)
	}
	if cfg.Backbone.HeartbeatInterval != 5*time.Second {
		t.Errorf("heartbeat = %v", cfg.Backbone.HeartbeatInterval)
	}
	if cfg.Engine.MaxReconnectAttempts != 3 || cfg.Engine.ReconnectDelay != 2*time.Second {
		t.Errorf("engine config = %+v", cfg.Engine)
	}
	if cfg.Store.Driver != DriverFile {
		t.Errorf("store driver = %q", cfg.Store.Driver)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("FLEETSIM_LOCALHOST_HOST", "host.docker.internal")
	t.Setenv("FLEETSIM_LOCALHOST_PORT", "1884")
	t.Setenv("GREPTIMEDB_ENDPOINT", "greptime:4001")
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Engine.LocalhostOverride.Host != "host.docker.internal" || cfg.Engine.LocalhostOverride.Port != 1884 {
		t.Errorf("override = %+v", cfg.Engine.LocalhostOverride)
	}
	if cfg.Recorder.GreptimeEndpoint != "greptime:4001" {
		t.Errorf("greptime endpoint = %q", cfg.Recorder.GreptimeEndpoint)
	}
}

func TestApplyEnvInvalidPort(t *testing.T) {
	t.Setenv("FLEETSIM_BACKBONE_PORT", "nope")
	if _, err := Parse([]byte("{}")); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}

const validProfiles = `
brokers:
  - id: b1
    host: localhost
    port: 1883
schemas:
  - id: s1
    nodes:
      - id: line
        path: plant/line1
        kind: group
      - id: temp
        path: plant/line1/temp
        kind: metric
        dataType: float
profiles:
  - id: p1
    name: Line 1
    schemaId: s1
    brokerId: b1
    global:
      defaultFrequencyMs: 1000
      timeScale: 2
    nodes:
      temp:
        failRate: 0.1
        payload:
          valueMode: increment
          step: 5
`

func TestValidateProfiles_Valid(t *testing.T) {
	if err := ValidateWithCue("profiles.yaml", []byte(validProfiles), profilesSchema); err != nil {
		t.Fatalf("expected valid profiles, got %v", err)
	}
}

func TestValidateProfiles_DataTypes(t *testing.T) {
	for _, dt := range []string{"long", "int32", "int64", "uint16", "uint64", "text", "double", "bool"} {
		doc := strings.Replace(validProfiles, "dataType: float", "dataType: "+dt, 1)
		if err := ValidateWithCue("profiles.yaml", []byte(doc), profilesSchema); err != nil {
			t.Fatalf("dataType %s should validate, got %v", dt, err)
		}
	}
	doc := strings.Replace(validProfiles, "dataType: float", "dataType: decimal", 1)
	if err := ValidateWithCue("profiles.yaml", []byte(doc), profilesSchema); err == nil {
		t.Fatalf("expected validation error for unknown dataType")
	}
}

func TestValidateProfiles_Invalid(t *testing.T) {
	bad := strings.Replace(validProfiles, "port: 1883", "port: 0", 1)
	if err := ValidateWithCue("profiles.yaml", []byte(bad), profilesSchema); err == nil {
		t.Fatalf("expected validation error for port 0")
	}
	bad = strings.Replace(validProfiles, "kind: metric", "kind: sensor", 1)
	if err := ValidateWithCue("profiles.yaml", []byte(bad), profilesSchema); err == nil {
		t.Fatalf("expected validation error for unknown kind")
	}
}
