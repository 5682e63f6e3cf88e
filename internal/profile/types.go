// Simulation profile, schema and broker definitions
package profile

import "time"

// Node kinds.
const (
	KindGroup  = "group"
	KindMetric = "metric"
)

// Value generation modes.
const (
	ValueStatic    = "static"
	ValueIncrement = "increment"
	ValueRandom    = "random"
)

// Timestamp modes.
const (
	TimestampAuto  = "auto"
	TimestampFixed = "fixed"
)

// DefaultQuality is the quality attached to payloads when none is configured.
const DefaultQuality = "good"

// DefaultFrequencyMs is used when a profile has no usable default frequency.
const DefaultFrequencyMs = 1000

// Broker describes a target MQTT broker.
type Broker struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name,omitempty" json:"name,omitempty"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	TLS      bool   `yaml:"tls,omitempty" json:"tls,omitempty"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Node is one entry of a schema. Only metric nodes are simulated.
type Node struct {
	ID       string `yaml:"id" json:"id"`
	Path     string `yaml:"path" json:"path"`
	Kind     string `yaml:"kind" json:"kind"`
	DataType string `yaml:"dataType,omitempty" json:"dataType,omitempty"`
}

// Schema is the data model a profile simulates.
type Schema struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
	Nodes []Node `yaml:"nodes" json:"nodes"`
}

// PayloadConfig controls how a node's payload is built. Nil numeric fields are unset.
type PayloadConfig struct {
	Quality        string            `yaml:"quality,omitempty" json:"quality,omitempty"`
	TimestampMode  string            `yaml:"timestampMode,omitempty" json:"timestampMode,omitempty"`
	FixedTimestamp *int64            `yaml:"fixedTimestamp,omitempty" json:"fixedTimestamp,omitempty"`
	ValueMode      string            `yaml:"valueMode,omitempty" json:"valueMode,omitempty"`
	StaticValue    any               `yaml:"staticValue,omitempty" json:"staticValue,omitempty"`
	Min            *float64          `yaml:"min,omitempty" json:"min,omitempty"`
	Max            *float64          `yaml:"max,omitempty" json:"max,omitempty"`
	Step           *float64          `yaml:"step,omitempty" json:"step,omitempty"`
	StartValue     *float64          `yaml:"startValue,omitempty" json:"startValue,omitempty"`
	Precision      *int              `yaml:"precision,omitempty" json:"precision,omitempty"`
	CustomFields   map[string]string `yaml:"customFields,omitempty" json:"customFields,omitempty"`
}

// GlobalSettings apply to every node of a profile unless overridden.
type GlobalSettings struct {
	DefaultFrequencyMs int64         `yaml:"defaultFrequencyMs" json:"defaultFrequencyMs"`
	TimeScale          float64       `yaml:"timeScale,omitempty" json:"timeScale,omitempty"`
	PublishRoot        string        `yaml:"publishRoot,omitempty" json:"publishRoot,omitempty"`
	StartDelayMs       int64         `yaml:"startDelayMs,omitempty" json:"startDelayMs,omitempty"`
	SimulationLengthMs int64         `yaml:"simulationLengthMs,omitempty" json:"simulationLengthMs,omitempty"`
	QoS                byte          `yaml:"qos,omitempty" json:"qos,omitempty"`
	Retain             bool          `yaml:"retain,omitempty" json:"retain,omitempty"`
	Payload            PayloadConfig `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// NodeSettings override global settings for one node.
type NodeSettings struct {
	FrequencyMs int64          `yaml:"frequencyMs,omitempty" json:"frequencyMs,omitempty"`
	FailRate    float64        `yaml:"failRate,omitempty" json:"failRate,omitempty"`
	Payload     *PayloadConfig `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Profile binds a schema to a broker with simulation settings.
type Profile struct {
	ID       string                  `yaml:"id" json:"id"`
	Name     string                  `yaml:"name" json:"name"`
	SchemaID string                  `yaml:"schemaId" json:"schemaId"`
	BrokerID string                  `yaml:"brokerId" json:"brokerId"`
	Global   GlobalSettings          `yaml:"global" json:"global"`
	Nodes    map[string]NodeSettings `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	Status   *Status                 `yaml:"-" json:"status,omitempty"`
}

// EffectiveTimeScale returns the time-scale multiplier, treating non-positive values as 1.
func (p *Profile) EffectiveTimeScale() float64 {
	if p.Global.TimeScale <= 0 {
		return 1
	}
	return p.Global.TimeScale
}

// DefaultFrequency returns the global publish frequency.
func (p *Profile) DefaultFrequency() time.Duration {
	ms := p.Global.DefaultFrequencyMs
	if ms <= 0 {
		ms = DefaultFrequencyMs
	}
	return time.Duration(ms) * time.Millisecond
}
