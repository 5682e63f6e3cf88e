package engine

import (
	"strings"
	"sync"
	"time"

	"fleetsim/internal/profile"
)

// minInterval keeps very large time scales from producing a zero ticker period.
const minInterval = time.Millisecond

// Node is one simulated metric. Config fields are immutable after build; the
// increment counter lives in the separately locked runtime state.
type Node struct {
	ID       string
	Path     string
	DataType string
	Topic    string
	Interval time.Duration
	FailRate float64
	Payload  profile.PayloadConfig

	mu      sync.Mutex
	current *float64
}

// buildNodes turns the metric nodes of s into simulation nodes for p.
func buildNodes(p *profile.Profile, s *profile.Schema) []*Node {
	scale := p.EffectiveTimeScale()
	var nodes []*Node
	for _, sn := range s.Nodes {
		if sn.Kind != profile.KindMetric {
			continue
		}
		settings := p.Nodes[sn.ID]
		freq := p.DefaultFrequency()
		if settings.FrequencyMs > 0 {
			freq = time.Duration(settings.FrequencyMs) * time.Millisecond
		}
		interval := time.Duration(float64(freq) / scale)
		if interval < minInterval {
			interval = minInterval
		}
		nodes = append(nodes, &Node{
			ID:       sn.ID,
			Path:     sn.Path,
			DataType: sn.DataType,
			Topic:    joinTopic(p.Global.PublishRoot, sn.Path),
			Interval: interval,
			FailRate: settings.FailRate,
			Payload:  mergePayload(p.Global.Payload, settings.Payload),
		})
	}
	return nodes
}

// mergePayload resolves node > global > default precedence.
func mergePayload(global profile.PayloadConfig, node *profile.PayloadConfig) profile.PayloadConfig {
	out := profile.PayloadConfig{
		Quality:       profile.DefaultQuality,
		TimestampMode: profile.TimestampAuto,
		ValueMode:     profile.ValueRandom,
	}
	layers := []*profile.PayloadConfig{&global}
	if node != nil {
		layers = append(layers, node)
	}
	for _, l := range layers {
		if l.Quality != "" {
			out.Quality = l.Quality
		}
		if l.TimestampMode != "" {
			out.TimestampMode = l.TimestampMode
		}
		if l.FixedTimestamp != nil {
			out.FixedTimestamp = l.FixedTimestamp
		}
		if l.ValueMode != "" {
			out.ValueMode = l.ValueMode
		}
		if l.StaticValue != nil {
			out.StaticValue = l.StaticValue
		}
		if l.Min != nil {
			out.Min = l.Min
		}
		if l.Max != nil {
			out.Max = l.Max
		}
		if l.Step != nil {
			out.Step = l.Step
		}
		if l.StartValue != nil {
			out.StartValue = l.StartValue
		}
		if l.Precision != nil {
			out.Precision = l.Precision
		}
		for k, v := range l.CustomFields {
			if out.CustomFields == nil {
				out.CustomFields = make(map[string]string)
			}
			out.CustomFields[k] = v
		}
	}
	return out
}

// joinTopic prefixes path with root when a root is configured.
func joinTopic(root, path string) string {
	if root == "" {
		return path
	}
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(path, "/")
}
