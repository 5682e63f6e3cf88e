package engine

import (
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"fleetsim/internal/profile"
)

type valueKind int

const (
	kindFloat valueKind = iota
	kindInteger
	kindBool
	kindString
)

const defaultPrecision = 2

func kindOf(dataType string) valueKind {
	switch strings.ToLower(dataType) {
	case "int", "integer", "int16", "int32", "int64", "uint", "uint16", "uint32", "uint64", "long":
		return kindInteger
	case "bool", "boolean":
		return kindBool
	case "string", "text":
		return kindString
	default:
		return kindFloat
	}
}

// lockedRand is a *rand.Rand safe for use by every node goroutine.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// nextValue generates the value for the next publish of n.
func (n *Node) nextValue(rnd *lockedRand) any {
	cfg := n.Payload
	kind := kindOf(n.DataType)
	switch cfg.ValueMode {
	case profile.ValueStatic:
		return cfg.StaticValue
	case profile.ValueIncrement:
		if kind == kindBool || kind == kindString {
			return cfg.StaticValue
		}
		return n.round(n.increment(), kind)
	default:
		switch kind {
		case kindBool:
			return rnd.Float64() < 0.5
		case kindString:
			return cfg.StaticValue
		case kindInteger:
			lo, hi := bounds(cfg, 1, 100)
			return int64(math.Round(lo + rnd.Float64()*(hi-lo)))
		default:
			lo, hi := bounds(cfg, 0, 1)
			return n.round(lo+rnd.Float64()*(hi-lo), kind)
		}
	}
}

// increment advances the runtime counter, wrapping past max.
func (n *Node) increment() float64 {
	cfg := n.Payload
	n.mu.Lock()
	defer n.mu.Unlock()
	start := resetValue(cfg)
	cur := start
	if n.current != nil {
		cur = *n.current
	}
	step := 1.0
	if cfg.Step != nil {
		step = *cfg.Step
	}
	next := cur + step
	if cfg.Max != nil && next > *cfg.Max {
		next = start
	}
	n.current = &next
	return next
}

// resetValue is the start value, else min, else zero.
func resetValue(cfg profile.PayloadConfig) float64 {
	if cfg.StartValue != nil {
		return *cfg.StartValue
	}
	if cfg.Min != nil {
		return *cfg.Min
	}
	return 0
}

func bounds(cfg profile.PayloadConfig, lo, hi float64) (float64, float64) {
	if cfg.Min != nil {
		lo = *cfg.Min
	}
	if cfg.Max != nil {
		hi = *cfg.Max
	}
	return lo, hi
}

func (n *Node) round(v float64, kind valueKind) any {
	if kind == kindInteger {
		return int64(math.Round(v))
	}
	prec := defaultPrecision
	if n.Payload.Precision != nil {
		prec = *n.Payload.Precision
	}
	pow := math.Pow(10, float64(prec))
	return math.Round(v*pow) / pow
}

// buildPayload renders the JSON payload for one publish.
func (n *Node) buildPayload(value any, now time.Time) ([]byte, error) {
	cfg := n.Payload
	msg := make(map[string]any, len(cfg.CustomFields)+3)
	for k, v := range cfg.CustomFields {
		msg[k] = parseCustom(v)
	}
	msg["quality"] = cfg.Quality
	ts := now.UnixMilli()
	if cfg.TimestampMode == profile.TimestampFixed && cfg.FixedTimestamp != nil {
		ts = *cfg.FixedTimestamp
	}
	msg["timestamp"] = ts
	msg["value"] = value
	return json.Marshal(msg)
}

// parseCustom decodes values that look like JSON, numbers or booleans.
func parseCustom(s string) any {
	t := strings.TrimSpace(s)
	if t == "" {
		return s
	}
	switch t[0] {
	case '{', '[', '"', '-', 't', 'f', 'n', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var v any
		if err := json.Unmarshal([]byte(t), &v); err == nil {
			return v
		}
	}
	return s
}
