// Package command executes remote control-plane commands.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"fleetsim/internal/backbone"
	"fleetsim/internal/profile"
	"fleetsim/internal/store"
	"fleetsim/internal/topics"
)

// Manager is the simulation control surface commands are routed to.
type Manager interface {
	StartSimulation(ctx context.Context, p *profile.Profile, s *profile.Schema, b *profile.Broker) error
	StopSimulation(ctx context.Context, id string) error
	PauseSimulation(ctx context.Context, id string) error
	ResumeSimulation(ctx context.Context, id string) error
}

// Loader fetches what a start command needs.
type Loader interface {
	Profile(ctx context.Context, id string) (*profile.Profile, error)
	Schema(ctx context.Context, id string) (*profile.Schema, error)
	Broker(ctx context.Context, id string) (*profile.Broker, error)
}

// Responder publishes correlated command responses.
type Responder interface {
	PublishCommandResponse(correlationID string, err error)
}

// Dispatcher decodes commands, runs them and answers them.
type Dispatcher struct {
	topics topics.Namespace
	mgr    Manager
	loader Loader
	resp   Responder
	log    *slog.Logger
}

// New creates a Dispatcher.
func New(ns topics.Namespace, mgr Manager, loader Loader, resp Responder, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{topics: ns, mgr: mgr, loader: loader, resp: resp, log: log.With("component", "dispatcher")}
}

// Handle processes one message from the command topic. A response is
// published exactly once when the command carries a correlation id.
func (d *Dispatcher) Handle(ctx context.Context, topic string, payload []byte) {
	var cmd backbone.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		d.log.Warn("dropping malformed command", "topic", topic, "err", err)
		return
	}
	if cmd.Origin == backbone.OriginUI {
		return
	}

	err := d.run(ctx, topic, cmd)
	if err != nil {
		d.log.Warn("command failed", "topic", topic, "profile_id", cmd.ProfileID, "err", err)
	} else {
		d.log.Info("command executed", "topic", topic, "profile_id", cmd.ProfileID)
	}
	if cmd.CorrelationID != "" {
		d.resp.PublishCommandResponse(cmd.CorrelationID, err)
	}
}

// run executes cmd, converting panics into errors.
func (d *Dispatcher) run(ctx context.Context, topic string, cmd backbone.Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("command panicked: %v", r)
		}
	}()
	if cmd.ProfileID == "" {
		return errors.New("profileId is required")
	}
	action, ok := d.topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("unknown command %q", topic)
	}
	switch action {
	case topics.ActionStart:
		return d.start(ctx, cmd.ProfileID)
	case topics.ActionStop:
		return d.mgr.StopSimulation(ctx, cmd.ProfileID)
	case topics.ActionPause:
		return d.mgr.PauseSimulation(ctx, cmd.ProfileID)
	case topics.ActionResume:
		return d.mgr.ResumeSimulation(ctx, cmd.ProfileID)
	default:
		return fmt.Errorf("unknown command %q", action)
	}
}

func (d *Dispatcher) start(ctx context.Context, id string) error {
	p, err := d.loader.Profile(ctx, id)
	if err != nil {
		return describe("profile "+id, err)
	}
	s, err := d.loader.Schema(ctx, p.SchemaID)
	if err != nil {
		return describe(fmt.Sprintf("schema %s of profile %s", p.SchemaID, id), err)
	}
	b, err := d.loader.Broker(ctx, p.BrokerID)
	if err != nil {
		return describe(fmt.Sprintf("broker %s of profile %s", p.BrokerID, id), err)
	}
	return d.mgr.StartSimulation(ctx, p, s, b)
}

func describe(what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s not found: %w", what, err)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
