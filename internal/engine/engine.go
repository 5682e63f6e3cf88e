// Package engine runs one simulated device fleet against one MQTT broker.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"fleetsim/internal/profile"
	"fleetsim/internal/record"
)

// ConnectError reports that Start could not reach the target broker.
type ConnectError struct {
	BrokerID string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to broker %s: %v", e.BrokerID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Engine owns a broker connection and one publish schedule per metric node.
type Engine struct {
	profile *profile.Profile
	broker  *profile.Broker
	nodes   []*Node
	opts    options
	log     *slog.Logger
	rand    *lockedRand
	sched   *schedules
	status  *StatusQueue

	mu                sync.Mutex
	state             profile.State
	running           bool
	paused            bool
	delayElapsed      bool
	connected         bool
	reconnecting      bool
	startTime         time.Time
	lastActivity      time.Time
	reconnectAttempts int
	published         int64
	publishErrors     int64
	client            Client
	done              chan struct{}

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// New builds an engine for p. Only metric nodes of s are simulated.
func New(p *profile.Profile, s *profile.Schema, b *profile.Broker, opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	status := o.statusQueue
	if status == nil {
		status = NewStatusQueue(o.status, p.ID, o.log)
	}
	return &Engine{
		profile:   p,
		broker:    b,
		nodes:     buildNodes(p, s),
		opts:      o,
		log:       o.log.With("profile_id", p.ID),
		rand:      &lockedRand{r: o.rand},
		sched:     newSchedules(),
		status:    status,
		state:     profile.StateIdle,
		listeners: make(map[int]Listener),
	}
}

// ProfileID returns the id of the simulated profile.
func (e *Engine) ProfileID() string { return e.profile.ID }

// Nodes returns the simulation nodes.
func (e *Engine) Nodes() []*Node { return e.nodes }

// Subscribe registers l and returns a function removing it.
func (e *Engine) Subscribe(l Listener) func() {
	e.lmu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.lmu.Unlock()
	return func() {
		e.lmu.Lock()
		delete(e.listeners, id)
		e.lmu.Unlock()
	}
}

// Start connects and arms the node schedules. It is a no-op while running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running || e.state == profile.StateStarting {
		e.mu.Unlock()
		return nil
	}
	e.state = profile.StateStarting
	e.mu.Unlock()

	e.emitLog(ctx, slog.LevelInfo, fmt.Sprintf("connecting to broker %s:%d", e.broker.Host, e.broker.Port))
	client, err := e.dial(ctx)
	if err != nil {
		msg := err.Error()
		e.mu.Lock()
		e.state = profile.StateError
		e.mu.Unlock()
		e.persist(profile.StatusPatch{
			State:       profile.Ptr(profile.StateError),
			IsRunning:   profile.Ptr(false),
			IsConnected: profile.Ptr(false),
			Error:       &msg,
		})
		e.log.Error("simulation start failed", "err", err)
		e.emit(EventStartError, "", msg)
		return &ConnectError{BrokerID: e.broker.ID, Err: err}
	}

	now := e.opts.now()
	e.mu.Lock()
	e.client = client
	e.running = true
	e.paused = false
	e.delayElapsed = e.profile.Global.StartDelayMs <= 0
	e.connected = true
	e.state = profile.StateRunning
	e.startTime = now
	e.reconnectAttempts = 0
	e.done = make(chan struct{})
	done := e.done
	e.mu.Unlock()

	e.persist(profile.StatusPatch{
		State:             profile.Ptr(profile.StateRunning),
		IsRunning:         profile.Ptr(true),
		IsPaused:          profile.Ptr(false),
		IsConnected:       profile.Ptr(true),
		StartTime:         &now,
		NodeCount:         profile.Ptr(len(e.nodes)),
		ReconnectAttempts: profile.Ptr(0),
		Error:             profile.Ptr(""),
	})

	go e.runTimers(done)
	e.log.Info("simulation started", "nodes", len(e.nodes))
	e.emit(EventStarted, "", "")
	return nil
}

// runTimers waits out the start delay, arms the schedules and enforces the
// simulation length. Nothing is armed before the delay has elapsed, even
// across a pause and resume.
func (e *Engine) runTimers(done <-chan struct{}) {
	if d := time.Duration(e.profile.Global.StartDelayMs) * time.Millisecond; d > 0 {
		t := time.NewTimer(d)
		select {
		case <-done:
			t.Stop()
			return
		case <-t.C:
		}
	}
	e.mu.Lock()
	current := e.done == done
	if current {
		e.delayElapsed = true
	}
	e.mu.Unlock()
	if !current {
		return
	}
	e.armAll()

	length := time.Duration(e.profile.Global.SimulationLengthMs) * time.Millisecond
	if length <= 0 {
		return
	}
	t := time.NewTimer(length)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		e.emitLog(context.Background(), slog.LevelInfo, "simulation length reached")
		if err := e.Stop(context.Background()); err != nil {
			e.log.Error("stop after simulation length", "err", err)
		}
	}
}

// Stop cancels every timer, ends the connection and persists the stopped state.
// It is a no-op unless running.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.paused = false
	e.state = profile.StateStopping
	close(e.done)
	client := e.client
	e.client = nil
	e.mu.Unlock()

	e.sched.stopAll()
	if client != nil {
		client.Disconnect()
	}

	e.mu.Lock()
	e.connected = false
	e.reconnecting = false
	e.state = profile.StateStopped
	e.mu.Unlock()

	e.persist(profile.StoppedPatch())
	e.log.Info("simulation stopped")
	e.emit(EventStopped, "", "")
	return nil
}

// Pause suspends publishing and keeps node runtime state.
func (e *Engine) Pause(ctx context.Context) error {
	e.mu.Lock()
	if !e.running || e.paused {
		e.mu.Unlock()
		return nil
	}
	e.paused = true
	e.state = profile.StatePaused
	e.mu.Unlock()

	e.sched.stopAll()
	e.persist(profile.StatusPatch{
		State:    profile.Ptr(profile.StatePaused),
		IsPaused: profile.Ptr(true),
	})
	e.emit(EventPaused, "", "")
	return nil
}

// Resume re-arms the schedules of a paused engine. A connection lost while
// paused is re-established first.
func (e *Engine) Resume(ctx context.Context) error {
	e.mu.Lock()
	if !e.running || !e.paused {
		e.mu.Unlock()
		return nil
	}
	e.paused = false
	e.state = profile.StateRunning
	reconnect := !e.connected && !e.reconnecting
	if reconnect {
		e.reconnecting = true
	}
	done := e.done
	e.mu.Unlock()

	e.persist(profile.StatusPatch{
		State:    profile.Ptr(profile.StateRunning),
		IsPaused: profile.Ptr(false),
	})
	e.emit(EventResumed, "", "")
	if reconnect {
		go e.reconnectLoop(done)
		return nil
	}
	e.armAll()
	return nil
}

// Status returns a snapshot without changing state.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		ProfileID:         e.profile.ID,
		ProfileName:       e.profile.Name,
		State:             e.state,
		IsRunning:         e.running,
		IsPaused:          e.paused,
		IsConnected:       e.connected,
		StartTime:         e.startTime,
		LastActivity:      e.lastActivity,
		NodeCount:         len(e.nodes),
		ReconnectAttempts: e.reconnectAttempts,
		MessagesPublished: e.published,
		PublishErrors:     e.publishErrors,
	}
}

func (e *Engine) armAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running || e.paused || !e.connected || !e.delayElapsed {
		return
	}
	for _, n := range e.nodes {
		e.sched.start(n.ID, n.Interval, func() { e.tick(n) })
	}
}

func (e *Engine) clientConfig() ClientConfig {
	host, port := e.broker.Host, e.broker.Port
	if isLocalhost(host) {
		if e.opts.localhost.Host != "" {
			host = e.opts.localhost.Host
		}
		if e.opts.localhost.Port > 0 {
			port = e.opts.localhost.Port
		}
	}
	return ClientConfig{
		URL:              brokerURL(host, port, e.broker.TLS),
		ClientID:         fmt.Sprintf("fleetsim-%s-%d", e.profile.ID, e.opts.now().UnixMilli()),
		Username:         e.broker.Username,
		Password:         e.broker.Password,
		ConnectTimeout:   e.opts.connectTimeout,
		OnConnectionLost: e.handleDisconnection,
	}
}

func (e *Engine) dial(ctx context.Context) (Client, error) {
	return e.opts.dial(ctx, e.clientConfig())
}

// handleDisconnection reacts to an unexpected connection loss.
func (e *Engine) handleDisconnection(cause error) {
	e.mu.Lock()
	e.connected = false
	if !e.running || e.paused || e.reconnecting {
		e.mu.Unlock()
		return
	}
	e.reconnecting = true
	done := e.done
	e.mu.Unlock()

	e.sched.stopAll()
	e.emitLog(context.Background(), slog.LevelWarn, fmt.Sprintf("connection lost: %v", cause))
	go e.reconnectLoop(done)
}

// reconnectLoop retries with linear backoff until connected, stopped, or out of attempts.
func (e *Engine) reconnectLoop(done <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()

	b := newReconnectBackOff(e.opts.reconnectDelay, e.opts.maxReconnects)
	var lastErr error
	for {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		e.mu.Lock()
		e.reconnectAttempts++
		attempt := e.reconnectAttempts
		e.mu.Unlock()
		e.persist(profile.StatusPatch{
			IsConnected:       profile.Ptr(false),
			ReconnectAttempts: &attempt,
		})
		e.emit(EventStatusUpdate, "", "")
		e.emitLog(ctx, slog.LevelInfo, fmt.Sprintf("reconnect attempt %d/%d in %s", attempt, e.opts.maxReconnects, wait))

		t := time.NewTimer(wait)
		select {
		case <-done:
			t.Stop()
			return
		case <-t.C:
		}

		client, err := e.dial(ctx)
		if err != nil {
			lastErr = err
			e.log.Warn("reconnect failed", "attempt", attempt, "err", err)
			continue
		}

		e.mu.Lock()
		if !e.running {
			e.mu.Unlock()
			client.Disconnect()
			return
		}
		e.client = client
		e.connected = true
		e.reconnecting = false
		e.reconnectAttempts = 0
		e.mu.Unlock()

		e.persist(profile.StatusPatch{
			IsConnected:       profile.Ptr(true),
			ReconnectAttempts: profile.Ptr(0),
		})
		e.emitLog(ctx, slog.LevelInfo, "reconnected")
		e.emit(EventStatusUpdate, "", "")
		e.armAll()
		return
	}

	select {
	case <-done:
		return
	default:
	}
	msg := fmt.Sprintf("giving up after %d reconnect attempts", e.opts.maxReconnects)
	if lastErr != nil {
		msg = fmt.Sprintf("%s: %v", msg, lastErr)
	}
	e.mu.Lock()
	e.reconnecting = false
	e.state = profile.StateError
	e.mu.Unlock()
	e.persist(profile.StatusPatch{
		State: profile.Ptr(profile.StateError),
		Error: &msg,
	})
	e.emitLog(context.Background(), slog.LevelError, msg)
	if err := e.Stop(context.Background()); err != nil {
		e.log.Error("stop after reconnect failure", "err", err)
	}
}

// tick publishes one sample for n.
func (e *Engine) tick(n *Node) {
	if n.FailRate > 0 && e.rand.Float64() < n.FailRate {
		e.emit(EventNodeFailure, n.ID, fmt.Sprintf("node %s failed to report", n.ID))
		return
	}

	e.mu.Lock()
	client := e.client
	qos, retain := e.profile.Global.QoS, e.profile.Global.Retain
	e.mu.Unlock()
	if client == nil {
		return
	}

	now := e.opts.now()
	value := n.nextValue(e.rand)
	payload, err := n.buildPayload(value, now)
	if err != nil {
		e.publishFailed(n, err)
		return
	}
	if err := client.Publish(n.Topic, qos, retain, payload); err != nil {
		e.publishFailed(n, err)
		return
	}

	e.mu.Lock()
	e.published++
	e.lastActivity = now
	e.mu.Unlock()
	if e.opts.metrics != nil {
		e.opts.metrics.MessagePublished(e.profile.ID)
	}
	if e.opts.recorder != nil {
		s := record.Sample{
			ProfileID: e.profile.ID,
			NodeID:    n.ID,
			Topic:     n.Topic,
			Value:     value,
			Payload:   payload,
			Timestamp: now,
		}
		if err := e.opts.recorder.Record(s); err != nil {
			e.log.Warn("record sample", "node_id", n.ID, "err", err)
		}
	}
}

func (e *Engine) publishFailed(n *Node, err error) {
	e.mu.Lock()
	e.publishErrors++
	e.mu.Unlock()
	if e.opts.metrics != nil {
		e.opts.metrics.PublishError(e.profile.ID)
	}
	e.log.Warn("publish failed", "node_id", n.ID, "topic", n.Topic, "err", err)
	e.emit(EventPublishError, n.ID, err.Error())
}

// persist queues a status patch. Write errors are logged and swallowed.
func (e *Engine) persist(patch profile.StatusPatch) {
	e.status.Push(patch)
}

func (e *Engine) emitLog(ctx context.Context, level slog.Level, msg string) {
	e.log.Log(ctx, level, msg)
	e.emitEvent(Event{Type: EventLog, Level: level.String(), Message: msg})
}

func (e *Engine) emit(t EventType, nodeID, msg string) {
	e.emitEvent(Event{Type: t, NodeID: nodeID, Message: msg})
}

// emitEvent stamps ev and calls every listener outside the engine lock.
func (e *Engine) emitEvent(ev Event) {
	ev.ProfileID = e.profile.ID
	ev.Time = e.opts.now()
	ev.Status = e.Status()

	e.lmu.Lock()
	ls := make([]Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		ls = append(ls, l)
	}
	e.lmu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}
