// Package manager keeps at most one simulation engine per profile.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"fleetsim/internal/engine"
	"fleetsim/internal/profile"
)

// Errors returned for pause and resume of untracked simulations. The two are
// distinct on purpose and are shown to callers verbatim.
var (
	ErrNotRunning = errors.New("is not running")
	ErrNotFound   = errors.New("not found")
)

// SimulationError ties a manager error to a profile id.
type SimulationError struct {
	ID  string
	Err error
}

func (e *SimulationError) Error() string { return fmt.Sprintf("simulation %s %v", e.ID, e.Err) }

func (e *SimulationError) Unwrap() error { return e.Err }

// ControlPlane receives engine notifications for republishing.
type ControlPlane interface {
	PublishSimulationStatus(id string, status engine.Snapshot)
	ClearSimulationStatus(id string)
	PublishActiveIndex(ids []string)
	PublishSimulationEvent(ev engine.Event)
	PublishSimulationLog(id, level, msg string)
}

// Counters is the metrics sink for lifecycle counts.
type Counters interface {
	SimulationStarted()
	SimulationStopped()
}

// StatusStore persists status patches.
type StatusStore interface {
	PatchStatus(ctx context.Context, profileID string, patch profile.StatusPatch) error
}

// Config wires a Manager.
type Config struct {
	Store         StatusStore
	ControlPlane  ControlPlane
	Metrics       Counters
	Logger        *slog.Logger
	EngineOptions []engine.Option
}

type entry struct {
	eng   *engine.Engine
	unsub func()
}

// Manager is the registry of live engines.
type Manager struct {
	cfg Config
	log *slog.Logger

	mu      sync.Mutex
	engines map[string]*entry
	locks   map[string]*sync.Mutex
	status  map[string]*engine.StatusQueue
}

// New creates an empty Manager.
func New(cfg Config) *Manager {
	if cfg.ControlPlane == nil {
		cfg.ControlPlane = nopControlPlane{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopCounters{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		log:     cfg.Logger,
		engines: make(map[string]*entry),
		locks:   make(map[string]*sync.Mutex),
		status:  make(map[string]*engine.StatusQueue),
	}
}

// lockFor serializes start and stop for one profile id.
func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// statusFor returns the status queue shared by every engine of id, so the
// writes of a replaced engine land before those of its successor.
func (m *Manager) statusFor(id string) *engine.StatusQueue {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.status[id]
	if !ok {
		q = engine.NewStatusQueue(m.cfg.Store, id, m.log)
		m.status[id] = q
	}
	return q
}

func (m *Manager) get(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engines[id]
}

func (m *Manager) take(id string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.engines[id]
	delete(m.engines, id)
	return e
}

// removeEngine drops id only if it still maps to eng.
func (m *Manager) removeEngine(id string, eng *engine.Engine) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.engines[id]; ok && e.eng == eng {
		delete(m.engines, id)
		return true
	}
	return false
}

// StartSimulation stops any engine for p.ID, then creates and starts a new one.
func (m *Manager) StartSimulation(ctx context.Context, p *profile.Profile, s *profile.Schema, b *profile.Broker) error {
	l := m.lockFor(p.ID)
	l.Lock()
	defer l.Unlock()

	if old := m.take(p.ID); old != nil {
		m.log.Info("replacing running simulation", "profile_id", p.ID)
		if err := old.eng.Stop(ctx); err != nil {
			m.log.Warn("stop previous engine", "profile_id", p.ID, "err", err)
		}
		old.unsub()
	}

	opts := append([]engine.Option{
		engine.WithLogger(m.log),
		engine.WithStatusQueue(m.statusFor(p.ID)),
	}, m.cfg.EngineOptions...)
	eng := engine.New(p, s, b, opts...)
	e := &entry{eng: eng}
	e.unsub = eng.Subscribe(func(ev engine.Event) { m.forward(eng, ev) })

	m.mu.Lock()
	m.engines[p.ID] = e
	m.mu.Unlock()

	if err := eng.Start(ctx); err != nil {
		m.removeEngine(p.ID, eng)
		e.unsub()
		return err
	}
	return nil
}

// StopSimulation stops the engine for id. Without an engine the persisted
// status is reset to stopped.
func (m *Manager) StopSimulation(ctx context.Context, id string) error {
	l := m.lockFor(id)
	l.Lock()
	defer l.Unlock()

	e := m.take(id)
	if e == nil {
		m.statusFor(id).Push(profile.StoppedPatch())
		m.cfg.ControlPlane.ClearSimulationStatus(id)
		return nil
	}
	err := e.eng.Stop(ctx)
	e.unsub()
	return err
}

// PauseSimulation pauses the engine for id.
func (m *Manager) PauseSimulation(ctx context.Context, id string) error {
	e := m.get(id)
	if e == nil {
		return &SimulationError{ID: id, Err: ErrNotRunning}
	}
	return e.eng.Pause(ctx)
}

// ResumeSimulation resumes the engine for id.
func (m *Manager) ResumeSimulation(ctx context.Context, id string) error {
	e := m.get(id)
	if e == nil {
		return &SimulationError{ID: id, Err: ErrNotFound}
	}
	return e.eng.Resume(ctx)
}

// IsRunning reports whether a running engine is registered for id.
func (m *Manager) IsRunning(id string) bool {
	e := m.get(id)
	return e != nil && e.eng.Status().IsRunning
}

// SimulationStatus returns the snapshot of the engine for id.
func (m *Manager) SimulationStatus(id string) (engine.Snapshot, bool) {
	e := m.get(id)
	if e == nil {
		return engine.Snapshot{}, false
	}
	return e.eng.Status(), true
}

// ActiveIDs returns the registered profile ids in sorted order.
func (m *Manager) ActiveIDs() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.engines))
	for id := range m.engines {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Statuses returns a snapshot of every registered engine.
func (m *Manager) Statuses() []engine.Snapshot {
	ids := m.ActiveIDs()
	out := make([]engine.Snapshot, 0, len(ids))
	for _, id := range ids {
		if st, ok := m.SimulationStatus(id); ok {
			out = append(out, st)
		}
	}
	return out
}

// StopAll stops every registered engine in parallel.
func (m *Manager) StopAll(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for _, id := range m.ActiveIDs() {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.StopSimulation(ctx, id); err != nil {
				emu.Lock()
				errs = append(errs, fmt.Errorf("stop %s: %w", id, err))
				emu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// forward republishes engine events through the control plane.
func (m *Manager) forward(eng *engine.Engine, ev engine.Event) {
	cp := m.cfg.ControlPlane
	switch ev.Type {
	case engine.EventLog:
		cp.PublishSimulationLog(ev.ProfileID, ev.Level, ev.Message)
	case engine.EventNodeFailure:
		cp.PublishSimulationLog(ev.ProfileID, slog.LevelWarn.String(), ev.Message)
	case engine.EventPublishError:
		cp.PublishSimulationLog(ev.ProfileID, slog.LevelError.String(), fmt.Sprintf("publish on node %s failed: %s", ev.NodeID, ev.Message))
	case engine.EventStarted:
		m.cfg.Metrics.SimulationStarted()
		cp.PublishSimulationStatus(ev.ProfileID, ev.Status)
		cp.PublishSimulationEvent(ev)
		cp.PublishActiveIndex(m.ActiveIDs())
	case engine.EventStopped:
		// Engines stopping on their own (length timer, reconnect exhaustion)
		// are still registered at this point.
		m.removeEngine(eng.ProfileID(), eng)
		m.cfg.Metrics.SimulationStopped()
		cp.ClearSimulationStatus(ev.ProfileID)
		cp.PublishSimulationEvent(ev)
		cp.PublishActiveIndex(m.ActiveIDs())
	case engine.EventStatusUpdate:
		cp.PublishSimulationStatus(ev.ProfileID, ev.Status)
	default:
		cp.PublishSimulationStatus(ev.ProfileID, ev.Status)
		cp.PublishSimulationEvent(ev)
	}
}

type nopControlPlane struct{}

func (nopControlPlane) PublishSimulationStatus(string, engine.Snapshot) {}
func (nopControlPlane) ClearSimulationStatus(string)                    {}
func (nopControlPlane) PublishActiveIndex([]string)                     {}
func (nopControlPlane) PublishSimulationEvent(engine.Event)             {}
func (nopControlPlane) PublishSimulationLog(string, string, string)     {}

type nopCounters struct{}

func (nopCounters) SimulationStarted() {}
func (nopCounters) SimulationStopped() {}
