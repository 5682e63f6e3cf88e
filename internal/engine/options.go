package engine

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"fleetsim/internal/profile"
	"fleetsim/internal/record"
)

// StatusWriter persists status transitions. Failures are logged, never fatal.
type StatusWriter interface {
	PatchStatus(ctx context.Context, profileID string, patch profile.StatusPatch) error
}

// Metrics counts publish outcomes.
type Metrics interface {
	MessagePublished(profileID string)
	PublishError(profileID string)
}

// LocalhostOverride replaces localhost targets when set.
type LocalhostOverride struct {
	Host string
	Port int
}

type options struct {
	log            *slog.Logger
	status         StatusWriter
	statusQueue    *StatusQueue
	metrics        Metrics
	recorder       record.Recorder
	dial           Dialer
	connectTimeout time.Duration
	reconnectDelay time.Duration
	maxReconnects  int
	localhost      LocalhostOverride
	rand           *rand.Rand
	now            func() time.Time
}

// Option configures an Engine.
type Option func(*options)

func defaultOptions() options {
	return options{
		log:            slog.Default(),
		dial:           PahoDialer,
		connectTimeout: 10 * time.Second,
		reconnectDelay: 2 * time.Second,
		maxReconnects:  5,
		rand:           rand.New(rand.NewSource(time.Now().UnixNano())),
		now:            time.Now,
	}
}

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

func WithStatusWriter(w StatusWriter) Option { return func(o *options) { o.status = w } }

// WithStatusQueue shares q with other engines of the same profile. It takes
// precedence over WithStatusWriter.
func WithStatusQueue(q *StatusQueue) Option { return func(o *options) { o.statusQueue = q } }

func WithMetrics(m Metrics) Option { return func(o *options) { o.metrics = m } }

func WithRecorder(r record.Recorder) Option { return func(o *options) { o.recorder = r } }

func WithDialer(d Dialer) Option { return func(o *options) { o.dial = d } }

func WithRand(r *rand.Rand) Option { return func(o *options) { o.rand = r } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

func WithLocalhostOverride(lo LocalhostOverride) Option {
	return func(o *options) { o.localhost = lo }
}

// WithConnectTimeout bounds each connect attempt. Non-positive values keep the default.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

// WithReconnect sets the linear backoff base delay and the attempt limit.
// Non-positive values keep the defaults.
func WithReconnect(base time.Duration, maxAttempts int) Option {
	return func(o *options) {
		if base > 0 {
			o.reconnectDelay = base
		}
		if maxAttempts > 0 {
			o.maxReconnects = maxAttempts
		}
	}
}
