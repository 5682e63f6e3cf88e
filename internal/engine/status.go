package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fleetsim/internal/profile"
)

const persistTimeout = 5 * time.Second

// StatusQueue writes the status patches of one profile in order on a
// background goroutine, so a slow store never holds up a lifecycle transition.
// Engines that replace each other for the same profile share one queue.
type StatusQueue struct {
	w   StatusWriter
	id  string
	log *slog.Logger

	mu      sync.Mutex
	pending []profile.StatusPatch
	running bool
	idle    chan struct{}
}

// NewStatusQueue returns a queue writing to w. A nil w drops every patch.
func NewStatusQueue(w StatusWriter, profileID string, log *slog.Logger) *StatusQueue {
	if log == nil {
		log = slog.Default()
	}
	idle := make(chan struct{})
	close(idle)
	return &StatusQueue{w: w, id: profileID, log: log.With("profile_id", profileID), idle: idle}
}

// Push queues patch and returns immediately.
func (q *StatusQueue) Push(patch profile.StatusPatch) {
	if q.w == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, patch)
	if q.running {
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	go q.drain(q.idle)
}

func (q *StatusQueue) drain(idle chan struct{}) {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			close(idle)
			q.mu.Unlock()
			return
		}
		patch := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := q.w.PatchStatus(ctx, q.id, patch); err != nil {
			q.log.Warn("persist status", "err", err)
		}
		cancel()
	}
}

// Wait blocks until every queued patch has been written or ctx is done.
func (q *StatusQueue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
