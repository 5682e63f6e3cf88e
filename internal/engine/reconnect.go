package engine

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// linearBackOff waits base × attempt before each reconnect.
type linearBackOff struct {
	base    time.Duration
	attempt int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.attempt++
	return l.base * time.Duration(l.attempt)
}

func (l *linearBackOff) Reset() { l.attempt = 0 }

func newReconnectBackOff(base time.Duration, maxAttempts int) backoff.BackOff {
	b := backoff.WithMaxRetries(&linearBackOff{base: base}, uint64(maxAttempts))
	b.Reset()
	return b
}
