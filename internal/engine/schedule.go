package engine

import (
	"sync"
	"time"
)

type schedule struct {
	stop chan struct{}
	once sync.Once
}

func (s *schedule) cancel() { s.once.Do(func() { close(s.stop) }) }

// schedules holds one ticker goroutine per node id.
type schedules struct {
	mu sync.Mutex
	m  map[string]*schedule
}

func newSchedules() *schedules {
	return &schedules{m: make(map[string]*schedule)}
}

// start arms fn every interval for id. It is a no-op if id is already armed.
func (s *schedules) start(id string, every time.Duration, fn func()) bool {
	s.mu.Lock()
	if _, ok := s.m[id]; ok {
		s.mu.Unlock()
		return false
	}
	sc := &schedule{stop: make(chan struct{})}
	s.m[id] = sc
	s.mu.Unlock()

	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-sc.stop:
				return
			case <-t.C:
				select {
				case <-sc.stop:
					return
				default:
				}
				fn()
			}
		}
	}()
	return true
}

func (s *schedules) stopAll() {
	s.mu.Lock()
	all := s.m
	s.m = make(map[string]*schedule)
	s.mu.Unlock()
	for _, sc := range all {
		sc.cancel()
	}
}

func (s *schedules) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}
