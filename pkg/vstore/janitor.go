package vstore

import (
	"sync"
	"sync/atomic"
	"time"
)

type janitor struct {
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
	sweeping int32
}

// StartJanitor runs CleanupExpired every interval in a background goroutine
// until the returned stop function is called. Starting a second janitor on
// the same store stops the first one. A non-positive interval starts nothing
// and returns a no-op stop function.
func (s *Store[V]) StartJanitor(interval time.Duration) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	s.mu.Lock()
	prev := s.janitor
	j := &janitor{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	s.janitor = j
	s.mu.Unlock()

	if prev != nil {
		prev.halt()
	}

	go s.runJanitor(j, interval)
	return func() {
		j.halt()
		s.mu.Lock()
		if s.janitor == j {
			s.janitor = nil
		}
		s.mu.Unlock()
	}
}

func (s *Store[V]) runJanitor(j *janitor, interval time.Duration) {
	defer close(j.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ticker.C:
			s.sweepOnce(j)
		}
	}
}

func (s *Store[V]) sweepOnce(j *janitor) {
	if !atomic.CompareAndSwapInt32(&j.sweeping, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&j.sweeping, 0)

	removed, err := s.CleanupExpired()
	if err != nil {
		s.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int("removed", removed).Msg("expiry sweeper removed records")
	}
}

func (j *janitor) halt() {
	j.once.Do(func() { close(j.stop) })
	<-j.done
}
