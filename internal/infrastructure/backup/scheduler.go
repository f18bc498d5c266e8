package backup

import (
	"context"
	"sync"
	"time"
)

// Scheduler takes a snapshot right away and then once per interval until
// stopped.
type Scheduler struct {
	service  *Service
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	last    *Manifest
	lastErr error
}

// NewScheduler creates a scheduler for service.
func NewScheduler(service *Service, interval time.Duration) *Scheduler {
	return &Scheduler{service: service, interval: interval}
}

// Start launches the snapshot loop. Calling Start on a running scheduler
// does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.service.logger.Infow("Snapshot scheduler started", "interval", s.interval.String())
}

// Stop ends the loop and waits for a snapshot in progress to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	<-done
	s.service.logger.Infow("Snapshot scheduler stopped")
}

// Last returns the outcome of the most recent run.
func (s *Scheduler) Last() (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.run(ctx)
	for {
		select {
		case <-ticker.C:
			s.run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	manifest, err := s.service.Snapshot(ctx)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.lastErr = err
	if err == nil {
		s.last = manifest
	}
	s.mu.Unlock()
}
