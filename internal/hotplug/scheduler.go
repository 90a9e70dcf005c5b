// Package hotplug turns USB attach/detach activity into discovery passes.
package hotplug

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Scheduler runs discovery passes one at a time on a single worker. Every
// Notify queues exactly one pass; passes never overlap.
type Scheduler struct {
	pass func(ctx context.Context)
	log  zerolog.Logger

	mu      sync.Mutex
	pending int
	stopped bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	start    sync.Once
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(l zerolog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = l }
}

// NewScheduler creates a scheduler that calls pass for every queued request.
func NewScheduler(pass func(ctx context.Context), opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pass: pass,
		log:  zerolog.Nop(),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker. It exits when ctx is cancelled or Stop is
// called. Calling Start more than once has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.start.Do(func() {
		go s.loop(ctx)
	})
}

// Notify queues one pass. It never blocks and is a no-op after Stop.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.pending++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// NotifyCoalesced queues one pass unless a pass is already queued. Periodic
// triggers use it so a stalled pass does not build up a backlog.
func (s *Scheduler) NotifyCoalesced() {
	s.mu.Lock()
	if s.stopped || s.pending > 0 {
		s.mu.Unlock()
		return
	}
	s.pending++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued passes not yet started.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Stop discards queued passes and waits for a running pass to return.
// It must only be called after Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.pending = 0
		s.mu.Unlock()
		close(s.stop)
	})
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-s.wake:
		}

		for s.take() {
			if ctx.Err() != nil {
				return
			}
			s.log.Debug().Msg("running discovery pass")
			s.pass(ctx)
		}
	}
}

func (s *Scheduler) take() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || s.pending == 0 {
		return false
	}
	s.pending--
	return true
}
