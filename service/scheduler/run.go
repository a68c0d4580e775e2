package scheduler

import (
	"context"
	"fmt"

	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/internal/clock"
	"github.com/viant/kcore/runtime/process"
	"github.com/viant/kcore/stats"
)

// Run makes the calling goroutine the idle process and drives the core until
// every spawned process has terminated, or ctx ends. On ctx end all remaining
// processes are terminated and ctx.Err() is returned.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running: %w", errs.ErrInvalidArgument)
	}
	s.running = true
	s.current = s.idle
	s.idle.SetState(process.StateRunning)
	s.idle.MarkDispatched(clock.Now())
	s.mu.Unlock()
	s.logger.Info("scheduler started", "processes", s.table.Len()-1)

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if s.table.Len() <= 1 {
			s.mu.Unlock()
			s.logger.Info("scheduler finished", "stats", s.stats.Counters())
			return nil
		}
		if s.ready.len() > 0 {
			s.idle.SetState(process.StateReady)
			s.idleParked = true
			if !s.dispatch(s.idle, ctx.Done()) {
				s.mu.Lock()
				s.idleParked = false
				s.mu.Unlock()
				s.Shutdown()
				s.idle.Drain()
				return ctx.Err()
			}
			continue
		}
		s.mu.Unlock()

		select {
		case <-s.kick:
		case <-ctx.Done():
			s.Shutdown()
			return ctx.Err()
		}
	}
}

type pendingCancel struct {
	waiter process.Waiter
	target *process.Process
}

// Shutdown terminates every process. A process holding the core stops at its
// next scheduler call; the core returns to the idle process.
func (s *Service) Shutdown() {
	s.mu.Lock()
	var waiters []pendingCancel
	count := 0
	for _, p := range s.Processes() {
		if p == s.idle {
			continue
		}
		if w := p.WaitingOn(); w != nil {
			waiters = append(waiters, pendingCancel{waiter: w, target: p})
		}
		s.retireLocked(p)
		count++
	}
	if count > 0 {
		s.stats.Update(stats.Delta{Terminated: count})
	}
	resumeIdle := s.idleParked
	s.idleParked = false
	s.current = s.idle
	s.idle.SetState(process.StateRunning)
	s.mu.Unlock()

	for _, item := range waiters {
		item.waiter.Cancel(item.target)
	}
	if resumeIdle {
		s.idle.Resume()
	}
	s.notify()
	if count > 0 {
		s.logger.Info("scheduler shut down", "terminated", count)
	}
}
