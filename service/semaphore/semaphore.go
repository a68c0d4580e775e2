// Package semaphore implements counting semaphores on top of the scheduler.
// Each semaphore owns a FIFO wait set; Signal wakes the oldest waiter of that
// semaphore only.
package semaphore

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/deque"
	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/runtime/process"
	"github.com/viant/kcore/service/scheduler"
)

// ID identifies a semaphore
type ID uint32

// Semaphore is a counting semaphore bounded by [0, max]
type Semaphore struct {
	id    ID
	sched *scheduler.Service

	mu        sync.Mutex
	value     uint32
	max       uint32
	waiters   deque.Deque[*process.Process]
	destroyed bool
	interrupt error
}

var _ process.Waiter = (*Semaphore)(nil)

// New creates a semaphore holding initial units out of limit
func New(sched *scheduler.Service, initial, limit uint32) (*Semaphore, error) {
	if sched == nil {
		return nil, fmt.Errorf("semaphore: nil scheduler: %w", errs.ErrInvalidArgument)
	}
	if limit == 0 || initial > limit {
		return nil, fmt.Errorf("semaphore: initial %d, max %d: %w", initial, limit, errs.ErrInvalidRange)
	}
	return &Semaphore{sched: sched, value: initial, max: limit}, nil
}

// ID returns the registry id, zero for an unregistered semaphore
func (s *Semaphore) ID() ID {
	return s.id
}

// Wait takes one unit, blocking the calling process while none is available.
// A woken waiter re-checks the value and blocks again if another process took
// the unit first. Wait fails with errs.ErrInvalidHandle once the semaphore is
// destroyed, with the interrupt reason once interrupted and drained, and with
// ctx.Err() when ctx ends while blocked.
func (s *Semaphore) Wait(ctx context.Context) error {
	p := process.FromContext(ctx)
	for {
		s.mu.Lock()
		if s.destroyed {
			s.mu.Unlock()
			return fmt.Errorf("semaphore %d: %w", s.id, errs.ErrInvalidHandle)
		}
		if s.value > 0 {
			s.value--
			s.mu.Unlock()
			return nil
		}
		if s.interrupt != nil {
			err := s.interrupt
			s.mu.Unlock()
			return err
		}
		if p == nil {
			s.mu.Unlock()
			return fmt.Errorf("semaphore %d: wait outside a process: %w", s.id, errs.ErrInvalidProcess)
		}
		if err := ctx.Err(); err != nil {
			s.mu.Unlock()
			return err
		}
		s.removeLocked(p)
		s.waiters.PushBack(p)
		if err := s.sched.Park(ctx, s, s.mu.Unlock); err != nil {
			s.Cancel(p)
			return err
		}
	}
}

// TryWait takes one unit if available, errs.ErrWouldBlock otherwise.
func (s *Semaphore) TryWait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.destroyed:
		return fmt.Errorf("semaphore %d: %w", s.id, errs.ErrInvalidHandle)
	case s.value > 0:
		s.value--
		return nil
	case s.interrupt != nil:
		return s.interrupt
	}
	return errs.ErrWouldBlock
}

// Signal releases one unit and wakes the oldest waiter. A signal on a
// semaphore already at max is dropped.
func (s *Semaphore) Signal() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return fmt.Errorf("semaphore %d: %w", s.id, errs.ErrInvalidHandle)
	}
	if s.value >= s.max {
		return nil
	}
	s.value++
	for s.waiters.Len() > 0 {
		if s.sched.Wake(s.waiters.PopFront(), s, nil) {
			break
		}
	}
	return nil
}

// Interrupt makes every current and future wait that would block fail with
// reason. Units already available can still be taken.
func (s *Semaphore) Interrupt(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed || s.interrupt != nil {
		return
	}
	s.interrupt = reason
	s.wakeAllLocked(reason)
}

// ClearInterrupt lets waits block again after Interrupt
func (s *Semaphore) ClearInterrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupt = nil
}

// Destroy invalidates the semaphore. Blocked waiters fail with
// errs.ErrInvalidHandle.
func (s *Semaphore) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.wakeAllLocked(fmt.Errorf("semaphore %d destroyed: %w", s.id, errs.ErrInvalidHandle))
}

func (s *Semaphore) wakeAllLocked(reason error) {
	for s.waiters.Len() > 0 {
		s.sched.Wake(s.waiters.PopFront(), s, reason)
	}
}

// Cancel removes p from the wait set unless p is parked on this semaphore
// again, in which case only its latest entry stays.
func (s *Semaphore) Cancel(p *process.Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.WaitingOn() != process.Waiter(s) {
		s.removeLocked(p)
		return
	}
	for {
		first := s.waiters.Index(func(c *process.Process) bool { return c == p })
		if first < 0 || first == s.waiters.RIndex(func(c *process.Process) bool { return c == p }) {
			return
		}
		s.waiters.Remove(first)
	}
}

func (s *Semaphore) removeLocked(p *process.Process) {
	for {
		idx := s.waiters.Index(func(c *process.Process) bool { return c == p })
		if idx < 0 {
			return
		}
		s.waiters.Remove(idx)
	}
}

// Value returns the available units
func (s *Semaphore) Value() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Max returns the upper bound
func (s *Semaphore) Max() uint32 {
	return s.max
}

// Waiters returns the number of blocked processes
func (s *Semaphore) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters.Len()
}

// WaiterPIDs returns blocked processes in wakeup order
func (s *Semaphore) WaiterPIDs() []process.PID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]process.PID, 0, s.waiters.Len())
	for i := 0; i < s.waiters.Len(); i++ {
		ret = append(ret, s.waiters.At(i).PID)
	}
	return ret
}

// Destroyed reports whether Destroy was called
func (s *Semaphore) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

// Info returns a serialisable view
func (s *Semaphore) Info() *model.SemaphoreInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.SemaphoreInfo{
		ID:        uint32(s.id),
		Value:     int(s.value),
		Max:       int(s.max),
		Waiters:   s.waiters.Len(),
		Destroyed: s.destroyed,
	}
}
