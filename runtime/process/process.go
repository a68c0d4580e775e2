package process

import (
	"context"
	"sync"
	"time"

	"github.com/viant/kcore/internal/clock"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/service/allocator"
)

// PID identifies a process
type PID uint32

// Entry is the body of a process. The supplied context carries the process
// identity (see FromContext) and must be passed to every blocking call.
type Entry func(ctx context.Context)

// Waiter is a wait set a blocked process can be registered in. Cancel removes
// the process from it; it is called when the process terminates.
type Waiter interface {
	Cancel(p *Process)
}

// Wake describes why a parked process resumed
type Wake int

const (
	// WakeResumed means the scheduler handed the core to the process.
	WakeResumed Wake = iota
	// WakeKilled means the process was terminated while parked.
	WakeKilled
	// WakeCancelled means the park was abandoned because the cancel channel closed.
	WakeCancelled
)

// Process represents a process control block
type Process struct {
	PID       PID
	ParentPID PID
	Name      string
	Priority  uint32
	Quantum   time.Duration
	CreatedAt time.Time

	entry  Entry
	resume chan struct{}
	killed chan struct{}
	kill   sync.Once

	mu         sync.RWMutex
	state      State
	cpuTime    time.Duration
	dispatched time.Time
	stack      *allocator.Block
	waitingOn  Waiter
	wakeErr    error
}

// Option customises a process at spawn time
type Option func(p *Process)

// WithName sets a descriptive process name
func WithName(name string) Option {
	return func(p *Process) {
		p.Name = name
	}
}

// WithQuantum overrides the scheduler default time quantum
func WithQuantum(quantum time.Duration) Option {
	return func(p *Process) {
		if quantum > 0 {
			p.Quantum = quantum
		}
	}
}

// New creates a process in StateReady. The scheduler owns every mutation
// after that.
func New(pid PID, entry Entry, priority uint32, quantum time.Duration, options ...Option) *Process {
	ret := &Process{
		PID:       pid,
		Priority:  priority,
		Quantum:   quantum,
		CreatedAt: clock.Now(),
		entry:     entry,
		resume:    make(chan struct{}, 1),
		killed:    make(chan struct{}),
		state:     StateReady,
	}
	for _, opt := range options {
		opt(ret)
	}
	return ret
}

// Entry returns the process body
func (p *Process) Entry() Entry {
	return p.entry
}

// State returns the process state
func (p *Process) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// SetState updates the process state
func (p *Process) SetState(state State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = state
}

// CPUTime returns the accumulated time spent running
func (p *Process) CPUTime() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cpuTime
}

// MarkDispatched records the moment the process got the core
func (p *Process) MarkDispatched(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatched = at
}

// Account adds the time since the last dispatch to CPUTime and restarts the
// slice at the supplied instant.
func (p *Process) Account(at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dispatched.IsZero() {
		return
	}
	if elapsed := at.Sub(p.dispatched); elapsed > 0 {
		p.cpuTime += elapsed
	}
	p.dispatched = at
}

// SliceElapsed returns for how long the process has been running since its
// last dispatch.
func (p *Process) SliceElapsed(at time.Time) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.dispatched.IsZero() {
		return 0
	}
	return at.Sub(p.dispatched)
}

// Stack returns the execution context storage
func (p *Process) Stack() *allocator.Block {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stack
}

// SetStack assigns (or clears) the execution context storage
func (p *Process) SetStack(block *allocator.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stack = block
}

// WaitingOn returns the wait set the process is registered in, if any
func (p *Process) WaitingOn() Waiter {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.waitingOn
}

// SetWaitingOn records the wait set the process is registered in
func (p *Process) SetWaitingOn(w Waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitingOn = w
}

// SetWakeErr records the reason delivered with the next wakeup
func (p *Process) SetWakeErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.wakeErr == nil {
		p.wakeErr = err
	}
}

// TakeWakeErr returns and clears the wakeup reason
func (p *Process) TakeWakeErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.wakeErr
	p.wakeErr = nil
	return err
}

// Resume hands the core to the process. At most one resume is ever pending.
func (p *Process) Resume() {
	select {
	case p.resume <- struct{}{}:
	default:
	}
}

// Drain discards a pending resume, if any.
func (p *Process) Drain() {
	select {
	case <-p.resume:
	default:
	}
}

// Kill releases the process goroutine from any park. It is idempotent.
func (p *Process) Kill() {
	p.kill.Do(func() { close(p.killed) })
}

// Killed returns a channel closed once the process is terminated
func (p *Process) Killed() <-chan struct{} {
	return p.killed
}

// Park suspends the calling goroutine until the process is resumed, killed, or
// cancel is closed. A nil cancel never fires.
func (p *Process) Park(cancel <-chan struct{}) Wake {
	select {
	case <-p.resume:
		return WakeResumed
	case <-p.killed:
		return WakeKilled
	case <-cancel:
		return WakeCancelled
	}
}

// Info returns a serialisable view of the process
func (p *Process) Info() *model.ProcessInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &model.ProcessInfo{
		PID:       uint32(p.PID),
		ParentPID: uint32(p.ParentPID),
		Name:      p.Name,
		State:     p.state.String(),
		Priority:  p.Priority,
		Quantum:   p.Quantum,
		CPUTime:   p.cpuTime,
		CreatedAt: p.CreatedAt,
	}
}
