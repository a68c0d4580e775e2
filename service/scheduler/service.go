// Package scheduler implements a priority-based cooperative scheduler for a
// single logical core.
//
// Every process is backed by a goroutine, but only the goroutine of the
// RUNNING process executes; the others are parked until the scheduler hands
// them the core. Process entries receive a context that identifies the
// calling process and must pass it to every scheduler, semaphore and channel
// call. A process terminated by someone else while it holds the core stops at
// its next such call.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/internal/clock"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/runtime/process"
	"github.com/viant/kcore/service/allocator"
	"github.com/viant/kcore/service/dao"
	"github.com/viant/kcore/service/dao/process/memory"
	"github.com/viant/kcore/stats"
)

// IdlePID is the PID of the idle process
const IdlePID process.PID = 1

// Service represents the scheduler
type Service struct {
	config    Config
	logger    *slog.Logger
	allocator *allocator.Service
	stats     *stats.Stats
	table     *memory.Service

	mu         sync.Mutex
	ready      readyQueue
	current    *process.Process
	idle       *process.Process
	nextPID    process.PID
	running    bool
	idleParked bool
	kick       chan struct{}
}

// Spawn creates a READY process running entry with the supplied priority.
// The spawning process, if ctx identifies one, becomes the parent.
func (s *Service) Spawn(ctx context.Context, entry process.Entry, priority uint32, options ...process.Option) (*process.Process, error) {
	if entry == nil {
		return nil, fmt.Errorf("failed to spawn: nil entry: %w", errs.ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	p := process.New(s.nextPID, entry, priority, s.config.Quantum, options...)
	if parent := process.FromContext(ctx); parent != nil {
		p.ParentPID = parent.PID
	}
	if err := s.table.Save(ctx, p); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to spawn: %w: %w", errs.ErrOutOfResources, err)
	}
	stack, err := s.allocator.Alloc(s.config.StackSize)
	if err != nil {
		_ = s.table.Delete(ctx, p.PID)
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to spawn: %w: %w", errs.ErrOutOfResources, err)
	}
	p.SetStack(stack)
	s.nextPID++
	s.ready.push(p)
	s.mu.Unlock()

	s.stats.Update(stats.Delta{Spawned: 1})
	s.logger.Debug("process spawned", "pid", p.PID, "name", p.Name, "priority", p.Priority)
	s.notify()
	go s.launch(process.WithProcess(context.WithoutCancel(ctx), p), p)
	return p, nil
}

func (s *Service) launch(ctx context.Context, p *process.Process) {
	defer s.exit(p)
	if p.Park(nil) != process.WakeResumed {
		return
	}
	p.Entry()(ctx)
}

// exit retires a process whose entry returned, panicked or was killed.
func (s *Service) exit(p *process.Process) {
	if r := recover(); r != nil {
		s.logger.Error("process panicked", "pid", p.PID, "panic", r)
	}
	s.mu.Lock()
	if p.State() != process.StateTerminated {
		s.retireLocked(p)
		s.stats.Update(stats.Delta{Terminated: 1})
		s.logger.Debug("process exited", "pid", p.PID)
	}
	if s.current != p {
		s.mu.Unlock()
		return
	}
	s.dispatch(p, nil)
}

// dispatch hands the core to the head of the ready queue, or to the idle
// process when the queue is empty and prev cannot continue. It is called by
// the goroutine of prev with s.mu held and releases it. Unless prev is
// terminated, it returns once prev is given the core again; it returns false
// when cancel closed first.
func (s *Service) dispatch(prev *process.Process, cancel <-chan struct{}) bool {
	next := s.ready.pop()
	if next == nil {
		if prev.State() == process.StateRunning {
			s.mu.Unlock()
			return true
		}
		next = s.idle
	}
	now := clock.Now()
	if next == prev {
		prev.SetState(process.StateRunning)
		s.mu.Unlock()
		return true
	}
	prev.Account(now)
	next.SetState(process.StateRunning)
	next.MarkDispatched(now)
	s.current = next
	if next == s.idle {
		s.idleParked = false
	}
	parks := prev.State() != process.StateTerminated
	s.mu.Unlock()

	s.stats.Update(stats.Delta{ContextSwitches: 1})
	s.logger.Debug("context switch", "from", prev.PID, "to", next.PID)
	next.Resume()
	if !parks {
		return true
	}
	switch prev.Park(cancel) {
	case process.WakeKilled:
		runtime.Goexit()
	case process.WakeCancelled:
		return false
	}
	return true
}

// caller returns the process identified by ctx. Calls made on behalf of a
// terminated process do not return: its goroutine exits here.
func (s *Service) caller(ctx context.Context) (*process.Process, error) {
	p := process.FromContext(ctx)
	if p == nil {
		return nil, fmt.Errorf("no calling process in context: %w", errs.ErrInvalidProcess)
	}
	if p.State() == process.StateTerminated {
		runtime.Goexit()
	}
	return p, nil
}

// Schedule requeues the caller at its priority and hands the core to the
// head of the ready queue. With nothing else ready the caller keeps running.
func (s *Service) Schedule(ctx context.Context) error {
	p, err := s.caller(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.current != p {
		s.mu.Unlock()
		return fmt.Errorf("schedule: pid %d is not running: %w", p.PID, errs.ErrInvalidProcess)
	}
	if s.ready.len() == 0 {
		s.mu.Unlock()
		return nil
	}
	p.SetState(process.StateReady)
	s.ready.push(p)
	s.dispatch(p, nil)
	return nil
}

// preempt gives the core to the ready head only when it outranks the caller.
func (s *Service) preempt(ctx context.Context) error {
	p, err := s.caller(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.current != p {
		s.mu.Unlock()
		return fmt.Errorf("tick: pid %d is not running: %w", p.PID, errs.ErrInvalidProcess)
	}
	head := s.ready.peek()
	if head == nil || head.Priority <= p.Priority {
		s.mu.Unlock()
		return nil
	}
	p.SetState(process.StateReady)
	s.ready.push(p)
	s.dispatch(p, nil)
	return nil
}

// Yield moves the caller behind every ready process of equal or higher
// priority and switches to the head of the queue. With nothing else ready
// the caller keeps running.
func (s *Service) Yield(ctx context.Context) error {
	p, err := s.caller(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.current != p {
		s.mu.Unlock()
		return fmt.Errorf("yield: pid %d is not running: %w", p.PID, errs.ErrInvalidProcess)
	}
	p.SetState(process.StateReady)
	s.ready.push(p)
	s.stats.Update(stats.Delta{Yields: 1})
	s.dispatch(p, nil)
	return nil
}

// Tick is the cooperative timer: once the caller has used up its quantum it
// yields, otherwise only a higher priority process can take the core.
func (s *Service) Tick(ctx context.Context) error {
	p, err := s.caller(ctx)
	if err != nil {
		return err
	}
	if p.SliceElapsed(clock.Now()) >= p.Quantum {
		return s.Yield(ctx)
	}
	return s.preempt(ctx)
}

// Block moves target to BLOCKED. A READY target leaves the ready queue, a
// process blocking itself gives up the core until unblocked. Blocking a
// process that is already blocked has no effect.
func (s *Service) Block(ctx context.Context, target *process.Process) error {
	caller := process.FromContext(ctx)
	if caller != nil {
		if _, err := s.caller(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if !s.knownLocked(target) {
		s.mu.Unlock()
		return fmt.Errorf("block: %w", errs.ErrInvalidProcess)
	}
	switch target.State() {
	case process.StateBlocked:
		s.mu.Unlock()
		return nil
	case process.StateReady:
		s.ready.remove(target)
		target.SetState(process.StateBlocked)
		s.mu.Unlock()
		s.stats.Update(stats.Delta{Blocked: 1})
		return nil
	}
	if target != caller {
		s.mu.Unlock()
		return fmt.Errorf("block: pid %d is running and can only block itself: %w", target.PID, errs.ErrInvalidProcess)
	}
	target.SetState(process.StateBlocked)
	s.stats.Update(stats.Delta{Blocked: 1})
	s.dispatch(target, nil)
	target.TakeWakeErr()
	return nil
}

// Unblock moves a BLOCKED process to READY. A READY or RUNNING process is
// left untouched, so a process is never queued twice.
func (s *Service) Unblock(target *process.Process) error {
	return s.UnblockWith(target, nil)
}

// UnblockWith unblocks target, delivering reason as the result of the park
// it is suspended in. A target parked on a wait set leaves it, so the caller
// must not hold that wait set's lock.
func (s *Service) UnblockWith(target *process.Process, reason error) error {
	s.mu.Lock()
	if !s.knownLocked(target) {
		s.mu.Unlock()
		return fmt.Errorf("unblock: %w", errs.ErrInvalidProcess)
	}
	waiter := target.WaitingOn()
	woken := s.wakeLocked(target, reason)
	s.mu.Unlock()
	if !woken {
		return nil
	}
	if waiter != nil {
		waiter.Cancel(target)
	}
	s.notify()
	return nil
}

// Wake unblocks target only if it is parked on waiter. It reports whether
// the process was woken; wait sets use it to skip stale entries.
func (s *Service) Wake(target *process.Process, waiter process.Waiter, reason error) bool {
	s.mu.Lock()
	if !s.knownLocked(target) || target.State() != process.StateBlocked || target.WaitingOn() != waiter {
		s.mu.Unlock()
		return false
	}
	woken := s.wakeLocked(target, reason)
	s.mu.Unlock()
	if woken {
		s.notify()
	}
	return woken
}

func (s *Service) wakeLocked(target *process.Process, reason error) bool {
	if target.State() != process.StateBlocked {
		return false
	}
	if reason != nil {
		target.SetWakeErr(reason)
	}
	target.SetWaitingOn(nil)
	target.SetState(process.StateReady)
	s.ready.push(target)
	s.stats.Update(stats.Delta{Unblocked: 1})
	return true
}

// Park blocks the calling process on waiter. release is invoked once the
// caller is marked BLOCKED, so a wakeup issued right after it cannot be
// lost; it is always invoked exactly once. Park returns the reason supplied
// with the wakeup, or ctx.Err() when ctx ends first; in that case waiter is
// asked to drop the caller before it waits for the core again.
func (s *Service) Park(ctx context.Context, waiter process.Waiter, release func()) error {
	p := process.FromContext(ctx)
	if p == nil {
		release()
		return fmt.Errorf("park: no calling process in context: %w", errs.ErrInvalidProcess)
	}
	s.mu.Lock()
	if p.State() == process.StateTerminated {
		s.mu.Unlock()
		release()
		runtime.Goexit()
	}
	if s.current != p {
		s.mu.Unlock()
		release()
		return fmt.Errorf("park: pid %d is not running: %w", p.PID, errs.ErrInvalidProcess)
	}
	p.TakeWakeErr()
	p.SetWaitingOn(waiter)
	p.SetState(process.StateBlocked)
	release()
	s.stats.Update(stats.Delta{Blocked: 1})

	if !s.dispatch(p, ctx.Done()) {
		// ctx ended while blocked: requeue and wait for the core
		s.mu.Lock()
		woken := p.State() == process.StateBlocked && s.wakeLocked(p, ctx.Err())
		s.mu.Unlock()
		if woken {
			waiter.Cancel(p)
			s.notify()
		}
		if p.Park(nil) == process.WakeKilled {
			runtime.Goexit()
		}
	}
	return p.TakeWakeErr()
}

// Terminate retires target: it leaves the ready queue and any wait set, its
// stack is released and its PID becomes invalid. A process terminating
// itself does not return.
func (s *Service) Terminate(ctx context.Context, target *process.Process) error {
	caller := process.FromContext(ctx)
	s.mu.Lock()
	if !s.knownLocked(target) {
		s.mu.Unlock()
		return fmt.Errorf("terminate: %w", errs.ErrInvalidProcess)
	}
	waiter := target.WaitingOn()
	self := target == caller && s.current == target
	s.retireLocked(target)
	s.stats.Update(stats.Delta{Terminated: 1})
	s.logger.Debug("process terminated", "pid", target.PID)
	if self {
		s.dispatch(target, nil)
	} else {
		s.mu.Unlock()
	}
	if waiter != nil {
		waiter.Cancel(target)
	}
	if self {
		runtime.Goexit()
	}
	return nil
}

// retireLocked marks p terminated and releases its resources. p keeps the
// core, if it holds it, until it reaches the scheduler again.
func (s *Service) retireLocked(p *process.Process) {
	p.SetState(process.StateTerminated)
	p.SetWaitingOn(nil)
	s.ready.remove(p)
	_ = s.table.Delete(context.Background(), p.PID)
	if stack := p.Stack(); stack != nil {
		if err := s.allocator.Free(stack); err != nil {
			s.logger.Warn("failed to release stack", "pid", p.PID, "error", err)
		}
		p.SetStack(nil)
	}
	p.Kill()
}

func (s *Service) knownLocked(p *process.Process) bool {
	if p == nil || p == s.idle {
		return false
	}
	loaded, err := s.table.Load(context.Background(), p.PID)
	return err == nil && loaded == p
}

func (s *Service) notify() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Current returns the running process
func (s *Service) Current() *process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Idle returns the idle process
func (s *Service) Idle() *process.Process {
	return s.idle
}

// Lookup returns a live process by PID
func (s *Service) Lookup(pid process.PID) (*process.Process, error) {
	p, err := s.table.Load(context.Background(), pid)
	if err != nil {
		return nil, fmt.Errorf("pid %d: %w", pid, errs.ErrInvalidProcess)
	}
	return p, nil
}

// Processes lists live processes ordered by PID, optionally filtered by state
func (s *Service) Processes(states ...process.State) []*process.Process {
	var parameters []*dao.Parameter
	if len(states) > 0 {
		values := make([]string, 0, len(states))
		for _, state := range states {
			values = append(values, state.String())
		}
		parameters = append(parameters, dao.NewParameter(dao.StateParameter, values...))
	}
	ret, _ := s.table.List(context.Background(), parameters...)
	return ret
}

// ReadyLen returns the number of queued READY processes
func (s *Service) ReadyLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.len()
}

// ReadyPIDs returns the ready queue in dispatch order
func (s *Service) ReadyPIDs() []process.PID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready.pids()
}

// Stats returns the scheduler counters
func (s *Service) Stats() *stats.Stats {
	return s.stats
}

// Allocator returns the allocator backing process stacks
func (s *Service) Allocator() *allocator.Service {
	return s.allocator
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.config
}

// New creates a scheduler holding only the idle process
func New(options ...Option) *Service {
	ret := &Service{
		config:  DefaultConfig(),
		nextPID: IdlePID + 1,
		kick:    make(chan struct{}, 1),
	}
	for _, opt := range options {
		opt(ret)
	}
	ret.config.applyDefaults()
	ret.logger = logger.OrDefault(ret.logger)
	if ret.allocator == nil {
		ret.allocator = allocator.New(allocator.DefaultConfig())
	}
	if ret.stats == nil {
		ret.stats = stats.New(clock.Now(), nil)
	}
	ret.table = memory.New(ret.config.MaxProcesses)
	ret.idle = process.New(IdlePID, nil, 0, ret.config.Quantum, process.WithName("idle"))
	ret.idle.SetState(process.StateRunning)
	_ = ret.table.Save(context.Background(), ret.idle)
	ret.current = ret.idle
	return ret
}
