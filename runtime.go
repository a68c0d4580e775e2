package kcore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/viant/kcore/internal/clock"
	"github.com/viant/kcore/internal/idgen"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/runtime/process"
	"github.com/viant/kcore/service/allocator"
	"github.com/viant/kcore/service/dao"
	"github.com/viant/kcore/service/messaging"
	"github.com/viant/kcore/service/messaging/fifo"
	"github.com/viant/kcore/service/messaging/namespace"
	"github.com/viant/kcore/service/messaging/pfifo"
	"github.com/viant/kcore/service/scheduler"
	"github.com/viant/kcore/service/semaphore"
	"github.com/viant/kcore/stats"
	"github.com/viant/kcore/tracing"
)

// Runtime exposes kernel operations; lifecycle operations are traced.
type Runtime struct {
	logger     *slog.Logger
	stats      *stats.Stats
	allocator  *allocator.Service
	scheduler  *scheduler.Service
	semaphores *semaphore.Registry
	namespace  *namespace.Service
	snapshots  dao.Service[string, model.Snapshot]
}

// Spawn creates a READY process
func (r *Runtime) Spawn(ctx context.Context, entry process.Entry, priority uint32, options ...process.Option) (p *process.Process, err error) {
	ctx, span := tracing.StartSpan(ctx, "kcore.spawn", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	span.WithInt("priority", int64(priority))
	if p, err = r.scheduler.Spawn(ctx, entry, priority, options...); err != nil {
		return nil, err
	}
	span.WithInt("pid", int64(p.PID))
	return p, nil
}

// Terminate stops a process. Called on the caller itself it does not return.
func (r *Runtime) Terminate(ctx context.Context, p *process.Process) (err error) {
	_, span := tracing.StartSpan(ctx, "kcore.terminate", tracing.KindInternal)
	if p != nil {
		span.WithInt("pid", int64(p.PID))
	}
	if self := process.FromContext(ctx); self != nil && self == p {
		tracing.EndSpan(span, nil)
		return r.scheduler.Terminate(ctx, p)
	}
	err = r.scheduler.Terminate(ctx, p)
	tracing.EndSpan(span, err)
	return err
}

// Lookup returns a live process by PID
func (r *Runtime) Lookup(pid process.PID) (*process.Process, error) {
	return r.scheduler.Lookup(pid)
}

// Yield hands the core to the next ready process of equal or higher priority
func (r *Runtime) Yield(ctx context.Context) error {
	return r.scheduler.Yield(ctx)
}

// Run drives the core from the calling goroutine until every process exits
func (r *Runtime) Run(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "kcore.run", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	return r.scheduler.Run(ctx)
}

// CreateSemaphore creates a registered semaphore
func (r *Runtime) CreateSemaphore(ctx context.Context, initial, limit uint32) (sem *semaphore.Semaphore, err error) {
	_, span := tracing.StartSpan(ctx, "kcore.semaphore.create", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	if sem, err = r.semaphores.Create(initial, limit); err != nil {
		return nil, err
	}
	span.WithInt("semaphore", int64(sem.ID()))
	return sem, nil
}

// DestroySemaphore destroys a registered semaphore, failing its waiters
func (r *Runtime) DestroySemaphore(id semaphore.ID) error {
	return r.semaphores.Delete(id)
}

// CreateFIFO creates a named byte-stream channel
func (r *Runtime) CreateFIFO(ctx context.Context, name string, perm messaging.Mode, size int) (ch *fifo.Channel, err error) {
	ctx, span := tracing.StartSpan(ctx, "kcore.fifo.create", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"channel": name, "perm": perm.String()}).WithInt("size", int64(size))
	return r.namespace.CreateFIFO(ctx, name, perm, size)
}

// OpenFIFO opens a named byte-stream channel
func (r *Runtime) OpenFIFO(ctx context.Context, name string, mode messaging.Mode) (*fifo.Handle, error) {
	return r.namespace.OpenFIFO(ctx, name, mode)
}

// CreatePriority creates a named priority channel
func (r *Runtime) CreatePriority(ctx context.Context, name string, perm messaging.Mode, maxSize int) (ch *pfifo.Channel, err error) {
	ctx, span := tracing.StartSpan(ctx, "kcore.pfifo.create", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"channel": name, "perm": perm.String()}).WithInt("maxSize", int64(maxSize))
	return r.namespace.CreatePriority(ctx, name, perm, maxSize)
}

// OpenPriority opens a named priority channel
func (r *Runtime) OpenPriority(ctx context.Context, name string, mode messaging.Mode) (*pfifo.Handle, error) {
	return r.namespace.OpenPriority(ctx, name, mode)
}

// Unlink removes a channel name
func (r *Runtime) Unlink(ctx context.Context, name string) (err error) {
	_, span := tracing.StartSpan(ctx, "kcore.unlink", tracing.KindInternal)
	defer func() { tracing.EndSpan(span, err) }()
	span.WithAttributes(map[string]string{"channel": name})
	return r.namespace.Unlink(name)
}

// Snapshot captures processes, semaphores, channels and counters
func (r *Runtime) Snapshot(ctx context.Context) *model.Snapshot {
	_, span := tracing.StartSpan(ctx, "kcore.snapshot", tracing.KindInternal)
	defer tracing.EndSpan(span, nil)
	ret := &model.Snapshot{
		ID:         idgen.NewWithPrefix("snapshot"),
		TakenAt:    clock.Now(),
		Counters:   r.stats.Counters(),
		AllocInUse: r.allocator.InUse(),
		Channels:   r.namespace.List(),
	}
	if current := r.scheduler.Current(); current != nil {
		ret.Current = uint32(current.PID)
	}
	for _, p := range r.scheduler.Processes() {
		ret.Processes = append(ret.Processes, p.Info())
	}
	sort.Slice(ret.Processes, func(i, j int) bool { return ret.Processes[i].PID < ret.Processes[j].PID })
	for _, sem := range r.semaphores.List() {
		ret.Semaphores = append(ret.Semaphores, sem.Info())
	}
	span.WithInt("processes", int64(len(ret.Processes)))
	return ret
}

// SaveSnapshot captures and persists a snapshot
func (r *Runtime) SaveSnapshot(ctx context.Context) (*model.Snapshot, error) {
	snapshot := r.Snapshot(ctx)
	if err := r.snapshots.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	r.logger.Info("snapshot saved", "id", snapshot.ID, "processes", len(snapshot.Processes), "channels", len(snapshot.Channels))
	return snapshot, nil
}

// LoadSnapshot loads a persisted snapshot
func (r *Runtime) LoadSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	return r.snapshots.Load(ctx, id)
}

// Snapshots lists persisted snapshots
func (r *Runtime) Snapshots(ctx context.Context) ([]*model.Snapshot, error) {
	return r.snapshots.List(ctx)
}

// Scheduler returns the scheduler
func (r *Runtime) Scheduler() *scheduler.Service {
	return r.scheduler
}

// Semaphores returns the semaphore registry
func (r *Runtime) Semaphores() *semaphore.Registry {
	return r.semaphores
}

// Namespace returns the channel namespace
func (r *Runtime) Namespace() *namespace.Service {
	return r.namespace
}

// Allocator returns the allocator
func (r *Runtime) Allocator() *allocator.Service {
	return r.allocator
}

// Logger returns the shared logger
func (r *Runtime) Logger() *slog.Logger {
	return r.logger
}

// Stats returns the kernel counters
func (r *Runtime) Stats() *stats.Stats {
	return r.stats
}
