// Package pfifo implements the priority channel: four FIFO lanes sharing one
// byte budget. Producers never block; consumers wait on a semaphore counting
// queued messages and always take from the most urgent non-empty lane.
package pfifo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/gammazero/deque"
	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/internal/clock"
	"github.com/viant/kcore/internal/idgen"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/service/allocator"
	"github.com/viant/kcore/service/messaging"
	"github.com/viant/kcore/service/semaphore"
)

// Option customises a channel
type Option func(*Channel)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithReleaseHook registers a function called once the channel is released
func WithReleaseHook(hook func(*Channel)) Option {
	return func(c *Channel) {
		c.onRelease = append(c.onRelease, hook)
	}
}

type entry struct {
	id       string
	priority messaging.Priority
	block    *allocator.Block
	sentAt   time.Time
}

// Channel is a bounded priority message channel
type Channel struct {
	name      string
	perm      messaging.Mode
	maxSize   int
	alloc     *allocator.Service
	registry  *semaphore.Registry
	logger    *slog.Logger
	onRelease []func(*Channel)
	endpoints messaging.Endpoints

	dataAvailable *semaphore.Semaphore
	access        *semaphore.Semaphore

	// guarded by access
	lanes [messaging.Priorities]deque.Deque[*entry]

	laneCounts [messaging.Priorities]atomic.Int64
	totalSize  atomic.Int64
	closedRd   atomic.Bool
}

// New creates a channel holding at most maxSize payload bytes
func New(registry *semaphore.Registry, alloc *allocator.Service, name string, perm messaging.Mode, maxSize int, options ...Option) (*Channel, error) {
	if maxSize <= 0 || int64(maxSize) > math.MaxUint32 {
		return nil, fmt.Errorf("priority fifo %s: max size %d: %w", name, maxSize, errs.ErrInvalidArgument)
	}
	ret := &Channel{name: name, perm: perm, maxSize: maxSize, alloc: alloc, registry: registry}
	for _, opt := range options {
		opt(ret)
	}
	ret.logger = logger.OrDefault(ret.logger)
	var err error
	if ret.dataAvailable, err = registry.Create(0, uint32(maxSize)); err == nil {
		ret.access, err = registry.Create(1, 1)
	}
	if err != nil {
		ret.destroy()
		return nil, fmt.Errorf("failed to create priority fifo %s: %w", name, err)
	}
	return ret, nil
}

func (c *Channel) destroy() {
	for _, sem := range []*semaphore.Semaphore{c.dataAvailable, c.access} {
		if sem != nil {
			_ = c.registry.Delete(sem.ID())
		}
	}
	for i := range c.lanes {
		c.dropLane(messaging.Priority(i))
	}
}

// dropLane frees every queued message of a lane and returns how many there
// were. The caller holds access or owns the channel exclusively.
func (c *Channel) dropLane(priority messaging.Priority) int {
	lane := &c.lanes[priority]
	count := lane.Len()
	for lane.Len() > 0 {
		e := lane.PopFront()
		c.totalSize.Add(-int64(e.block.Size()))
		if err := c.alloc.Free(e.block); err != nil {
			c.logger.Warn("failed to release message", "name", c.name, "id", e.id, "error", err)
		}
	}
	c.laneCounts[priority].Store(0)
	return count
}

// Name returns the channel name
func (c *Channel) Name() string {
	return c.name
}

// Perm returns the channel permissions
func (c *Channel) Perm() messaging.Mode {
	return c.perm
}

// MaxSize returns the payload byte budget
func (c *Channel) MaxSize() int {
	return c.maxSize
}

// Open returns a handle for mode
func (c *Channel) Open(mode messaging.Mode) (*Handle, error) {
	if err := messaging.CheckOpen(c.perm, mode); err != nil {
		return nil, fmt.Errorf("open priority fifo %s: %w", c.name, err)
	}
	transition, err := c.endpoints.Open(mode)
	if err != nil {
		return nil, fmt.Errorf("open priority fifo %s: %w", c.name, err)
	}
	if transition.FirstReader {
		c.closedRd.Store(false)
	}
	if transition.FirstWriter {
		c.dataAvailable.ClearInterrupt()
	}
	return &Handle{channel: c, mode: mode}, nil
}

func (c *Channel) close(mode messaging.Mode) {
	transition := c.endpoints.Close(mode)
	if transition.LastReader {
		c.closedRd.Store(true)
	}
	if transition.LastWriter {
		c.dataAvailable.Interrupt(fmt.Errorf("priority fifo %s has no writers: %w", c.name, errs.ErrClosed))
	}
	if transition.Release {
		c.release()
	}
}

// Release frees the channel now if no handle is open; otherwise it is freed
// when the last handle closes.
func (c *Channel) Release() {
	if c.endpoints.Release() {
		c.release()
	}
}

func (c *Channel) release() {
	c.destroy()
	c.logger.Info("priority fifo released", "name", c.name)
	for _, hook := range c.onRelease {
		hook(c)
	}
}

// Released reports whether the channel resources were freed
func (c *Channel) Released() bool {
	return c.endpoints.Released()
}

// Send copies payload to the tail of its lane. A payload that does not fit
// the remaining budget fails with errs.ErrChannelFull without side effects.
func (c *Channel) Send(ctx context.Context, payload []byte, priority messaging.Priority) (*messaging.Message, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("priority fifo %s: %v: %w", c.name, priority, errs.ErrInvalidArgument)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("priority fifo %s: empty payload: %w", c.name, errs.ErrInvalidArgument)
	}
	if c.closedRd.Load() {
		return nil, fmt.Errorf("priority fifo %s has no readers: %w", c.name, errs.ErrClosed)
	}
	if err := c.access.Wait(ctx); err != nil {
		return nil, err
	}
	if c.totalSize.Load()+int64(len(payload)) > int64(c.maxSize) {
		_ = c.access.Signal()
		return nil, fmt.Errorf("priority fifo %s: %d of %d bytes used, %d more: %w", c.name, c.totalSize.Load(), c.maxSize, len(payload), errs.ErrChannelFull)
	}
	block, err := c.alloc.Alloc(len(payload))
	if err != nil {
		_ = c.access.Signal()
		return nil, fmt.Errorf("priority fifo %s: %w", c.name, err)
	}
	copy(block.Bytes(), payload)
	e := &entry{id: idgen.New(), priority: priority, block: block, sentAt: clock.Now()}
	c.lanes[priority].PushBack(e)
	c.laneCounts[priority].Add(1)
	c.totalSize.Add(int64(len(payload)))
	_ = c.access.Signal()
	_ = c.dataAvailable.Signal()
	return &messaging.Message{ID: e.id, Priority: priority, SentAt: e.sentAt}, nil
}

// Recv takes the oldest message of the most urgent non-empty lane, blocking
// while the channel is empty. Once every writer has gone and the lanes are
// drained it fails with errs.ErrClosed.
func (c *Channel) Recv(ctx context.Context) (*messaging.Message, error) {
	return c.recv(ctx, false)
}

// TryRecv is Recv failing with errs.ErrWouldBlock instead of blocking
func (c *Channel) TryRecv(ctx context.Context) (*messaging.Message, error) {
	return c.recv(ctx, true)
}

func (c *Channel) recv(ctx context.Context, nonBlock bool) (*messaging.Message, error) {
	for {
		var err error
		if nonBlock {
			err = c.dataAvailable.TryWait()
		} else {
			err = c.dataAvailable.Wait(ctx)
		}
		if err != nil {
			return nil, err
		}
		if err = c.access.Wait(ctx); err != nil {
			_ = c.dataAvailable.Signal()
			return nil, err
		}
		e := c.popLocked()
		_ = c.access.Signal()
		if e == nil {
			// the unit belonged to a flushed message
			if nonBlock {
				return nil, errs.ErrWouldBlock
			}
			continue
		}
		data := make([]byte, e.block.Size())
		copy(data, e.block.Bytes())
		if err = c.alloc.Free(e.block); err != nil {
			c.logger.Warn("failed to release message", "name", c.name, "id", e.id, "error", err)
		}
		return &messaging.Message{ID: e.id, Priority: e.priority, Data: data, SentAt: e.sentAt}, nil
	}
}

func (c *Channel) popLocked() *entry {
	for i := messaging.Priorities - 1; i >= 0; i-- {
		lane := &c.lanes[i]
		if lane.Len() == 0 {
			continue
		}
		e := lane.PopFront()
		c.laneCounts[i].Add(-1)
		c.totalSize.Add(-int64(e.block.Size()))
		return e
	}
	return nil
}

// LaneCount returns the number of queued messages of a lane without blocking
func (c *Channel) LaneCount(priority messaging.Priority) (int, error) {
	if !priority.Valid() {
		return 0, fmt.Errorf("priority fifo %s: %v: %w", c.name, priority, errs.ErrInvalidArgument)
	}
	return int(c.laneCounts[priority].Load()), nil
}

// Flush discards a lane and releases its storage
func (c *Channel) Flush(ctx context.Context, priority messaging.Priority) (int, error) {
	if !priority.Valid() {
		return 0, fmt.Errorf("priority fifo %s: %v: %w", c.name, priority, errs.ErrInvalidArgument)
	}
	if err := c.access.Wait(ctx); err != nil {
		return 0, err
	}
	count := c.dropLane(priority)
	for i := 0; i < count; i++ {
		if err := c.dataAvailable.TryWait(); err != nil && !errors.Is(err, errs.ErrWouldBlock) && !errors.Is(err, errs.ErrClosed) {
			c.logger.Warn("failed to settle flushed message", "name", c.name, "error", err)
		}
	}
	_ = c.access.Signal()
	if count > 0 {
		c.logger.Debug("priority fifo lane flushed", "name", c.name, "priority", priority.String(), "messages", count)
	}
	return count, nil
}

// Stat returns the channel status
func (c *Channel) Stat() *model.ChannelInfo {
	readers, writers := c.endpoints.Counts()
	ret := &model.ChannelInfo{
		Name:       c.name,
		Kind:       string(messaging.KindPriority),
		Size:       int(c.totalSize.Load()),
		Capacity:   c.maxSize,
		Readers:    readers,
		Writers:    writers,
		LaneCounts: make([]int, messaging.Priorities),
	}
	for i := range c.laneCounts {
		ret.LaneCounts[i] = int(c.laneCounts[i].Load())
		ret.Messages += ret.LaneCounts[i]
	}
	if c.dataAvailable != nil {
		ret.BlockedReaders = c.dataAvailable.Waiters()
	}
	return ret
}
