// Package fifo implements the plain bounded channel: a byte ring buffer
// coordinated by three semaphores. freeSpace and dataAvailable count bytes,
// access serialises the ring.
package fifo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/service/allocator"
	"github.com/viant/kcore/service/messaging"
	"github.com/viant/kcore/service/semaphore"
)

// Config represents plain channel configuration
type Config struct {
	// Size is the default ring buffer size in bytes.
	Size int `json:"fifoSize" yaml:"fifoSize"`
}

// DefaultConfig returns the default plain channel configuration
func DefaultConfig() Config {
	return Config{Size: 4096}
}

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

// Channel is a bounded byte FIFO
type Channel struct {
	name      string
	perm      messaging.Mode
	size      int
	alloc     *allocator.Service
	registry  *semaphore.Registry
	logger    *slog.Logger
	onRelease []func(*Channel)
	endpoints messaging.Endpoints

	buffer        *allocator.Block
	freeSpace     *semaphore.Semaphore
	dataAvailable *semaphore.Semaphore
	access        *semaphore.Semaphore

	// guarded by access
	readPos  int
	writePos int

	used     atomic.Int64
	closedRd atomic.Bool
}

// New creates a channel backed by a size byte ring taken from alloc
func New(registry *semaphore.Registry, alloc *allocator.Service, name string, perm messaging.Mode, size int, options ...Option) (*Channel, error) {
	if size <= 0 || int64(size) > math.MaxUint32 {
		return nil, fmt.Errorf("fifo %s: size %d: %w", name, size, errs.ErrInvalidArgument)
	}
	ret := &Channel{name: name, perm: perm, size: size, alloc: alloc, registry: registry}
	for _, opt := range options {
		opt(ret)
	}
	ret.logger = logger.OrDefault(ret.logger)
	if err := ret.init(); err != nil {
		ret.destroy()
		return nil, fmt.Errorf("failed to create fifo %s: %w", name, err)
	}
	return ret, nil
}

func (c *Channel) init() (err error) {
	if c.buffer, err = c.alloc.Alloc(c.size); err != nil {
		return err
	}
	units := uint32(c.size)
	if c.freeSpace, err = c.registry.Create(units, units); err != nil {
		return err
	}
	if c.dataAvailable, err = c.registry.Create(0, units); err != nil {
		return err
	}
	c.access, err = c.registry.Create(1, 1)
	return err
}

func (c *Channel) destroy() {
	for _, sem := range []*semaphore.Semaphore{c.freeSpace, c.dataAvailable, c.access} {
		if sem != nil {
			_ = c.registry.Delete(sem.ID())
		}
	}
	if c.buffer != nil {
		if err := c.alloc.Free(c.buffer); err != nil {
			c.logger.Warn("failed to release fifo buffer", "name", c.name, "error", err)
		}
		c.buffer = nil
	}
}

// Name returns the channel name
func (c *Channel) Name() string {
	return c.name
}

// Perm returns the channel permissions
func (c *Channel) Perm() messaging.Mode {
	return c.perm
}

// Open returns a handle for mode. Read and write modes must be permitted by
// the channel permissions.
func (c *Channel) Open(mode messaging.Mode) (*Handle, error) {
	if err := messaging.CheckOpen(c.perm, mode); err != nil {
		return nil, fmt.Errorf("open fifo %s: %w", c.name, err)
	}
	transition, err := c.endpoints.Open(mode)
	if err != nil {
		return nil, fmt.Errorf("open fifo %s: %w", c.name, err)
	}
	if transition.FirstReader {
		c.closedRd.Store(false)
		c.freeSpace.ClearInterrupt()
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
		c.freeSpace.Interrupt(fmt.Errorf("fifo %s has no readers: %w", c.name, errs.ErrClosed))
	}
	if transition.LastWriter {
		c.dataAvailable.Interrupt(fmt.Errorf("fifo %s has no writers: %w", c.name, errs.ErrClosed))
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
	c.logger.Info("fifo released", "name", c.name)
	for _, hook := range c.onRelease {
		hook(c)
	}
}

// Released reports whether the channel resources were freed
func (c *Channel) Released() bool {
	return c.endpoints.Released()
}

func (c *Channel) acquire(ctx context.Context, sem *semaphore.Semaphore, nonBlock bool) error {
	if nonBlock {
		return sem.TryWait()
	}
	return sem.Wait(ctx)
}

// read fills p; it returns fewer bytes without error only when every writer
// has gone, or when nonBlock is set and no more data is buffered. Any other
// failure is returned with the bytes already read.
func (c *Channel) read(ctx context.Context, p []byte, nonBlock bool) (int, error) {
	n := 0
	for n < len(p) {
		if err := c.acquire(ctx, c.dataAvailable, nonBlock); err != nil {
			switch {
			case errors.Is(err, errs.ErrClosed) && n == 0:
				return 0, io.EOF
			case errors.Is(err, errs.ErrClosed), errors.Is(err, errs.ErrWouldBlock) && n > 0:
				return n, nil
			}
			return n, err
		}
		if err := c.access.Wait(ctx); err != nil {
			_ = c.dataAvailable.Signal()
			return n, err
		}
		units := c.claim(c.dataAvailable, len(p)-n, c.size-c.readPos)
		copy(p[n:n+units], c.buffer.Bytes()[c.readPos:c.readPos+units])
		c.readPos = (c.readPos + units) % c.size
		c.used.Add(-int64(units))
		_ = c.access.Signal()
		for i := 0; i < units; i++ {
			_ = c.freeSpace.Signal()
		}
		n += units
	}
	return n, nil
}

// write moves p into the ring; it fails with errs.ErrClosed once every
// reader has gone.
func (c *Channel) write(ctx context.Context, p []byte, nonBlock bool) (int, error) {
	n := 0
	for n < len(p) {
		if c.closedRd.Load() {
			return n, fmt.Errorf("fifo %s has no readers: %w", c.name, errs.ErrClosed)
		}
		if err := c.acquire(ctx, c.freeSpace, nonBlock); err != nil {
			return n, err
		}
		if err := c.access.Wait(ctx); err != nil {
			_ = c.freeSpace.Signal()
			return n, err
		}
		units := c.claim(c.freeSpace, len(p)-n, c.size-c.writePos)
		copy(c.buffer.Bytes()[c.writePos:c.writePos+units], p[n:n+units])
		c.writePos = (c.writePos + units) % c.size
		c.used.Add(int64(units))
		_ = c.access.Signal()
		for i := 0; i < units; i++ {
			_ = c.dataAvailable.Signal()
		}
		n += units
	}
	return n, nil
}

// claim extends an already acquired unit with as many immediately available
// ones as fit before wraparound.
func (c *Channel) claim(sem *semaphore.Semaphore, want, contiguous int) int {
	limit := min(want, contiguous)
	units := 1
	for units < limit && sem.TryWait() == nil {
		units++
	}
	return units
}

// Stat returns the channel status
func (c *Channel) Stat() *model.ChannelInfo {
	readers, writers := c.endpoints.Counts()
	ret := &model.ChannelInfo{
		Name:     c.name,
		Kind:     string(messaging.KindFIFO),
		Size:     int(c.used.Load()),
		Capacity: c.size,
		Readers:  readers,
		Writers:  writers,
	}
	if c.dataAvailable != nil {
		ret.BlockedReaders = c.dataAvailable.Waiters()
	}
	if c.freeSpace != nil {
		ret.BlockedWriters = c.freeSpace.Waiters()
	}
	return ret
}
