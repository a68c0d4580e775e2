package fifo

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/service/allocator"
	"github.com/viant/kcore/service/messaging"
	"github.com/viant/kcore/service/scheduler"
	"github.com/viant/kcore/service/semaphore"
)

type fixture struct {
	sched    *scheduler.Service
	registry *semaphore.Registry
	alloc    *allocator.Service
}

func newFixture(capacity int64) *fixture {
	alloc := allocator.New(allocator.Config{Capacity: capacity})
	sched := scheduler.New(scheduler.WithLogger(logger.Discard()), scheduler.WithAllocator(alloc))
	return &fixture{
		sched:    sched,
		registry: semaphore.NewRegistry(sched, semaphore.WithLogger(logger.Discard())),
		alloc:    alloc,
	}
}

func (f *fixture) channel(t *testing.T, perm messaging.Mode, size int, options ...Option) *Channel {
	t.Helper()
	ch, err := New(f.registry, f.alloc, "test", perm, size, append([]Option{WithLogger(logger.Discard())}, options...)...)
	assert.NoError(t, err)
	return ch
}

func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, f.sched.Run(ctx))
}

func pattern(n int) []byte {
	ret := make([]byte, n)
	for i := range ret {
		ret[i] = byte(i % 251)
	}
	return ret
}

func TestChannel_ProducerConsumer(t *testing.T) {
	testCases := []struct {
		name  string
		size  int
		total int
		chunk int
	}{
		{name: "capacity below payload", size: 16, total: 100, chunk: 7},
		{name: "single byte ring", size: 1, total: 10, chunk: 3},
		{name: "large reads", size: 8, total: 64, chunk: 64},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(1 << 20)
			released := false
			ch := f.channel(t, messaging.ModeReadWrite, tc.size, WithReleaseHook(func(*Channel) { released = true }))
			writer, err := ch.Open(messaging.ModeWrite)
			assert.NoError(t, err)
			reader, err := ch.Open(messaging.ModeRead)
			assert.NoError(t, err)

			expect := pattern(tc.total)
			var received []byte
			var written int
			var readErr error
			_, _ = f.sched.Spawn(context.Background(), func(ctx context.Context) {
				written, err = writer.Write(ctx, expect)
				assert.NoError(t, err)
				assert.NoError(t, writer.Close())
			}, 1)
			_, _ = f.sched.Spawn(context.Background(), func(ctx context.Context) {
				buf := make([]byte, tc.chunk)
				for {
					n, err := reader.Read(ctx, buf)
					received = append(received, buf[:n]...)
					if err != nil {
						readErr = err
						break
					}
				}
				assert.NoError(t, reader.Close())
			}, 1)

			f.run(t)
			assert.Equal(t, tc.total, written)
			assert.Equal(t, expect, received)
			assert.True(t, errors.Is(readErr, io.EOF), "unexpected error: %v", readErr)
			assert.True(t, released)
			assert.True(t, ch.Released())
			assert.Equal(t, 0, f.registry.Len())
			assert.EqualValues(t, 0, f.alloc.InUse())
		})
	}
}

func TestChannel_Wraparound(t *testing.T) {
	f := newFixture(1 << 20)
	ch := f.channel(t, messaging.ModeReadWrite, 8)
	h, err := ch.Open(messaging.ModeReadWrite)
	assert.NoError(t, err)
	ctx := context.Background()

	for _, payload := range [][]byte{[]byte("abcdef"), []byte("ghijkl")} {
		n, err := h.Write(ctx, payload)
		assert.NoError(t, err)
		assert.Equal(t, 6, n)
		assert.Equal(t, 6, h.Stat().Size)

		buf := make([]byte, 6)
		n, err = h.Read(ctx, buf)
		assert.NoError(t, err)
		assert.Equal(t, payload, buf[:n])
	}
	assert.Equal(t, 0, h.Stat().Size)
	assert.NoError(t, h.Close())
}

func TestChannel_NonBlocking(t *testing.T) {
	f := newFixture(1 << 20)
	ch := f.channel(t, messaging.ModeReadWrite, 4)
	h, err := ch.Open(messaging.ModeReadWrite | messaging.ModeNonBlock)
	assert.NoError(t, err)
	ctx := context.Background()

	buf := make([]byte, 10)
	_, err = h.Read(ctx, buf)
	assert.True(t, errors.Is(err, errs.ErrWouldBlock), "unexpected error: %v", err)

	n, err := h.Write(ctx, []byte("abcdef"))
	assert.True(t, errors.Is(err, errs.ErrWouldBlock), "unexpected error: %v", err)
	assert.Equal(t, 4, n)

	n, err = h.Read(ctx, buf)
	assert.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))
	assert.NoError(t, h.Close())
}

func TestChannel_Closure(t *testing.T) {
	t.Run("writer after readers gone", func(t *testing.T) {
		f := newFixture(1 << 20)
		ch := f.channel(t, messaging.ModeReadWrite, 8)
		writer, _ := ch.Open(messaging.ModeWrite)
		reader, _ := ch.Open(messaging.ModeRead)
		assert.NoError(t, reader.Close())

		_, err := writer.Write(context.Background(), []byte("x"))
		assert.True(t, errors.Is(err, errs.ErrClosed), "unexpected error: %v", err)
		assert.False(t, ch.Released())
		assert.NoError(t, writer.Close())
		assert.True(t, ch.Released())
	})

	t.Run("reader drains after writers gone", func(t *testing.T) {
		f := newFixture(1 << 20)
		ch := f.channel(t, messaging.ModeReadWrite, 8)
		writer, _ := ch.Open(messaging.ModeWrite)
		reader, _ := ch.Open(messaging.ModeRead)
		ctx := context.Background()
		_, err := writer.Write(ctx, []byte("abc"))
		assert.NoError(t, err)
		assert.NoError(t, writer.Close())

		buf := make([]byte, 8)
		n, err := reader.Read(ctx, buf)
		assert.NoError(t, err)
		assert.Equal(t, "abc", string(buf[:n]))
		_, err = reader.Read(ctx, buf)
		assert.Equal(t, io.EOF, err)
		assert.NoError(t, reader.Close())
	})

	t.Run("blocked writer woken", func(t *testing.T) {
		f := newFixture(1 << 20)
		ch := f.channel(t, messaging.ModeReadWrite, 2)
		writer, _ := ch.Open(messaging.ModeWrite)
		reader, _ := ch.Open(messaging.ModeRead)
		var written int
		var writeErr error
		_, _ = f.sched.Spawn(context.Background(), func(ctx context.Context) {
			written, writeErr = writer.Write(ctx, []byte("abcdef"))
			_ = writer.Close()
		}, 5)
		_, _ = f.sched.Spawn(context.Background(), func(ctx context.Context) {
			stat := ch.Stat()
			assert.Equal(t, 2, stat.Size)
			assert.Equal(t, 1, stat.BlockedWriters)
			assert.Equal(t, 0, stat.BlockedReaders)
			assert.Equal(t, 1, stat.Readers)
			assert.Equal(t, 1, stat.Writers)
			_ = reader.Close()
		}, 1)
		f.run(t)
		assert.Equal(t, 2, written)
		assert.True(t, errors.Is(writeErr, errs.ErrClosed), "unexpected error: %v", writeErr)
		assert.True(t, ch.Released())
	})
}

func TestChannel_PartialReadError(t *testing.T) {
	f := newFixture(1 << 20)
	ch := f.channel(t, messaging.ModeReadWrite, 8)
	writer, _ := ch.Open(messaging.ModeWrite)
	reader, _ := ch.Open(messaging.ModeRead)
	_, err := writer.Write(context.Background(), []byte("abc"))
	assert.NoError(t, err)

	var n int
	var readErr error
	buf := make([]byte, 8)
	_, _ = f.sched.Spawn(context.Background(), func(ctx context.Context) {
		readCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		n, readErr = reader.Read(readCtx, buf)
	}, 1)

	f.run(t)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", string(buf[:n]))
	assert.True(t, errors.Is(readErr, context.DeadlineExceeded), "unexpected error: %v", readErr)
	assert.NoError(t, writer.Close())
	assert.NoError(t, reader.Close())
}

func TestHandle_Validation(t *testing.T) {
	f := newFixture(1 << 20)
	ch := f.channel(t, messaging.ModeRead, 8)
	ctx := context.Background()

	_, err := ch.Open(messaging.ModeWrite)
	assert.True(t, errors.Is(err, errs.ErrPermission), "unexpected error: %v", err)

	h, err := ch.Open(messaging.ModeRead | messaging.ModeNonBlock)
	assert.NoError(t, err)
	assert.Equal(t, messaging.ModeRead|messaging.ModeNonBlock, h.Mode())

	_, err = h.Write(ctx, []byte("x"))
	assert.True(t, errors.Is(err, errs.ErrPermission))
	_, err = h.Read(ctx, nil)
	assert.True(t, errors.Is(err, errs.ErrInvalidArgument))

	assert.NoError(t, h.Close())
	assert.True(t, errors.Is(h.Close(), errs.ErrInvalidHandle))
	_, err = h.Read(ctx, make([]byte, 1))
	assert.True(t, errors.Is(err, errs.ErrInvalidHandle))

	_, err = ch.Open(messaging.ModeRead)
	assert.True(t, errors.Is(err, errs.ErrInvalidHandle))
}

func TestNew(t *testing.T) {
	testCases := []struct {
		name      string
		capacity  int64
		size      int
		expectErr error
	}{
		{name: "default size", capacity: 1 << 20, size: DefaultConfig().Size},
		{name: "zero size", capacity: 1 << 20, size: 0, expectErr: errs.ErrInvalidArgument},
		{name: "buffer exhausted", capacity: 16, size: 32, expectErr: errs.ErrResourceExhausted},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(tc.capacity)
			ch, err := New(f.registry, f.alloc, "test", messaging.ModeReadWrite, tc.size, WithLogger(logger.Discard()))
			if tc.expectErr != nil {
				assert.True(t, errors.Is(err, tc.expectErr), "unexpected error: %v", err)
				assert.Equal(t, 0, f.registry.Len())
				assert.EqualValues(t, 0, f.alloc.InUse())
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, 3, f.registry.Len())
			assert.EqualValues(t, tc.size, f.alloc.InUse())
			ch.Release()
			assert.Equal(t, 0, f.registry.Len())
			assert.EqualValues(t, 0, f.alloc.InUse())
		})
	}
}
