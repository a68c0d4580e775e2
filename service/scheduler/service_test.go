package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/internal/clock"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/runtime/process"
	"github.com/viant/kcore/service/allocator"
)

type testWaiter struct {
	cancelled []process.PID
}

func (w *testWaiter) Cancel(p *process.Process) {
	w.cancelled = append(w.cancelled, p.PID)
}

func newTestService(options ...Option) *Service {
	return New(append([]Option{WithLogger(logger.Discard())}, options...)...)
}

func runAll(t *testing.T, srv *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Run(ctx))
}

func TestService_PriorityOrder(t *testing.T) {
	testCases := []struct {
		name       string
		priorities []uint32
		expect     []string
	}{
		{name: "single", priorities: []uint32{1}, expect: []string{"p0"}},
		{name: "highest first", priorities: []uint32{1, 5, 3}, expect: []string{"p1", "p2", "p0"}},
		{name: "fifo among equals", priorities: []uint32{2, 2, 2}, expect: []string{"p0", "p1", "p2"}},
		{name: "mixed", priorities: []uint32{1, 7, 1, 7}, expect: []string{"p1", "p3", "p0", "p2"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestService()
			var trace []string
			for i, priority := range tc.priorities {
				name := "p" + string(rune('0'+i))
				_, err := srv.Spawn(context.Background(), func(ctx context.Context) {
					trace = append(trace, name)
				}, priority, process.WithName(name))
				assert.NoError(t, err)
			}
			runAll(t, srv)
			assert.Equal(t, tc.expect, trace)
			assert.Equal(t, len(tc.priorities), srv.Stats().Snapshot().Terminated)
			assert.EqualValues(t, 0, srv.Allocator().InUse())
		})
	}
}

func TestService_Yield(t *testing.T) {
	srv := newTestService()
	var trace []string
	for _, name := range []string{"a", "b"} {
		name := name
		_, err := srv.Spawn(context.Background(), func(ctx context.Context) {
			for i := 0; i < 3; i++ {
				trace = append(trace, name)
				assert.NoError(t, srv.Yield(ctx))
			}
		}, 1)
		assert.NoError(t, err)
	}
	runAll(t, srv)
	assert.Equal(t, []string{"a", "b", "a", "b", "a", "b"}, trace)
	assert.Equal(t, 6, srv.Stats().Snapshot().Yields)
}

func TestService_YieldAlone(t *testing.T) {
	srv := newTestService()
	count := 0
	_, err := srv.Spawn(context.Background(), func(ctx context.Context) {
		for i := 0; i < 3; i++ {
			assert.NoError(t, srv.Yield(ctx))
			assert.Equal(t, process.StateRunning, process.FromContext(ctx).State())
			count++
		}
	}, 1)
	assert.NoError(t, err)
	runAll(t, srv)
	assert.Equal(t, 3, count)
}

func TestService_Schedule(t *testing.T) {
	testCases := []struct {
		name       string
		callerPrio uint32
		otherPrio  uint32
		expect     []string
	}{
		{name: "equal priority waiting", callerPrio: 3, otherPrio: 3, expect: []string{"a1", "b", "a2"}},
		{name: "lower priority waiting", callerPrio: 3, otherPrio: 1, expect: []string{"a1", "a2", "b"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestService()
			var trace []string
			_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
				trace = append(trace, "a1")
				assert.NoError(t, srv.Schedule(ctx))
				trace = append(trace, "a2")
			}, tc.callerPrio)
			_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
				trace = append(trace, "b")
			}, tc.otherPrio)
			runAll(t, srv)
			assert.Equal(t, tc.expect, trace)
			assert.Equal(t, 0, srv.Stats().Snapshot().Yields)
		})
	}

	t.Run("alone", func(t *testing.T) {
		srv := newTestService()
		resumed := false
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			assert.NoError(t, srv.Schedule(ctx))
			resumed = true
		}, 1)
		runAll(t, srv)
		assert.True(t, resumed)
	})
}

func TestService_Tick(t *testing.T) {
	t.Run("within quantum", func(t *testing.T) {
		srv := newTestService()
		var trace []string
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			trace = append(trace, "a1")
			assert.NoError(t, srv.Tick(ctx))
			trace = append(trace, "a2")
		}, 1)
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			trace = append(trace, "b")
		}, 1)
		runAll(t, srv)
		assert.Equal(t, []string{"a1", "a2", "b"}, trace)
	})

	t.Run("quantum expired", func(t *testing.T) {
		var ticks int64
		base := time.Now()
		clock.NowFunc = func() time.Time {
			return base.Add(time.Duration(atomic.AddInt64(&ticks, 1)) * time.Millisecond)
		}
		t.Cleanup(func() { clock.NowFunc = time.Now })

		srv := newTestService(WithConfig(Config{Quantum: time.Millisecond}))
		var trace []string
		for _, name := range []string{"a", "b"} {
			name := name
			_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
				for i := 0; i < 2; i++ {
					trace = append(trace, name)
					assert.NoError(t, srv.Tick(ctx))
				}
			}, 1)
		}
		runAll(t, srv)
		assert.Equal(t, []string{"a", "b", "a", "b"}, trace)
	})
}

func TestService_BlockUnblock(t *testing.T) {
	srv := newTestService()
	var trace []string
	blocked, err := srv.Spawn(context.Background(), func(ctx context.Context) {
		trace = append(trace, "block")
		assert.NoError(t, srv.Block(ctx, process.FromContext(ctx)))
		trace = append(trace, "resumed")
	}, 5)
	assert.NoError(t, err)
	_, err = srv.Spawn(context.Background(), func(ctx context.Context) {
		trace = append(trace, "unblock")
		assert.Equal(t, process.StateBlocked, blocked.State())
		assert.NoError(t, srv.Block(ctx, blocked))
		assert.NoError(t, srv.Unblock(blocked))
		assert.NoError(t, srv.Unblock(blocked))
		assert.Equal(t, []process.PID{blocked.PID}, srv.ReadyPIDs())
		assert.NoError(t, srv.Schedule(ctx))
		trace = append(trace, "done")
	}, 1)
	assert.NoError(t, err)

	runAll(t, srv)
	assert.Equal(t, []string{"block", "unblock", "resumed", "done"}, trace)
	counters := srv.Stats().Snapshot()
	assert.Equal(t, 1, counters.Blocked)
	assert.Equal(t, 1, counters.Unblocked)
}

func TestService_BlockReady(t *testing.T) {
	srv := newTestService()
	var trace []string
	low, _ := srv.Spawn(context.Background(), func(ctx context.Context) {
		trace = append(trace, "low")
	}, 1)
	_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
		assert.NoError(t, srv.Block(ctx, low))
		assert.Equal(t, 0, srv.ReadyLen())
		assert.Equal(t, process.StateBlocked, low.State())
		trace = append(trace, "high")
		assert.NoError(t, srv.Unblock(low))
	}, 9)
	runAll(t, srv)
	assert.Equal(t, []string{"high", "low"}, trace)
}

func TestService_BlockRunningFromOutside(t *testing.T) {
	srv := newTestService()
	var outsideErr error
	_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
		outsideErr = srv.Block(context.Background(), process.FromContext(ctx))
	}, 1)
	runAll(t, srv)
	assert.True(t, errors.Is(outsideErr, errs.ErrInvalidProcess), "unexpected error: %v", outsideErr)
}

func TestService_Terminate(t *testing.T) {
	t.Run("blocked process", func(t *testing.T) {
		srv := newTestService()
		var trace []string
		victim, _ := srv.Spawn(context.Background(), func(ctx context.Context) {
			trace = append(trace, "victim")
			_ = srv.Block(ctx, process.FromContext(ctx))
			trace = append(trace, "unreachable")
		}, 5)
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			assert.NoError(t, srv.Terminate(ctx, victim))
			assert.Equal(t, process.StateTerminated, victim.State())
			_, err := srv.Lookup(victim.PID)
			assert.True(t, errors.Is(err, errs.ErrInvalidProcess))
			assert.True(t, errors.Is(srv.Unblock(victim), errs.ErrInvalidProcess))
			assert.True(t, errors.Is(srv.Terminate(ctx, victim), errs.ErrInvalidProcess))
			trace = append(trace, "killer")
		}, 1)
		runAll(t, srv)
		assert.Equal(t, []string{"victim", "killer"}, trace)
		assert.Equal(t, 2, srv.Stats().Snapshot().Terminated)
		assert.EqualValues(t, 0, srv.Allocator().InUse())
	})

	t.Run("ready process", func(t *testing.T) {
		srv := newTestService()
		ran := false
		victim, _ := srv.Spawn(context.Background(), func(ctx context.Context) {
			ran = true
		}, 1)
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			assert.Equal(t, []process.PID{victim.PID}, srv.ReadyPIDs())
			assert.NoError(t, srv.Terminate(ctx, victim))
			assert.Empty(t, srv.ReadyPIDs())
		}, 5)
		runAll(t, srv)
		assert.False(t, ran)
	})

	t.Run("self", func(t *testing.T) {
		srv := newTestService()
		var trace []string
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			trace = append(trace, "self")
			_ = srv.Terminate(ctx, process.FromContext(ctx))
			trace = append(trace, "unreachable")
		}, 5)
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			trace = append(trace, "next")
		}, 1)
		runAll(t, srv)
		assert.Equal(t, []string{"self", "next"}, trace)
	})

	t.Run("waiter cancelled", func(t *testing.T) {
		srv := newTestService()
		waiter := &testWaiter{}
		parked, _ := srv.Spawn(context.Background(), func(ctx context.Context) {
			_ = srv.Park(ctx, waiter, func() {})
		}, 5)
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			assert.Equal(t, waiter, parked.WaitingOn())
			assert.NoError(t, srv.Terminate(ctx, parked))
		}, 1)
		runAll(t, srv)
		assert.Equal(t, []process.PID{parked.PID}, waiter.cancelled)
	})
}

func TestService_Park(t *testing.T) {
	t.Run("woken with reason", func(t *testing.T) {
		srv := newTestService()
		waiter := &testWaiter{}
		other := &testWaiter{}
		var parkErr error
		released := false
		parked, _ := srv.Spawn(context.Background(), func(ctx context.Context) {
			parkErr = srv.Park(ctx, waiter, func() { released = true })
		}, 5)
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			assert.True(t, released)
			assert.False(t, srv.Wake(parked, other, nil))
			assert.True(t, srv.Wake(parked, waiter, errs.ErrClosed))
			assert.False(t, srv.Wake(parked, waiter, nil))
		}, 1)
		runAll(t, srv)
		assert.True(t, errors.Is(parkErr, errs.ErrClosed), "unexpected error: %v", parkErr)
		assert.Empty(t, waiter.cancelled)
	})

	t.Run("unblocked leaves wait set", func(t *testing.T) {
		srv := newTestService()
		waiter := &testWaiter{}
		var parkErr error
		parked, _ := srv.Spawn(context.Background(), func(ctx context.Context) {
			parkErr = srv.Park(ctx, waiter, func() {})
		}, 5)
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			assert.Equal(t, waiter, parked.WaitingOn())
			assert.NoError(t, srv.Unblock(parked))
			assert.Equal(t, []process.PID{parked.PID}, waiter.cancelled)
			assert.Nil(t, parked.WaitingOn())
			assert.NoError(t, srv.Unblock(parked))
			assert.Len(t, waiter.cancelled, 1)
		}, 1)
		runAll(t, srv)
		assert.NoError(t, parkErr)
	})

	t.Run("context deadline", func(t *testing.T) {
		srv := newTestService()
		waiter := &testWaiter{}
		var parkErr error
		parked, _ := srv.Spawn(context.Background(), func(ctx context.Context) {
			waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			parkErr = srv.Park(waitCtx, waiter, func() {})
		}, 1)
		runAll(t, srv)
		assert.True(t, errors.Is(parkErr, context.DeadlineExceeded), "unexpected error: %v", parkErr)
		assert.Equal(t, []process.PID{parked.PID}, waiter.cancelled)
	})

	t.Run("not a process", func(t *testing.T) {
		srv := newTestService()
		released := false
		err := srv.Park(context.Background(), &testWaiter{}, func() { released = true })
		assert.True(t, errors.Is(err, errs.ErrInvalidProcess))
		assert.True(t, released)
	})
}

func TestService_Spawn(t *testing.T) {
	noop := func(ctx context.Context) {}

	t.Run("table full", func(t *testing.T) {
		srv := newTestService(WithConfig(Config{MaxProcesses: 2}))
		_, err := srv.Spawn(context.Background(), noop, 1)
		assert.NoError(t, err)
		_, err = srv.Spawn(context.Background(), noop, 1)
		assert.True(t, errors.Is(err, errs.ErrOutOfResources), "unexpected error: %v", err)
		assert.True(t, errors.Is(err, errs.ErrResourceExhausted))
		srv.Shutdown()
	})

	t.Run("stack exhausted", func(t *testing.T) {
		srv := newTestService(WithAllocator(allocator.New(allocator.Config{Capacity: 4096})))
		_, err := srv.Spawn(context.Background(), noop, 1)
		assert.NoError(t, err)
		_, err = srv.Spawn(context.Background(), noop, 1)
		assert.True(t, errors.Is(err, errs.ErrOutOfResources), "unexpected error: %v", err)
		assert.Len(t, srv.Processes(), 2)
		srv.Shutdown()
		assert.EqualValues(t, 0, srv.Allocator().InUse())
	})

	t.Run("nil entry", func(t *testing.T) {
		srv := newTestService()
		_, err := srv.Spawn(context.Background(), nil, 1)
		assert.True(t, errors.Is(err, errs.ErrInvalidArgument))
	})

	t.Run("parent", func(t *testing.T) {
		srv := newTestService()
		var child *process.Process
		parent, _ := srv.Spawn(context.Background(), func(ctx context.Context) {
			var err error
			child, err = srv.Spawn(ctx, noop, 1, process.WithName("child"))
			assert.NoError(t, err)
		}, 1)
		runAll(t, srv)
		assert.Equal(t, parent.PID, child.ParentPID)
		assert.Equal(t, "child", child.Name)
		assert.Equal(t, parent.PID+1, child.PID)
	})
}

func TestService_InvalidProcess(t *testing.T) {
	srv := newTestService()
	testCases := []struct {
		name string
		call func() error
	}{
		{name: "unblock nil", call: func() error { return srv.Unblock(nil) }},
		{name: "unblock idle", call: func() error { return srv.Unblock(srv.Idle()) }},
		{name: "block nil", call: func() error { return srv.Block(context.Background(), nil) }},
		{name: "terminate idle", call: func() error { return srv.Terminate(context.Background(), srv.Idle()) }},
		{name: "yield outside process", call: func() error { return srv.Yield(context.Background()) }},
		{name: "schedule outside process", call: func() error { return srv.Schedule(context.Background()) }},
		{name: "unknown pid", call: func() error { _, err := srv.Lookup(99); return err }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			assert.True(t, errors.Is(err, errs.ErrInvalidProcess), "unexpected error: %v", err)
		})
	}
}

func TestService_Run(t *testing.T) {
	t.Run("no processes", func(t *testing.T) {
		srv := newTestService()
		runAll(t, srv)
		assert.Equal(t, srv.Idle(), srv.Current())
	})

	t.Run("context cancelled", func(t *testing.T) {
		srv := newTestService()
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			_ = srv.Block(ctx, process.FromContext(ctx))
		}, 1)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := srv.Run(ctx)
		assert.True(t, errors.Is(err, context.DeadlineExceeded), "unexpected error: %v", err)
		assert.Equal(t, []*process.Process{srv.Idle()}, srv.Processes())
		assert.Equal(t, 1, srv.Stats().Snapshot().Terminated)
	})

	t.Run("panicking process", func(t *testing.T) {
		srv := newTestService()
		after := false
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			panic("boom")
		}, 5)
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			after = true
		}, 1)
		runAll(t, srv)
		assert.True(t, after)
		assert.EqualValues(t, 0, srv.Allocator().InUse())
	})

	t.Run("processes by state", func(t *testing.T) {
		srv := newTestService()
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {
			running := srv.Processes(process.StateRunning)
			assert.Len(t, running, 1)
			assert.Equal(t, process.FromContext(ctx), running[0])
			assert.Len(t, srv.Processes(process.StateReady), 2)
		}, 5)
		_, _ = srv.Spawn(context.Background(), func(ctx context.Context) {}, 1)
		runAll(t, srv)
	})
}
