// Package stats keeps aggregated scheduler counters (processes spawned and
// terminated, context switches, blocks, unblocks, yields). The tracker is
// safe for concurrent use and can notify an observer after every change.
package stats

import (
	"sync"
	"time"

	"github.com/viant/kcore/model"
)

// Delta represents an incremental counter change emitted by the scheduler.
type Delta struct {
	Spawned         int
	Terminated      int
	ContextSwitches int
	Blocked         int
	Unblocked       int
	Yields          int
}

// Stats keeps aggregated counters for one scheduler.
type Stats struct {
	StartedAt time.Time

	Spawned         int
	Terminated      int
	ContextSwitches int
	Blocked         int
	Unblocked       int
	Yields          int

	mu       sync.Mutex
	onChange func(Stats)
}

// New creates a tracker
func New(startedAt time.Time, onChange func(Stats)) *Stats {
	return &Stats{StartedAt: startedAt, onChange: onChange}
}

// Update applies the supplied delta. The onChange callback, if any, runs with
// a copy of the counters outside the critical section.
func (s *Stats) Update(d Delta) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Spawned += d.Spawned
	s.Terminated += d.Terminated
	s.ContextSwitches += d.ContextSwitches
	s.Blocked += d.Blocked
	s.Unblocked += d.Unblocked
	s.Yields += d.Yields
	snapshot := s.copyLocked()
	cb := s.onChange
	s.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Snapshot returns a copy of the tracker for read-only inspection.
func (s *Stats) Snapshot() Stats {
	if s == nil {
		return Stats{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// Counters returns the serialisable counters
func (s *Stats) Counters() model.Counters {
	snap := s.Snapshot()
	return model.Counters{
		Spawned:         snap.Spawned,
		Terminated:      snap.Terminated,
		ContextSwitches: snap.ContextSwitches,
		Blocked:         snap.Blocked,
		Unblocked:       snap.Unblocked,
		Yields:          snap.Yields,
	}
}

// OnChange registers the observer invoked after every Update. Passing nil
// disables it; only one observer is kept.
func (s *Stats) OnChange(cb func(Stats)) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.onChange = cb
	s.mu.Unlock()
}

func (s *Stats) copyLocked() Stats {
	return Stats{
		StartedAt:       s.StartedAt,
		Spawned:         s.Spawned,
		Terminated:      s.Terminated,
		ContextSwitches: s.ContextSwitches,
		Blocked:         s.Blocked,
		Unblocked:       s.Unblocked,
		Yields:          s.Yields,
	}
}
