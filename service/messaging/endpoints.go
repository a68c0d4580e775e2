package messaging

import (
	"fmt"
	"sync"

	"github.com/viant/kcore/errs"
)

// Transition reports how an open or close changed the endpoint counts
type Transition struct {
	FirstReader bool
	FirstWriter bool
	LastReader  bool
	LastWriter  bool
	// Release is set once, when the final handle closes.
	Release bool
}

// Endpoints counts the open handles of a channel per mode
type Endpoints struct {
	mu       sync.Mutex
	readers  int
	writers  int
	released bool
}

// Open registers a handle opened with mode
func (e *Endpoints) Open(mode Mode) (Transition, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ret Transition
	if e.released {
		return ret, fmt.Errorf("channel released: %w", errs.ErrInvalidHandle)
	}
	if mode.Has(ModeRead) {
		ret.FirstReader = e.readers == 0
		e.readers++
	}
	if mode.Has(ModeWrite) {
		ret.FirstWriter = e.writers == 0
		e.writers++
	}
	return ret, nil
}

// Close unregisters a handle opened with mode
func (e *Endpoints) Close(mode Mode) Transition {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ret Transition
	if mode.Has(ModeRead) && e.readers > 0 {
		e.readers--
		ret.LastReader = e.readers == 0
	}
	if mode.Has(ModeWrite) && e.writers > 0 {
		e.writers--
		ret.LastWriter = e.writers == 0
	}
	ret.Release = e.releaseLocked()
	return ret
}

// Release marks the channel released when no handle is open. It reports
// whether the caller must free the channel resources.
func (e *Endpoints) Release() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releaseLocked()
}

func (e *Endpoints) releaseLocked() bool {
	if e.released || e.readers > 0 || e.writers > 0 {
		return false
	}
	e.released = true
	return true
}

// Counts returns open readers and writers
func (e *Endpoints) Counts() (readers, writers int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readers, e.writers
}

// Released reports whether the channel was released
func (e *Endpoints) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}
