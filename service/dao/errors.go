package dao

import (
	"fmt"

	"github.com/viant/kcore/errs"
)

// Sentinel DAO errors. Each wraps the matching kernel error so callers can
// test either with errors.Is.
var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = fmt.Errorf("dao: not found: %w", errs.ErrInvalidHandle)

	// ErrInvalidID indicates that the supplied key is empty or otherwise
	// invalid.
	ErrInvalidID = fmt.Errorf("dao: invalid id: %w", errs.ErrInvalidArgument)

	// ErrNilEntity is returned when the caller attempts to persist a nil
	// pointer.
	ErrNilEntity = fmt.Errorf("dao: nil entity: %w", errs.ErrInvalidArgument)

	// ErrFull is returned when a bounded store has no free slot.
	ErrFull = fmt.Errorf("dao: store full: %w", errs.ErrResourceExhausted)
)
