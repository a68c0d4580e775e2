// Package errs defines the error taxonomy shared by every kcore component.
// Callers compare with errors.Is; components wrap these sentinels with
// context using fmt.Errorf("...: %w").
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument reports nil, zero-length or out-of-range input.
	ErrInvalidArgument = errors.New("kcore: invalid argument")

	// ErrResourceExhausted reports a full table or a failed allocation.
	ErrResourceExhausted = errors.New("kcore: resource exhausted")

	// ErrInvalidHandle reports an operation on an unknown or destroyed
	// process, semaphore or channel.
	ErrInvalidHandle = errors.New("kcore: invalid handle")

	// ErrWouldBlock is returned by non-blocking variants that could not make
	// progress.
	ErrWouldBlock = errors.New("kcore: operation would block")

	// ErrChannelFull is returned by a priority channel send that does not fit.
	ErrChannelFull = errors.New("kcore: channel full")

	// ErrInvalidRange reports semaphore bounds violated at creation.
	ErrInvalidRange = errors.New("kcore: invalid range")

	// ErrClosed reports an operation on a channel whose peer side is gone.
	ErrClosed = errors.New("kcore: channel closed")
)

var (
	// ErrOutOfResources is returned by spawn when the process table or the
	// stack allocation is exhausted.
	ErrOutOfResources = fmt.Errorf("out of resources: %w", ErrResourceExhausted)

	// ErrInvalidProcess is returned for unknown or terminated processes.
	ErrInvalidProcess = fmt.Errorf("invalid process: %w", ErrInvalidHandle)

	// ErrExists is returned when a name is already taken.
	ErrExists = fmt.Errorf("already exists: %w", ErrInvalidArgument)

	// ErrPermission is returned when an open mode is not permitted.
	ErrPermission = fmt.Errorf("permission denied: %w", ErrInvalidArgument)
)
