// Package allocator provides the raw memory source the kernel core consumes:
// a budgeted, bump-style allocator handing out blocks for process stacks,
// FIFO ring buffers and priority-message payloads. Exhaustion is always
// reported as an error, never silently.
package allocator
