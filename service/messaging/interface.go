package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/model"
)

// Kind names a channel flavor
type Kind string

const (
	// KindFIFO is the plain bounded byte stream.
	KindFIFO Kind = "fifo"
	// KindPriority is the four-lane message channel.
	KindPriority Kind = "priority"
)

// Mode is a set of open flags, also used as channel permissions
type Mode uint32

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeNonBlock

	ModeReadWrite = ModeRead | ModeWrite
)

// Has reports whether every flag of f is set
func (m Mode) Has(f Mode) bool {
	return m&f == f
}

// String returns a compact flag representation such as "rw" or "r-n"
func (m Mode) String() string {
	b := []byte("---")
	if m.Has(ModeRead) {
		b[0] = 'r'
	}
	if m.Has(ModeWrite) {
		b[1] = 'w'
	}
	if m.Has(ModeNonBlock) {
		b[2] = 'n'
	}
	return strings.TrimRight(string(b), "-")
}

// CheckOpen validates an open mode against channel permissions
func CheckOpen(perm, mode Mode) error {
	if mode&ModeReadWrite == 0 {
		return fmt.Errorf("open mode %q: %w", mode, errs.ErrInvalidArgument)
	}
	if mode.Has(ModeRead) && !perm.Has(ModeRead) {
		return fmt.Errorf("read: %w", errs.ErrPermission)
	}
	if mode.Has(ModeWrite) && !perm.Has(ModeWrite) {
		return fmt.Errorf("write: %w", errs.ErrPermission)
	}
	return nil
}

// Priority is a priority channel lane; higher is more urgent
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Priorities is the number of lanes
const Priorities = int(PriorityUrgent) + 1

var priorityNames = [Priorities]string{"LOW", "NORMAL", "HIGH", "URGENT"}

// Valid reports whether p names a lane
func (p Priority) Valid() bool {
	return int(p) < Priorities
}

func (p Priority) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Priority(%d)", uint8(p))
	}
	return priorityNames[p]
}

// ParsePriority parses a case-insensitive lane name
func ParsePriority(name string) (Priority, error) {
	for i, candidate := range priorityNames {
		if strings.EqualFold(candidate, name) {
			return Priority(i), nil
		}
	}
	return 0, fmt.Errorf("priority %q: %w", name, errs.ErrInvalidArgument)
}

// Message represents a message taken from a priority channel
type Message struct {
	ID       string
	Priority Priority
	Data     []byte
	SentAt   time.Time
}

// Stream represents an open endpoint of a plain bounded channel
type Stream interface {
	// Read fills p, blocking until it is full or every writer has gone
	Read(ctx context.Context, p []byte) (int, error)

	// Write moves p into the channel, blocking while it is full
	Write(ctx context.Context, p []byte) (int, error)

	Close() error

	Stat() *model.ChannelInfo
}

// Queue represents an open endpoint of a priority channel
type Queue interface {
	// Send appends payload to the lane of priority; it never blocks
	Send(ctx context.Context, payload []byte, priority Priority) (*Message, error)

	// Recv takes the oldest message of the most urgent non-empty lane
	Recv(ctx context.Context) (*Message, error)

	// TryRecv is Recv failing with errs.ErrWouldBlock instead of blocking
	TryRecv(ctx context.Context) (*Message, error)

	LaneCount(priority Priority) (int, error)

	// Flush discards a lane, returning the number of dropped messages
	Flush(ctx context.Context, priority Priority) (int, error)

	Close() error

	Stat() *model.ChannelInfo
}
