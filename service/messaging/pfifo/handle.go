package pfifo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/service/messaging"
)

// Handle is an open endpoint of a priority channel
type Handle struct {
	channel *Channel
	mode    messaging.Mode
	closed  atomic.Bool
}

var _ messaging.Queue = (*Handle)(nil)

// Send appends payload to the lane of priority
func (h *Handle) Send(ctx context.Context, payload []byte, priority messaging.Priority) (*messaging.Message, error) {
	if err := h.check(messaging.ModeWrite); err != nil {
		return nil, err
	}
	return h.channel.Send(ctx, payload, priority)
}

// Recv takes the next message; a non-blocking handle behaves as TryRecv
func (h *Handle) Recv(ctx context.Context) (*messaging.Message, error) {
	if err := h.check(messaging.ModeRead); err != nil {
		return nil, err
	}
	return h.channel.recv(ctx, h.mode.Has(messaging.ModeNonBlock))
}

// TryRecv takes the next message without blocking
func (h *Handle) TryRecv(ctx context.Context) (*messaging.Message, error) {
	if err := h.check(messaging.ModeRead); err != nil {
		return nil, err
	}
	return h.channel.TryRecv(ctx)
}

// LaneCount returns the number of queued messages of a lane
func (h *Handle) LaneCount(priority messaging.Priority) (int, error) {
	if err := h.check(0); err != nil {
		return 0, err
	}
	return h.channel.LaneCount(priority)
}

// Flush discards a lane
func (h *Handle) Flush(ctx context.Context, priority messaging.Priority) (int, error) {
	if err := h.check(0); err != nil {
		return 0, err
	}
	return h.channel.Flush(ctx, priority)
}

func (h *Handle) check(mode messaging.Mode) error {
	if h.closed.Load() {
		return fmt.Errorf("priority fifo %s: handle closed: %w", h.channel.name, errs.ErrInvalidHandle)
	}
	if !h.mode.Has(mode) {
		return fmt.Errorf("priority fifo %s opened %q: %w", h.channel.name, h.mode, errs.ErrPermission)
	}
	return nil
}

// Close releases the handle
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("priority fifo %s: handle closed: %w", h.channel.name, errs.ErrInvalidHandle)
	}
	h.channel.close(h.mode)
	return nil
}

// Stat returns the channel status
func (h *Handle) Stat() *model.ChannelInfo {
	return h.channel.Stat()
}

// Mode returns the open mode
func (h *Handle) Mode() messaging.Mode {
	return h.mode
}

// Channel returns the underlying channel
func (h *Handle) Channel() *Channel {
	return h.channel
}
