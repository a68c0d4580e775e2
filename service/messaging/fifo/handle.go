package fifo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/service/messaging"
)

// Handle is an open endpoint of a plain channel
type Handle struct {
	channel *Channel
	mode    messaging.Mode
	closed  atomic.Bool
}

var _ messaging.Stream = (*Handle)(nil)

// Read fills p. It returns fewer bytes only once every writer has gone, or in
// non-blocking mode when the ring runs dry; io.EOF when nothing was read
// after closure, errs.ErrWouldBlock when nothing was buffered.
func (h *Handle) Read(ctx context.Context, p []byte) (int, error) {
	if err := h.check(messaging.ModeRead, p); err != nil {
		return 0, err
	}
	return h.channel.read(ctx, p, h.mode.Has(messaging.ModeNonBlock))
}

// Write moves p into the channel. A short write comes with an error.
func (h *Handle) Write(ctx context.Context, p []byte) (int, error) {
	if err := h.check(messaging.ModeWrite, p); err != nil {
		return 0, err
	}
	return h.channel.write(ctx, p, h.mode.Has(messaging.ModeNonBlock))
}

func (h *Handle) check(mode messaging.Mode, p []byte) error {
	if h.closed.Load() {
		return fmt.Errorf("fifo %s: handle closed: %w", h.channel.name, errs.ErrInvalidHandle)
	}
	if !h.mode.Has(mode) {
		return fmt.Errorf("fifo %s opened %q: %w", h.channel.name, h.mode, errs.ErrPermission)
	}
	if len(p) == 0 {
		return fmt.Errorf("fifo %s: empty buffer: %w", h.channel.name, errs.ErrInvalidArgument)
	}
	return nil
}

// Close releases the handle
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("fifo %s: handle closed: %w", h.channel.name, errs.ErrInvalidHandle)
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
