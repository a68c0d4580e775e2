// Package namespace maps channel names to live channels of both flavors.
// Names are unique across flavors; a channel leaves the namespace when it is
// unlinked or released.
package namespace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/viant/kcore/errs"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/service/allocator"
	"github.com/viant/kcore/service/dao"
	"github.com/viant/kcore/service/dao/store"
	"github.com/viant/kcore/service/messaging"
	"github.com/viant/kcore/service/messaging/fifo"
	"github.com/viant/kcore/service/messaging/pfifo"
	"github.com/viant/kcore/service/semaphore"
)

// MaxNameLength is the longest accepted channel name in bytes
const MaxNameLength = 255

// Config represents namespace configuration
type Config struct {
	MaxChannels int `json:"maxChannels" yaml:"maxChannels"`
	FIFOSize    int `json:"fifoSize" yaml:"fifoSize"`
}

// DefaultConfig returns the default namespace configuration
func DefaultConfig() Config {
	return Config{MaxChannels: 256, FIFOSize: fifo.DefaultConfig().Size}
}

// Option customises the namespace
type Option func(*Service)

// WithConfig sets the namespace configuration
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

type entry struct {
	name     string
	kind     messaging.Kind
	fifo     *fifo.Channel
	priority *pfifo.Channel
}

func (e *entry) stat() *model.ChannelInfo {
	if e.fifo != nil {
		return e.fifo.Stat()
	}
	return e.priority.Stat()
}

func (e *entry) release() {
	if e.fifo != nil {
		e.fifo.Release()
		return
	}
	e.priority.Release()
}

// Service represents the channel namespace
type Service struct {
	config   Config
	registry *semaphore.Registry
	alloc    *allocator.Service
	logger   *slog.Logger

	mu      sync.Mutex
	entries *store.MemoryStore[string, entry]
}

// CreateFIFO creates a plain channel; size 0 selects the configured default
func (s *Service) CreateFIFO(ctx context.Context, name string, perm messaging.Mode, size int) (*fifo.Channel, error) {
	if size == 0 {
		size = s.config.FIFOSize
	}
	e, err := s.create(ctx, name, messaging.KindFIFO, func() (*entry, error) {
		ch, err := fifo.New(s.registry, s.alloc, name, perm, size,
			fifo.WithLogger(s.logger),
			fifo.WithReleaseHook(func(c *fifo.Channel) { s.forget(c.Name(), c) }))
		if err != nil {
			return nil, err
		}
		return &entry{fifo: ch}, nil
	})
	if err != nil {
		return nil, err
	}
	return e.fifo, nil
}

// CreatePriority creates a priority channel holding at most maxSize bytes
func (s *Service) CreatePriority(ctx context.Context, name string, perm messaging.Mode, maxSize int) (*pfifo.Channel, error) {
	e, err := s.create(ctx, name, messaging.KindPriority, func() (*entry, error) {
		ch, err := pfifo.New(s.registry, s.alloc, name, perm, maxSize,
			pfifo.WithLogger(s.logger),
			pfifo.WithReleaseHook(func(c *pfifo.Channel) { s.forget(c.Name(), c) }))
		if err != nil {
			return nil, err
		}
		return &entry{priority: ch}, nil
	})
	if err != nil {
		return nil, err
	}
	return e.priority, nil
}

func (s *Service) create(ctx context.Context, name string, kind messaging.Kind, build func() (*entry, error)) (*entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if _, err := s.entries.Load(ctx, name); err == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("channel %q: %w", name, errs.ErrExists)
	}
	if limit := s.entries.Limit(); s.entries.Len() >= limit {
		s.mu.Unlock()
		return nil, fmt.Errorf("channel %q: %d channels: %w", name, limit, errs.ErrResourceExhausted)
	}
	e, err := build()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	e.name = name
	e.kind = kind
	err = s.entries.Save(ctx, e)
	s.mu.Unlock()
	if err != nil {
		e.release()
		return nil, fmt.Errorf("channel %q: %w", name, err)
	}
	s.logger.Info("channel created", "name", name, "kind", kind)
	return e, nil
}

// forget drops name if it still refers to the released channel
func (s *Service) forget(name string, channel interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.entries.Load(context.Background(), name)
	if err != nil {
		return
	}
	if (e.fifo != nil && channel == e.fifo) || (e.priority != nil && channel == e.priority) {
		_ = s.entries.Delete(context.Background(), name)
	}
}

func (s *Service) lookup(ctx context.Context, name string, kind messaging.Kind) (*entry, error) {
	s.mu.Lock()
	e, err := s.entries.Load(ctx, name)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", name, errs.ErrInvalidHandle)
	}
	if kind != "" && e.kind != kind {
		return nil, fmt.Errorf("channel %q is a %s channel: %w", name, e.kind, errs.ErrInvalidArgument)
	}
	return e, nil
}

// OpenFIFO opens a plain channel by name
func (s *Service) OpenFIFO(ctx context.Context, name string, mode messaging.Mode) (*fifo.Handle, error) {
	e, err := s.lookup(ctx, name, messaging.KindFIFO)
	if err != nil {
		return nil, err
	}
	return e.fifo.Open(mode)
}

// OpenPriority opens a priority channel by name
func (s *Service) OpenPriority(ctx context.Context, name string, mode messaging.Mode) (*pfifo.Handle, error) {
	e, err := s.lookup(ctx, name, messaging.KindPriority)
	if err != nil {
		return nil, err
	}
	return e.priority.Open(mode)
}

// Unlink removes name. The channel is freed at once when no handle is open,
// otherwise when the last handle closes.
func (s *Service) Unlink(name string) error {
	s.mu.Lock()
	e, err := s.entries.Load(context.Background(), name)
	if err == nil {
		_ = s.entries.Delete(context.Background(), name)
	}
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("channel %q: %w", name, errs.ErrInvalidHandle)
	}
	e.release()
	s.logger.Info("channel unlinked", "name", name)
	return nil
}

// Stat returns the status of a named channel
func (s *Service) Stat(name string) (*model.ChannelInfo, error) {
	e, err := s.lookup(context.Background(), name, "")
	if err != nil {
		return nil, err
	}
	return e.stat(), nil
}

// List returns the status of every named channel ordered by name
func (s *Service) List() []*model.ChannelInfo {
	s.mu.Lock()
	entries, _ := s.entries.List(context.Background())
	s.mu.Unlock()
	ret := make([]*model.ChannelInfo, 0, len(entries))
	for _, e := range entries {
		ret = append(ret, e.stat())
	}
	return ret
}

// Len returns the number of named channels
func (s *Service) Len() int {
	return s.entries.Len()
}

// ValidateName checks a channel name
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return fmt.Errorf("channel name of %d bytes: %w", len(name), errs.ErrInvalidArgument)
	}
	return nil
}

var _ dao.Service[string, entry] = (*store.MemoryStore[string, entry])(nil)

// New creates a namespace allocating channel storage from alloc and channel
// semaphores from registry
func New(registry *semaphore.Registry, alloc *allocator.Service, options ...Option) *Service {
	ret := &Service{config: DefaultConfig(), registry: registry, alloc: alloc}
	for _, opt := range options {
		opt(ret)
	}
	defaults := DefaultConfig()
	if ret.config.MaxChannels <= 0 {
		ret.config.MaxChannels = defaults.MaxChannels
	}
	if ret.config.FIFOSize <= 0 {
		ret.config.FIFOSize = defaults.FIFOSize
	}
	ret.logger = logger.OrDefault(ret.logger)
	ret.entries = store.NewMemoryStore[string, entry](
		func(e *entry) string { return e.name },
		ret.config.MaxChannels,
		func(a, b string) bool { return a < b },
	)
	return ret
}
