package kcore

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/viant/kcore/internal/clock"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/model"
	"github.com/viant/kcore/service/allocator"
	"github.com/viant/kcore/service/dao"
	snapshotfs "github.com/viant/kcore/service/dao/snapshot/fs"
	"github.com/viant/kcore/service/messaging/namespace"
	"github.com/viant/kcore/service/scheduler"
	"github.com/viant/kcore/service/semaphore"
	"github.com/viant/kcore/stats"
	"github.com/viant/kcore/tracing"
)

// Version is reported as the tracing service version by default
const Version = "0.1.0"

// Service wires the kernel components together
type Service struct {
	config        *Config
	logger        *slog.Logger
	statsListener func(stats.Stats)
	tracing       *tracing.Config
	tracingErr    error

	stats      *stats.Stats
	allocator  *allocator.Service
	scheduler  *scheduler.Service
	semaphores *semaphore.Registry
	namespace  *namespace.Service
	snapshots  dao.Service[string, model.Snapshot]
	runtime    *Runtime
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	if err := s.config.Validate(); err != nil {
		return err
	}
	if s.tracingErr != nil {
		return fmt.Errorf("failed to init tracing: %w", s.tracingErr)
	}
	if s.tracing == nil {
		s.tracing = &s.config.Tracing
	}
	if s.tracing.Enabled {
		if err := tracing.Init(s.tracing.ServiceName, s.tracing.ServiceVersion, s.tracing.OutputFile); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	if s.logger == nil {
		s.logger = logger.New(os.Stderr, s.config.LogLevel)
	}

	s.stats = stats.New(clock.Now(), s.statsListener)
	s.allocator = allocator.New(s.config.Allocator)
	s.scheduler = scheduler.New(
		scheduler.WithConfig(s.config.Scheduler),
		scheduler.WithAllocator(s.allocator),
		scheduler.WithStats(s.stats),
		scheduler.WithLogger(s.logger.With("component", "scheduler")),
	)
	s.semaphores = semaphore.NewRegistry(s.scheduler,
		semaphore.WithConfig(s.config.Semaphore),
		semaphore.WithLogger(s.logger.With("component", "semaphore")),
	)
	s.namespace = namespace.New(s.semaphores, s.allocator,
		namespace.WithConfig(s.config.Channel),
		namespace.WithLogger(s.logger.With("component", "namespace")),
	)
	if s.snapshots == nil {
		snapshots, err := snapshotfs.New(s.config.Snapshot, s.logger.With("component", "snapshot"))
		if err != nil {
			return err
		}
		s.snapshots = snapshots
	}
	s.runtime = &Runtime{
		logger:     s.logger,
		stats:      s.stats,
		allocator:  s.allocator,
		scheduler:  s.scheduler,
		semaphores: s.semaphores,
		namespace:  s.namespace,
		snapshots:  s.snapshots,
	}
	return nil
}

// Runtime returns the kernel façade
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// Config returns the effective configuration
func (s *Service) Config() *Config {
	return s.config
}

// Logger returns the shared logger
func (s *Service) Logger() *slog.Logger {
	return s.logger
}

// New creates a kernel service
func New(options ...Option) (*Service, error) {
	ret := &Service{config: DefaultConfig()}
	if err := ret.init(options); err != nil {
		return nil, err
	}
	return ret, nil
}
