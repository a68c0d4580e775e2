package scheduler

import (
	"log/slog"
	"time"

	"github.com/viant/kcore/service/allocator"
	"github.com/viant/kcore/stats"
)

// Config represents scheduler configuration
type Config struct {
	// MaxProcesses bounds the process table, idle process included.
	MaxProcesses int `json:"maxProcesses" yaml:"maxProcesses"`

	// Quantum is the default time slice granted to a process.
	Quantum time.Duration `json:"quantum" yaml:"quantum"`

	// StackSize is the execution context allocation per process.
	StackSize int `json:"stackSize" yaml:"stackSize"`
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		MaxProcesses: 1024,
		Quantum:      100 * time.Millisecond,
		StackSize:    4096,
	}
}

func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	if c.MaxProcesses <= 0 {
		c.MaxProcesses = defaults.MaxProcesses
	}
	if c.Quantum <= 0 {
		c.Quantum = defaults.Quantum
	}
	if c.StackSize <= 0 {
		c.StackSize = defaults.StackSize
	}
}

// Option customises the scheduler
type Option func(*Service)

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithAllocator sets the allocator supplying process stacks
func WithAllocator(alloc *allocator.Service) Option {
	return func(s *Service) {
		s.allocator = alloc
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithStats sets the counters tracker
func WithStats(tracker *stats.Stats) Option {
	return func(s *Service) {
		s.stats = tracker
	}
}
