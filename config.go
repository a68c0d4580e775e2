package kcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/afs"
	"github.com/viant/kcore/internal/envexpr"
	"github.com/viant/kcore/internal/logger"
	"github.com/viant/kcore/service/allocator"
	snapshotfs "github.com/viant/kcore/service/dao/snapshot/fs"
	"github.com/viant/kcore/service/messaging/namespace"
	"github.com/viant/kcore/service/scheduler"
	"github.com/viant/kcore/service/semaphore"
	"github.com/viant/kcore/tracing"
	"gopkg.in/yaml.v3"
)

// Config is a serialisable representation of the kernel configuration. Zero
// sections inherit their package defaults.
type Config struct {
	LogLevel  string            `json:"logLevel" yaml:"logLevel"`
	Scheduler scheduler.Config  `json:"scheduler" yaml:"scheduler"`
	Allocator allocator.Config  `json:"allocator" yaml:"allocator"`
	Semaphore semaphore.Config  `json:"semaphore" yaml:"semaphore"`
	Channel   namespace.Config  `json:"channel" yaml:"channel"`
	Snapshot  snapshotfs.Config `json:"snapshot" yaml:"snapshot"`
	Tracing   tracing.Config    `json:"tracing" yaml:"tracing"`
}

// DefaultConfig returns a Config populated with every package default.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "INFO",
		Scheduler: scheduler.DefaultConfig(),
		Allocator: allocator.DefaultConfig(),
		Semaphore: semaphore.DefaultConfig(),
		Channel:   namespace.DefaultConfig(),
		Snapshot:  snapshotfs.DefaultConfig(),
		Tracing: tracing.Config{
			ServiceName:    "kcore",
			ServiceVersion: Version,
		},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("logLevel: %w", err))
	}
	if c.Scheduler.MaxProcesses < 0 {
		errs = append(errs, fmt.Errorf("scheduler.maxProcesses must be >= 0"))
	}
	if c.Scheduler.Quantum < 0 {
		errs = append(errs, fmt.Errorf("scheduler.quantum must be >= 0"))
	}
	if c.Scheduler.StackSize < 0 {
		errs = append(errs, fmt.Errorf("scheduler.stackSize must be >= 0"))
	}
	if c.Allocator.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("allocator.capacity must be > 0"))
	}
	if c.Semaphore.MaxSemaphores < 0 {
		errs = append(errs, fmt.Errorf("semaphore.maxSemaphores must be >= 0"))
	}
	if c.Channel.MaxChannels < 0 {
		errs = append(errs, fmt.Errorf("channel.maxChannels must be >= 0"))
	}
	if c.Channel.FIFOSize < 0 {
		errs = append(errs, fmt.Errorf("channel.fifoSize must be >= 0"))
	}
	if _, err := snapshotfs.ParseCodec(c.Snapshot.Codec); err != nil {
		errs = append(errs, fmt.Errorf("snapshot.codec: %w", err))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML configuration from any afs supported URL. ${env.KEY}
// references are expanded before decoding; missing keys keep their defaults.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	return DecodeConfig(data)
}

// DecodeConfig decodes YAML configuration on top of DefaultConfig.
func DecodeConfig(data []byte) (*Config, error) {
	ret := DefaultConfig()
	if err := yaml.Unmarshal([]byte(envexpr.Expand(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
