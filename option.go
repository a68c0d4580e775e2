package kcore

import (
	"log/slog"

	"github.com/viant/kcore/model"
	"github.com/viant/kcore/service/dao"
	"github.com/viant/kcore/stats"
	"github.com/viant/kcore/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the Service
type Option func(s *Service)

// WithConfig sets the configuration
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithLogger sets the logger shared by every component
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSnapshotDAO replaces the afs backed snapshot store
func WithSnapshotDAO(snapshots dao.Service[string, model.Snapshot]) Option {
	return func(s *Service) {
		s.snapshots = snapshots
	}
}

// WithStatsListener registers a callback invoked after every counter change
func WithStatsListener(listener func(stats.Stats)) Option {
	return func(s *Service) {
		s.statsListener = listener
	}
}

// WithTracing configures OpenTelemetry tracing with the stdout exporter. When
// outputFile is empty spans go to stdout. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		s.tracing = &tracing.Config{
			Enabled:        true,
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			OutputFile:     outputFile,
		}
	}
}

// WithTracingExporter configures OpenTelemetry tracing with a custom exporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		s.tracingErr = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
