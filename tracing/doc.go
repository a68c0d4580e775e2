// Package tracing wraps OpenTelemetry so kernel operations (spawn, terminate,
// channel creation, snapshots) can be recorded as spans without the rest of
// the module importing the SDK directly.
package tracing
