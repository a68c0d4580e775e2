package process

import (
	"context"
	"reflect"
)

var processKey = KeyOf[*Process]()

// WithProcess returns a context carrying the calling process identity.
func WithProcess(ctx context.Context, p *Process) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, processKey, p)
}

// FromContext returns the calling process, or nil when ctx was not created by
// the scheduler for a process entry.
func FromContext(ctx context.Context) *Process {
	if ctx == nil {
		return nil
	}
	return ContextValue[*Process](ctx)
}

// ContextValue returns the value of the provided type from the context
func ContextValue[T any](ctx context.Context) T {
	key := KeyOf[T]()
	if value := ctx.Value(key); value != nil {
		return value.(T)
	}
	var t T
	return t
}

// KeyOf returns the reflect.Type of the provided type
func KeyOf[T any]() reflect.Type {
	var a T
	return reflect.TypeOf(a)
}
