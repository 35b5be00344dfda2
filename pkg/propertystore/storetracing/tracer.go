// Package storetracing defines the store's optional observability seam.
// It is the same shape the rest of this codebase's services use for
// tracing, so a store embedded inside a larger service can be handed that
// service's existing tracer.
package storetracing

import "context"

// Tracer starts/finishes spans around an operation. A Store holds one
// (propertystore.WithTracer) but does not call it, so no store state
// transition is traced.
type Tracer interface {
	// StartSpan returns a derived context and a completion callback. The
	// callback must be invoked with the final error (if any) when the
	// transition ends.
	StartSpan(ctx context.Context, name string, attributes map[string]string) (context.Context, func(error))
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string, _ map[string]string) (context.Context, func(error)) {
	return ctx, func(error) {}
}

// Noop is the default tracer used when none is configured.
var Noop Tracer = noopTracer{}

// Span is a convenience wrapper that runs fn inside a single span of t,
// falling back to Noop when t is nil.
func Span(ctx context.Context, t Tracer, name string, attrs map[string]string, fn func(context.Context) error) error {
	if t == nil {
		t = Noop
	}
	spanCtx, done := t.StartSpan(ctx, name, attrs)
	err := fn(spanCtx)
	done(err)
	return err
}
