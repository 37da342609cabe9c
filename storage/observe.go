package storage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-test-server/instrumentation"
)

// Observer wraps storage operations in a span and records their count and duration.
// Backends embed it and expose SetInstrumentation through it. The zero value is a no-op.
type Observer struct {
	Backend string

	inst   *instrumentation.Instrumentation
	tracer trace.Tracer
}

// SetInstrumentation enables tracing and metrics for subsequent operations
func (o *Observer) SetInstrumentation(inst *instrumentation.Instrumentation) {
	o.inst = inst
	if inst != nil {
		o.tracer = inst.Tracer("storage")
	}
}

// Instrumentation returns the instrumentation set on the observer, or nil
func (o *Observer) Instrumentation() *instrumentation.Instrumentation {
	return o.inst
}

// Observe starts a span for operation. The returned function ends the span and
// records the outcome; call it exactly once with the operation's error.
func (o *Observer) Observe(ctx context.Context, operation string) (context.Context, func(error)) {
	if o.inst == nil {
		return ctx, func(error) {}
	}

	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, o.Backend)

	return ctx, func(err error) {
		defer span.End()

		result := "success"
		switch {
		case err == nil:
			instrumentation.SetSpanSuccess(span)
		case IsNotFound(err):
			// A miss is an expected outcome for lookups of unknown tokens.
			result = "not_found"
			instrumentation.SetSpanSuccess(span)
		default:
			result = "error"
			instrumentation.RecordError(span, err)
		}

		o.inst.Metrics().RecordStorageOperation(ctx, operation, result, float64(time.Since(start).Milliseconds()))
	}
}

// RecordSweep counts records removed by a sweep
func (o *Observer) RecordSweep(ctx context.Context, removed int) {
	if o.inst == nil || removed == 0 {
		return
	}
	o.inst.Metrics().RecordSweep(ctx, removed)
}
