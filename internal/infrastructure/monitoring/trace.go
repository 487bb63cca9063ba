package monitoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies this module's spans in whatever exporter the
// deployment wires up behind the global otel.TracerProvider (spec.md §5
// leaves exporter choice to the operator; this package only produces spans).
const TracerName = "github.com/clipcast/engine/internal/infrastructure/monitoring"

// Tracer returns the package-scoped tracer. It reads the globally configured
// TracerProvider on every call rather than caching one at package init, so a
// provider installed after process start (as happens in tests that install
// a no-op or in-memory provider) still takes effect.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartComponentSpan starts a span around one tick of a component's run
// loop (the scheduler, the worker, the ads orchestrator, the optimizer,
// and so on). Callers must always call the returned end func, typically via
// defer, which records success or the given error on the span before
// closing it. No component loop or cmd/server calls it; ticks wrapped by
// ObserverManager.TickFunc start no span.
func StartComponentSpan(ctx context.Context, component string) (context.Context, func(err error)) {
	ctx, span := Tracer().Start(ctx, "component.tick",
		trace.WithAttributes(attribute.String("component", component)),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// StartEntitySpan starts a span scoped to a single domain entity (a clip, a
// publication log, an ads campaign) rather than a whole component tick, for
// finer-grained traces around individual saga steps. Neither the publishing
// worker (C4) nor the ads orchestrator (C7) calls it.
func StartEntitySpan(ctx context.Context, spanName, entityType, entityID string) (context.Context, func(err error)) {
	ctx, span := Tracer().Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("entity.type", entityType),
			attribute.String("entity.id", entityID),
		),
	)
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
