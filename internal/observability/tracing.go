package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/Mauttaram/SecurityEvaluator"

// InitTracing selects the global tracer provider. When disabled it installs
// a no-op provider so span creation has zero overhead; when enabled it keeps
// whatever provider the embedding process registered, falling back to no-op
// if none was registered.
func InitTracing(enabled bool) trace.TracerProvider {
	if !enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp
	}
	return otel.GetTracerProvider()
}

// Tracer returns the named component tracer from the global provider.
func Tracer(component string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(
		instrumentationName,
		trace.WithInstrumentationAttributes(attribute.String("component", component)),
	)
}

// StartRoundSpan opens a span for one evaluation round. The caller must end
// the returned span.
func StartRoundSpan(ctx context.Context, tracer trace.Tracer, phase string, round int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "evaluation.round",
		trace.WithAttributes(
			attribute.String("phase", phase),
			attribute.Int("round", round),
		))
}

// RecordSpanError marks the span as failed and records the error.
func RecordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
