package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for stepflow tracing.
const tracerName = "github.com/stepflow/stepflow"

// Tracing returns middleware that wraps step execution in an OpenTelemetry
// span. If no TracerProvider is configured globally, the default noop
// tracer is used and this middleware becomes a pass-through with zero
// overhead.
//
// Span attributes include: stepflow.instance.id, stepflow.workflow.id,
// stepflow.step.id, stepflow.step.action, stepflow.step.attempt.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
// This variant allows injecting a specific TracerProvider for testing or
// when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) (map[string]any, error) {
		ctx, span := tracer.Start(ctx, "stepflow.step.execute",
			trace.WithAttributes(
				attribute.String("stepflow.instance.id", info.InstanceID),
				attribute.String("stepflow.workflow.id", info.WorkflowID),
				attribute.String("stepflow.step.id", info.StepID),
				attribute.String("stepflow.step.action", info.Action),
				attribute.Int("stepflow.step.attempt", info.Attempt),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		out, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return out, err
	}
}
