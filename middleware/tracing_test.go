package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/stepflow/stepflow/middleware"
)

func setupTestTracer(t *testing.T) (*tracetest.SpanRecorder, middleware.Middleware) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return recorder, middleware.TracingWithTracer(provider.Tracer("test"))
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, attr := range span.Attributes() {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracing_SpanAttributes(t *testing.T) {
	recorder, mw := setupTestTracer(t)

	if _, err := mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return map[string]any{}, nil
	}); err != nil {
		t.Fatalf("mw: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]

	if span.Name() != "stepflow.step.execute" {
		t.Errorf("span name = %q", span.Name())
	}
	if v, ok := spanAttr(span, "stepflow.step.id"); !ok || v.AsString() != "charge" {
		t.Errorf("stepflow.step.id = %v", v)
	}
	if v, ok := spanAttr(span, "stepflow.workflow.id"); !ok || v.AsString() != "wf-test" {
		t.Errorf("stepflow.workflow.id = %v", v)
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status())
	}
}

func TestTracing_RecordsError(t *testing.T) {
	recorder, mw := setupTestTracer(t)
	want := errors.New("downstream unavailable")

	if _, err := mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return nil, want
	}); !errors.Is(err, want) {
		t.Fatalf("err = %v, want handler error unchanged", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]

	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", span.Status())
	}
	if len(span.Events()) == 0 {
		t.Error("error should be recorded as a span event")
	}
}

func TestTracing_PropagatesSpanContext(t *testing.T) {
	_, mw := setupTestTracer(t)

	var sawSpan bool
	_, _ = mw(context.Background(), testInfo(), func(ctx context.Context) (map[string]any, error) {
		sawSpan = trace.SpanContextFromContext(ctx).IsValid()
		return nil, nil
	})
	if !sawSpan {
		t.Error("handler context should carry the span")
	}
}
