package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/stepflow/stepflow/middleware"
)

func setupTestMeter(t *testing.T) (*metric.ManualReader, middleware.Middleware) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, middleware.MetricsWithMeter(provider.Meter("test"))
}

func collectMetrics(t *testing.T, reader *metric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestMetrics_RecordsDurationAndExecutions(t *testing.T) {
	reader, mw := setupTestMeter(t)

	if _, err := mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return map[string]any{}, nil
	}); err != nil {
		t.Fatalf("mw: %v", err)
	}

	rm := collectMetrics(t, reader)

	dur, ok := findMetric(rm, "stepflow.step.duration")
	if !ok {
		t.Fatal("stepflow.step.duration not recorded")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration data type = %T", dur.Data)
	}
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 1 {
		t.Errorf("duration datapoints = %+v", hist.DataPoints)
	}

	exec, ok := findMetric(rm, "stepflow.step.executions")
	if !ok {
		t.Fatal("stepflow.step.executions not recorded")
	}
	sum, ok := exec.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("executions data type = %T", exec.Data)
	}
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("executions datapoints = %+v", sum.DataPoints)
	}
}

func TestMetrics_StatusAttribute(t *testing.T) {
	reader, mw := setupTestMeter(t)

	_, _ = mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return map[string]any{}, nil
	})
	_, _ = mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	rm := collectMetrics(t, reader)
	exec, ok := findMetric(rm, "stepflow.step.executions")
	if !ok {
		t.Fatal("stepflow.step.executions not recorded")
	}
	sum := exec.Data.(metricdata.Sum[int64])

	// One series per status value.
	if len(sum.DataPoints) != 2 {
		t.Fatalf("datapoints = %d, want 2 (ok and error series)", len(sum.DataPoints))
	}
	statuses := map[string]int64{}
	for _, dp := range sum.DataPoints {
		for _, attr := range dp.Attributes.ToSlice() {
			if string(attr.Key) == "status" {
				statuses[attr.Value.AsString()] = dp.Value
			}
		}
	}
	if statuses["ok"] != 1 || statuses["error"] != 1 {
		t.Errorf("status series = %v", statuses)
	}
}

func TestMetrics_PassesThroughResult(t *testing.T) {
	_, mw := setupTestMeter(t)
	want := errors.New("handler error")

	out, err := mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return nil, want
	})
	if out != nil || !errors.Is(err, want) {
		t.Errorf("out=%v err=%v, want handler result unchanged", out, err)
	}
}
