package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stepflow/stepflow/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testInfo() *middleware.StepInfo {
	return &middleware.StepInfo{
		InstanceID: "inst_test",
		WorkflowID: "wf-test",
		StepID:     "charge",
		Action:     "charge-card",
		Attempt:    0,
	}
}

func named(name string, order *[]string) middleware.Middleware {
	return func(ctx context.Context, info *middleware.StepInfo, next middleware.Handler) (map[string]any, error) {
		*order = append(*order, name+":before")
		out, err := next(ctx)
		*order = append(*order, name+":after")
		return out, err
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	chain := middleware.Chain(named("outer", &order), named("inner", &order))

	out, err := chain(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		order = append(order, "handler")
		return map[string]any{"done": true}, nil
	})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if out["done"] != true {
		t.Errorf("out = %v", out)
	}

	want := []string{"outer:before", "inner:before", "handler", "inner:after", "outer:after"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	out, err := chain(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return map[string]any{"v": 1}, nil
	})
	if err != nil || out["v"] != 1 {
		t.Errorf("empty chain should call the handler directly, got out=%v err=%v", out, err)
	}
}

func TestRecover_ConvertsPanicToError(t *testing.T) {
	mw := middleware.Recover(testLogger())

	out, err := mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		panic("handler exploded")
	})
	if out != nil {
		t.Errorf("out = %v, want nil", out)
	}
	if err == nil {
		t.Fatal("panic should surface as an error")
	}
	if !strings.Contains(err.Error(), "charge") || !strings.Contains(err.Error(), "handler exploded") {
		t.Errorf("err = %v, want step ID and panic value", err)
	}
}

func TestRecover_PassesThroughErrors(t *testing.T) {
	mw := middleware.Recover(testLogger())
	want := errors.New("plain failure")

	_, err := mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want the handler error unchanged", err)
	}
}

func TestTimeout_EnforcesDeadline(t *testing.T) {
	mw := middleware.Timeout(testLogger())
	info := testInfo()
	info.Timeout = 20 * time.Millisecond

	_, err := mw(context.Background(), info, func(ctx context.Context) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{}, nil
		}
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestTimeout_ZeroMeansNoDeadline(t *testing.T) {
	mw := middleware.Timeout(testLogger())

	_, err := mw(context.Background(), testInfo(), func(ctx context.Context) (map[string]any, error) {
		if _, ok := ctx.Deadline(); ok {
			return nil, errors.New("unexpected deadline")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestLogging_PassesThrough(t *testing.T) {
	mw := middleware.Logging(testLogger())

	out, err := mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return map[string]any{"v": "x"}, nil
	})
	if err != nil || out["v"] != "x" {
		t.Errorf("out=%v err=%v", out, err)
	}

	want := errors.New("step failed")
	if _, err := mw(context.Background(), testInfo(), func(_ context.Context) (map[string]any, error) {
		return nil, want
	}); !errors.Is(err, want) {
		t.Errorf("err = %v, want handler error unchanged", err)
	}
}
