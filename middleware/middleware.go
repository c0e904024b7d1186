// Package middleware provides composable middleware for step execution.
// Middleware wraps action handler calls synchronously and can modify
// execution (recover from panics, log, add tracing, enforce timeouts).
package middleware

import (
	"context"
	"time"
)

// StepInfo describes the step invocation flowing through the chain.
type StepInfo struct {
	InstanceID string
	WorkflowID string
	StepID     string
	Action     string
	Attempt    int
	Timeout    time.Duration
}

// Handler is the terminal function that executes step logic.
type Handler func(ctx context.Context) (map[string]any, error)

// Middleware wraps a Handler with cross-cutting logic.
// It receives the current context, the step being executed, and the
// next handler to call. Middleware MUST call next to continue the chain
// (unless short-circuiting on error).
type Middleware func(ctx context.Context, info *StepInfo, next Handler) (map[string]any, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recover, timeout) executes as:
//
//	logging → recover → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, info *StepInfo, next Handler) (map[string]any, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (map[string]any, error) {
				return mw(ctx, info, prev)
			}
		}
		return h(ctx)
	}
}
