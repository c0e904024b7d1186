// Package action defines the step executor registry: the capability map
// from step types and action names to handler implementations. Domain
// step logic (inventory adjustments, invoice posting, and so on) lives
// behind the Handler interface; the engine never switches on action
// strings itself, so new actions need no engine change.
package action

import (
	"context"

	"github.com/stepflow/stepflow/id"
)

// Input carries the execution context snapshot a handler receives:
// the step's static config plus the instance's current input, variables,
// and accumulated output, with correlation identifiers for tracing.
type Input struct {
	InstanceID    id.InstanceID
	WorkflowID    string
	StepID        string
	Action        string
	Config        map[string]any
	Input         map[string]any
	Variables     map[string]any
	Output        map[string]any
	CorrelationID string
	TraceID       string
}

// Output is the key-value result a handler produces. It is merged into
// the instance's output and variables by shallow union, last write wins.
type Output = map[string]any

// Handler executes one step's work.
type Handler interface {
	Execute(ctx context.Context, in Input) (Output, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, in Input) (Output, error)

// Execute calls the function.
func (f HandlerFunc) Execute(ctx context.Context, in Input) (Output, error) {
	return f(ctx, in)
}

// Noop is a handler that does nothing and returns no output. Decision and
// join steps use it: their work is done by the transition evaluator.
var Noop Handler = HandlerFunc(func(_ context.Context, _ Input) (Output, error) {
	return nil, nil
})
