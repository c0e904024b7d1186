package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/definition"
	"github.com/stepflow/stepflow/expr"
	"github.com/stepflow/stepflow/id"
	"github.com/stepflow/stepflow/instance"
)

// DryRun simulates an execution path without invoking handlers or
// persisting anything. Every step is assumed to succeed; transitions
// are evaluated against the request input overlaid on the definition's
// variables.
func (e *Engine) DryRun(_ context.Context, def *definition.Definition, req Request) (*instance.Result, error) {
	if err := definition.Validate(def); err != nil {
		return nil, err
	}

	scope := make(map[string]any, len(def.Variables)+len(req.Input))
	for k, v := range def.Variables {
		scope[k] = v
	}
	for k, v := range req.Input {
		scope[k] = v
	}

	visits := make(map[string]int)
	path, err := e.walk(def, def.InitialStep, "", scope, visits)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &instance.Result{
		InstanceID:    id.NewInstanceID(),
		WorkflowID:    def.ID,
		Status:        instance.StatusCompleted,
		Input:         req.Input,
		Variables:     scope,
		ExecutionPath: path,
		StartedAt:     now,
		CompletedAt:   &now,
	}, nil
}

// walk follows success transitions from a step until the path ends, a
// stop step is reached, or a visit cap trips.
func (e *Engine) walk(def *definition.Definition, from, stopAt string, scope map[string]any, visits map[string]int) ([]string, error) {
	var path []string
	current := from

	for current != "" && current != stopAt {
		step, ok := def.Step(current)
		if !ok {
			return path, fmt.Errorf("%w: %q", stepflow.ErrStepNotFound, current)
		}

		visits[current]++
		if visits[current] > step.VisitLimit() {
			return path, fmt.Errorf("%w: step %q exceeded visit limit %d",
				stepflow.ErrCircularDependency, current, step.VisitLimit())
		}
		path = append(path, current)

		t := e.matchTransition(step, expr.OutcomeSuccess, scope)
		if t == nil {
			break
		}

		if t.IsFork() {
			join := def.JoinFor(t)
			for _, target := range t.To {
				// Each simulated branch gets its own visit scope, as in
				// the live runner; branches may legitimately pass through
				// the same step before the join.
				bp, err := e.walk(def, target, join, scope, make(map[string]int))
				path = append(path, bp...)
				if err != nil {
					return path, err
				}
			}
			current = join
			continue
		}
		current = t.Target()
	}

	return path, nil
}
