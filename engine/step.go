package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/action"
	"github.com/stepflow/stepflow/backoff"
	"github.com/stepflow/stepflow/definition"
	"github.com/stepflow/stepflow/event"
	"github.com/stepflow/stepflow/instance"
	"github.com/stepflow/stepflow/middleware"
)

// executeVisit runs one visit of a step: the initial attempt plus up to
// MaxRetries retries per the effective policy. The execution log gets
// one "started" entry, one "retry" entry per retry, and a terminal
// "completed" or "failed" entry.
func (e *Engine) executeVisit(ctx context.Context, h *instance.Handle, in *instance.Instance, def *definition.Definition, step *definition.Step) (action.Output, *stepflow.WorkflowError) {
	policy := e.retryPolicy(def, step)
	strategy := backoff.FromPolicy(policy.RetryDelay, policy.BackoffMultiplier, policy.MaxRetryDelay)

	in.AppendLog(instance.LogEntry{
		StepID: step.ID,
		Action: step.Action,
		Status: instance.LogStarted,
	})

	start := time.Now()
	var werr *stepflow.WorkflowError
	for attempt := 0; ; attempt++ {
		out, err := e.invoke(ctx, in, def, step, attempt)
		if err == nil {
			elapsed := time.Since(start)
			in.AppendLog(instance.LogEntry{
				StepID:   step.ID,
				Action:   step.Action,
				Status:   instance.LogCompleted,
				Duration: elapsed,
				Output:   out,
			})
			e.hooks.EmitStepCompleted(ctx, in, step.ID, elapsed)
			return out, nil
		}

		werr = classifyStepError(err, step.ID)
		if !werr.Retryable || !policy.Retryable(werr.Code) {
			break
		}
		if attempt >= policy.MaxRetries {
			werr = stepflow.WrapError(
				fmt.Errorf("%w: step %q failed after %d retries: %s",
					stepflow.ErrMaxRetriesExceeded, step.ID, policy.MaxRetries, werr.Message),
				stepflow.CodeRetriesExceeded, step.ID)
			break
		}

		delay := strategy.Delay(attempt + 1)
		in.AppendLog(instance.LogEntry{
			StepID: step.ID,
			Action: step.Action,
			Status: instance.LogRetry,
			Error:  werr.Message,
			Metadata: map[string]any{
				"attempt": attempt + 1,
				"delay":   delay.String(),
			},
		})
		in.Metrics.Retries++
		in.RetryCount++
		e.hooks.EmitStepRetrying(ctx, in, step.ID, attempt+1, delay)

		if !e.sleep(ctx, h, delay) {
			break // stop requested; the run loop settles the status
		}
	}

	in.Metrics.StepsFailed++
	in.AppendLog(instance.LogEntry{
		StepID:   step.ID,
		Action:   step.Action,
		Status:   instance.LogFailed,
		Duration: time.Since(start),
		Error:    werr.Message,
	})
	e.hooks.EmitStepFailed(ctx, in, step.ID, werr)
	return nil, werr
}

// invoke runs a single attempt through the middleware chain.
func (e *Engine) invoke(ctx context.Context, in *instance.Instance, def *definition.Definition, step *definition.Step, attempt int) (action.Output, error) {
	info := &middleware.StepInfo{
		InstanceID: in.ID.String(),
		WorkflowID: in.WorkflowID,
		StepID:     step.ID,
		Action:     step.Action,
		Attempt:    attempt,
		Timeout:    step.Timeout,
	}
	return e.chain(ctx, info, func(ctx context.Context) (map[string]any, error) {
		return e.dispatch(ctx, in, def, step)
	})
}

// dispatch executes a step's work. Structural step types (timer, event
// emit, subworkflow) are handled by the engine itself; everything else
// resolves through the action registry.
func (e *Engine) dispatch(ctx context.Context, in *instance.Instance, def *definition.Definition, step *definition.Step) (action.Output, error) {
	switch step.Type {
	case definition.TypeTimer:
		return nil, e.runTimer(ctx, step)
	case definition.TypeEventEmit:
		return nil, e.emitEvent(ctx, in, step)
	case definition.TypeSubworkflow:
		return e.runSubworkflow(ctx, in, step)
	}

	h, err := e.actions.Resolve(step)
	if err != nil {
		return nil, err
	}
	return h.Execute(ctx, action.Input{
		InstanceID:    in.ID,
		WorkflowID:    in.WorkflowID,
		StepID:        step.ID,
		Action:        step.Action,
		Config:        step.Config,
		Input:         in.Input,
		Variables:     in.Variables,
		Output:        in.Output,
		CorrelationID: in.Context.CorrelationID,
		TraceID:       in.Context.TraceID,
	})
}

// runTimer blocks for the step's configured delay: either a "duration"
// (Go duration string or seconds) or a "cron" expression, in which case
// the delay runs to the schedule's next activation.
func (e *Engine) runTimer(ctx context.Context, step *definition.Step) error {
	var delay time.Duration

	switch {
	case step.Config["duration"] != nil:
		switch v := step.Config["duration"].(type) {
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return stepflow.NewWorkflowError(stepflow.CodeValidation, step.ID,
					fmt.Sprintf("invalid timer duration %q: %v", v, err))
			}
			delay = d
		case float64:
			delay = time.Duration(v * float64(time.Second))
		case int:
			delay = time.Duration(v) * time.Second
		default:
			return stepflow.NewWorkflowError(stepflow.CodeValidation, step.ID,
				fmt.Sprintf("invalid timer duration type %T", v))
		}
	case step.Config["cron"] != nil:
		spec, _ := step.Config["cron"].(string)
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return stepflow.NewWorkflowError(stepflow.CodeValidation, step.ID,
				fmt.Sprintf("invalid cron expression %q: %v", spec, err))
		}
		now := time.Now()
		delay = sched.Next(now).Sub(now)
	default:
		return stepflow.NewWorkflowError(stepflow.CodeValidation, step.ID,
			"timer step needs a duration or cron config")
	}

	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// emitEvent publishes the step's configured event to the bus.
func (e *Engine) emitEvent(ctx context.Context, in *instance.Instance, step *definition.Step) error {
	eventType := stringConfig(step.Config, "event_type", "event")
	if eventType == "" {
		eventType = step.Action
	}
	if eventType == "" {
		return stepflow.NewWorkflowError(stepflow.CodeValidation, step.ID,
			"event_emit step needs an event_type config or action name")
	}

	data, _ := step.Config["data"].(map[string]any)
	evt := event.New(eventType, data)
	if target := stringConfig(step.Config, "target_instance"); target != "" {
		evt.For(target)
	}
	return e.bus.Publish(ctx, evt)
}

// maxSubworkflowDepth caps how deeply subworkflow runs may nest. A
// definition that reaches itself through subworkflow steps would
// otherwise recurse until the stack dies.
const maxSubworkflowDepth = 16

type subworkflowDepthKey struct{}

// runSubworkflow executes a registered definition as a nested run and
// returns its output. The child inherits the parent's variables as
// input, its metadata, and its correlation identifiers.
func (e *Engine) runSubworkflow(ctx context.Context, in *instance.Instance, step *definition.Step) (action.Output, error) {
	workflowID := stringConfig(step.Config, "workflow_id", "workflow")
	if workflowID == "" {
		workflowID = step.Action
	}
	def, ok := e.definitions[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: subworkflow %q", stepflow.ErrDefinitionNotFound, workflowID)
	}

	depth, _ := ctx.Value(subworkflowDepthKey{}).(int)
	if depth >= maxSubworkflowDepth {
		return nil, stepflow.NewWorkflowError(stepflow.CodeStepFailed, step.ID,
			fmt.Sprintf("subworkflow %q exceeds nesting depth %d", workflowID, maxSubworkflowDepth))
	}

	res, err := e.Execute(context.WithValue(ctx, subworkflowDepthKey{}, depth+1), def, Request{
		Input:         in.Variables,
		UserID:        in.UserID,
		CorrelationID: in.Context.CorrelationID,
		TraceID:       in.Context.TraceID,
		Metadata:      in.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return res.Output, nil
}

// retryPolicy resolves the effective policy: step over definition over
// engine default.
func (e *Engine) retryPolicy(def *definition.Definition, step *definition.Step) definition.RetryPolicy {
	if step.Retry != nil {
		return *step.Retry
	}
	if def.Retry != nil {
		return *def.Retry
	}
	return e.defaultRetry
}

// classifyStepError folds an attempt error into a WorkflowError.
// Deadline expiry classifies as TIMEOUT_ERROR; handler-raised
// WorkflowErrors pass through with their own code.
func classifyStepError(err error, stepID string) *stepflow.WorkflowError {
	var werr *stepflow.WorkflowError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		werr = stepflow.WrapError(
			fmt.Errorf("%w: %v", stepflow.ErrStepTimeout, err),
			stepflow.CodeTimeout, stepID)
	default:
		werr = stepflow.WrapError(err, stepflow.CodeStepFailed, stepID)
	}
	if werr.StepID == "" {
		werr.StepID = stepID
	}
	return werr
}

// stringConfig returns the first non-empty string value under the given
// keys.
func stringConfig(cfg map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
