package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/action"
	"github.com/stepflow/stepflow/definition"
	"github.com/stepflow/stepflow/instance"
)

// waitForEvent parks the run on an event-wait (or human-task) step until
// a matching event arrives, the wait times out, or a stop is requested.
// The subscription handle is closed on every exit path.
//
// With persist set, the instance is checkpointed as SUSPENDED while
// parked and back to RUNNING on wake; fork branches wait without
// touching the persisted record.
func (e *Engine) waitForEvent(ctx context.Context, h *instance.Handle, in *instance.Instance, step *definition.Step, persist bool) (action.Output, *stepflow.WorkflowError, bool) {
	eventType := stringConfig(step.Config, "event_type", "event")
	if eventType == "" {
		eventType = step.Action
	}
	if eventType == "" {
		eventType = step.ID
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.eventWaitTimeout
	}

	sub, err := e.bus.Subscribe(eventType)
	if err != nil {
		return nil, stepflow.WrapError(err, stepflow.CodeInternal, step.ID), false
	}
	defer sub.Close()

	in.AppendLog(instance.LogEntry{
		StepID: step.ID,
		Status: instance.LogSuspended,
		Metadata: map[string]any{
			"event_type": eventType,
			"timeout":    timeout.String(),
		},
	})
	if persist {
		in.Status = instance.StatusSuspended
		e.checkpoint(ctx, in)
		e.hooks.EmitInstanceSuspended(ctx, in, eventType)
	}
	e.logger.Info("workflow suspended",
		slog.String("instance_id", in.ID.String()),
		slog.String("step_id", step.ID),
		slog.String("event_type", eventType),
	)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return nil, stepflow.NewWorkflowError(stepflow.CodeInternal, step.ID,
					"event subscription closed while suspended"), false
			}
			// Addressed events wake only their target instance.
			if evt.InstanceID != "" && evt.InstanceID != in.ID.String() {
				continue
			}
			e.resume(ctx, in, step, eventType, "event", persist)
			return evt.Data, nil, false

		case <-timer.C:
			e.resume(ctx, in, step, eventType, "timeout", persist)
			return nil, stepflow.NewWorkflowError(stepflow.CodeTimeout, step.ID,
				fmt.Sprintf("no %q event within %s", eventType, timeout)), false

		case <-h.Stopped():
			if persist {
				in.Status = instance.StatusRunning // stop settling happens in the run loop
			}
			return nil, nil, true

		case <-ctx.Done():
			if persist {
				in.Status = instance.StatusRunning
			}
			return nil, nil, true
		}
	}
}

// resume records the SUSPENDED to RUNNING edge.
func (e *Engine) resume(ctx context.Context, in *instance.Instance, step *definition.Step, eventType, cause string, persist bool) {
	in.AppendLog(instance.LogEntry{
		StepID: step.ID,
		Status: instance.LogResumed,
		Metadata: map[string]any{
			"event_type": eventType,
			"cause":      cause,
		},
	})
	if persist {
		in.Status = instance.StatusRunning
		e.checkpoint(ctx, in)
		e.hooks.EmitInstanceResumed(ctx, in, eventType)
	}
	e.logger.Info("workflow resumed",
		slog.String("instance_id", in.ID.String()),
		slog.String("step_id", step.ID),
		slog.String("cause", cause),
	)
}
