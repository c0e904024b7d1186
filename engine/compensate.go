package engine

import (
	"context"
	"log/slog"

	"github.com/stepflow/stepflow/definition"
	"github.com/stepflow/stepflow/instance"
)

// compensate undoes completed steps in reverse execution order after a
// failure. The failed step itself is not compensated (its work did not
// complete). Compensation is best effort: a failing compensation step
// is recorded in the rollback log and the sweep continues; nothing here
// ever rethrows.
func (e *Engine) compensate(ctx context.Context, in *instance.Instance, def *definition.Definition, failedStepID string) {
	done := make(map[string]bool)

	for i := len(in.ExecutionLog) - 1; i >= 0; i-- {
		entry := in.ExecutionLog[i]
		if entry.Status != instance.LogCompleted || entry.StepID == failedStepID || done[entry.StepID] {
			continue
		}
		done[entry.StepID] = true

		step, ok := def.Step(entry.StepID)
		if !ok || step.Compensation == "" {
			continue
		}
		comp, ok := def.Step(step.Compensation)
		if !ok {
			// Validate guarantees resolution for validated definitions.
			e.logger.Warn("compensation step missing",
				slog.String("instance_id", in.ID.String()),
				slog.String("step_id", step.ID),
				slog.String("compensation", step.Compensation),
			)
			continue
		}

		e.runCompensation(ctx, in, def, step, comp)
	}
}

// runCompensation executes one compensation step, without retries, and
// records the outcome in the rollback log.
func (e *Engine) runCompensation(ctx context.Context, in *instance.Instance, def *definition.Definition, step, comp *definition.Step) {
	in.Metrics.Compensations++

	out, err := e.dispatch(ctx, in, def, comp)
	if err != nil {
		in.AppendRollback(instance.LogEntry{
			StepID:   comp.ID,
			Action:   comp.Action,
			Status:   instance.LogCompensationFailed,
			Error:    err.Error(),
			Metadata: map[string]any{"compensates": step.ID},
		})
		e.hooks.EmitStepCompensated(ctx, in, step.ID, err)
		e.logger.Error("compensation failed",
			slog.String("instance_id", in.ID.String()),
			slog.String("step_id", step.ID),
			slog.String("compensation", comp.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	in.AppendRollback(instance.LogEntry{
		StepID:   comp.ID,
		Action:   comp.Action,
		Status:   instance.LogCompensated,
		Output:   out,
		Metadata: map[string]any{"compensates": step.ID},
	})
	e.hooks.EmitStepCompensated(ctx, in, step.ID, nil)
	e.logger.Info("step compensated",
		slog.String("instance_id", in.ID.String()),
		slog.String("step_id", step.ID),
		slog.String("compensation", comp.ID),
	)
}
