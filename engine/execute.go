package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/action"
	"github.com/stepflow/stepflow/definition"
	"github.com/stepflow/stepflow/expr"
	"github.com/stepflow/stepflow/id"
	"github.com/stepflow/stepflow/instance"
)

// Request carries the caller-supplied parameters of one execution.
type Request struct {
	// InstanceID pins the identity of the run. When nil the engine mints
	// one; a supplied ID that already exists in the store fails the run
	// with ErrInstanceExists.
	InstanceID id.InstanceID

	Input         map[string]any
	UserID        string
	Priority      int
	CorrelationID string
	TraceID       string

	// Metadata is opaque caller data carried on the instance record.
	Metadata map[string]any

	// Timeout bounds the whole run. Zero falls back to the definition's
	// timeout; zero there too means no deadline.
	Timeout time.Duration

	// DryRun simulates the execution path without invoking handlers or
	// persisting anything.
	DryRun bool
}

// Execute runs a workflow definition to completion. The returned Result
// snapshots the settled instance; for FAILED runs the persisted record
// is returned together with a non-nil error. A cancelled run is not an
// error.
func (e *Engine) Execute(ctx context.Context, def *definition.Definition, req Request) (*instance.Result, error) {
	if err := definition.Validate(def); err != nil {
		return nil, err
	}
	if req.DryRun {
		return e.DryRun(ctx, def, req)
	}

	if timeout := runTimeout(def, req); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	instanceID := req.InstanceID
	if instanceID.IsNil() {
		instanceID = id.NewInstanceID()
	}

	// Initial variables: definition defaults overlaid with the input.
	vars := make(map[string]any, len(def.Variables)+len(req.Input))
	for k, v := range def.Variables {
		vars[k] = v
	}
	for k, v := range req.Input {
		vars[k] = v
	}

	in := &instance.Instance{
		Entity:          stepflow.NewEntity(),
		ID:              instanceID,
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		Status:          instance.StatusPending,
		Input:           req.Input,
		Output:          make(map[string]any),
		Variables:       vars,
		Context: instance.Context{
			CorrelationID: req.CorrelationID,
			TraceID:       req.TraceID,
		},
		Metadata:  req.Metadata,
		UserID:    req.UserID,
		Priority:  req.Priority,
		StartedAt: time.Now().UTC(),
	}

	h, err := e.working.Add(in)
	if err != nil {
		return nil, err
	}
	defer e.working.Evict(in.ID)

	if err := e.store.Save(ctx, in); err != nil {
		return nil, fmt.Errorf("engine: save instance: %w", err)
	}

	in.Status = instance.StatusRunning
	e.checkpoint(ctx, in)
	e.hooks.EmitInstanceStarted(ctx, in)
	e.logger.Info("workflow started",
		slog.String("instance_id", in.ID.String()),
		slog.String("workflow_id", in.WorkflowID),
		slog.Int("version", in.WorkflowVersion),
	)

	path, werr := e.run(ctx, h, def)

	return e.finalize(ctx, in, path, werr)
}

// run is the orchestrator loop: one iteration per step visit, with a
// stop check at every loop boundary.
func (e *Engine) run(ctx context.Context, h *instance.Handle, def *definition.Definition) ([]string, *stepflow.WorkflowError) {
	in := h.Instance()
	visits := make(map[string]int)
	var path []string
	current := def.InitialStep

	for current != "" {
		if stopped := e.checkStop(ctx, h); stopped {
			return path, nil
		}

		step, ok := def.Step(current)
		if !ok {
			// Validate guarantees resolution; a miss here is a bug.
			return path, stepflow.NewWorkflowError(stepflow.CodeInternal, current, "step not in definition index")
		}

		visits[current]++
		if visits[current] > step.VisitLimit() {
			werr := stepflow.NewWorkflowError(stepflow.CodeCircular, current,
				fmt.Sprintf("step visited %d times, limit %d", visits[current], step.VisitLimit()))
			e.compensate(ctx, in, def, current)
			return path, werr
		}

		in.CurrentStep = current
		path = append(path, current)

		var (
			out  action.Output
			werr *stepflow.WorkflowError
		)
		if step.Type == definition.TypeEventWait || step.Type == definition.TypeHumanTask {
			var stopped bool
			out, werr, stopped = e.waitForEvent(ctx, h, in, step, true)
			if stopped {
				e.checkStop(ctx, h)
				return path, nil
			}
		} else {
			out, werr = e.executeVisit(ctx, h, in, def, step)
		}

		// A stop requested while the step was retrying or sleeping takes
		// precedence over the step outcome.
		if stopped := e.checkStop(ctx, h); stopped {
			return path, nil
		}

		outcome := expr.OutcomeSuccess
		if werr != nil {
			outcome = expr.OutcomeError
			if werr.Code == stepflow.CodeTimeout {
				outcome = expr.OutcomeTimeout
			}
		}

		if werr == nil {
			mergeOutput(in, out)
			in.Metrics.StepsExecuted++
			e.checkpoint(ctx, in)
		}

		t := e.matchTransition(step, outcome, e.evalScope(in))
		if t == nil {
			if werr != nil {
				e.compensate(ctx, in, def, current)
				return path, werr
			}
			return path, nil // no outgoing transition: run complete
		}
		if werr != nil {
			e.logger.Info("error transition taken",
				slog.String("instance_id", in.ID.String()),
				slog.String("step_id", current),
				slog.String("error", werr.Message),
			)
		}

		if t.IsFork() {
			if ferr := e.runFork(ctx, h, in, def, t, &path); ferr != nil {
				e.compensate(ctx, in, def, current)
				return path, ferr
			}
			current = def.JoinFor(t)
			continue
		}
		current = t.Target()
	}

	return path, nil
}

// finalize settles the instance status, persists the final record, and
// notifies hooks.
func (e *Engine) finalize(ctx context.Context, in *instance.Instance, path []string, werr *stepflow.WorkflowError) (*instance.Result, error) {
	now := time.Now().UTC()
	in.CompletedAt = &now
	in.Metrics.Duration = now.Sub(in.StartedAt)

	switch {
	case werr != nil:
		in.Status = instance.StatusFailed
		in.Error = werr
	case in.Status == instance.StatusRunning:
		in.Status = instance.StatusCompleted
	}
	in.Touch()
	if err := e.store.Update(ctx, in); err != nil {
		e.logger.Error("failed to persist final instance state",
			slog.String("instance_id", in.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	switch in.Status {
	case instance.StatusCompleted:
		e.hooks.EmitInstanceCompleted(ctx, in, in.Metrics.Duration)
		e.logger.Info("workflow completed",
			slog.String("instance_id", in.ID.String()),
			slog.Duration("elapsed", in.Metrics.Duration),
		)
	case instance.StatusFailed:
		e.hooks.EmitInstanceFailed(ctx, in, werr)
		e.logger.Error("workflow failed",
			slog.String("instance_id", in.ID.String()),
			slog.String("error", werr.Error()),
		)
	case instance.StatusCancelled, instance.StatusTerminated:
		e.hooks.EmitInstanceCancelled(ctx, in, in.CancellationReason)
		e.logger.Info("workflow stopped",
			slog.String("instance_id", in.ID.String()),
			slog.String("status", string(in.Status)),
			slog.String("reason", in.CancellationReason),
		)
	}

	res := instance.ResultOf(in, path)
	if werr != nil {
		return res, werr
	}
	return res, nil
}

// checkStop applies a pending stop request (or context cancellation) to
// the instance. It records exactly one "cancelled" log entry per run;
// later calls are no-ops because the status has left RUNNING.
func (e *Engine) checkStop(ctx context.Context, h *instance.Handle) bool {
	in := h.Instance()
	if in.Status.Terminal() {
		return true
	}

	kind, reason, ok := h.StopRequest()
	if !ok {
		if ctx.Err() == nil {
			return false
		}
		h.Cancel("context cancelled: " + ctx.Err().Error())
		kind, reason, _ = h.StopRequest()
	}

	status := instance.StatusCancelled
	if kind == instance.StopTerminate {
		status = instance.StatusTerminated
	}
	in.Status = status
	in.CancellationReason = reason
	in.AppendLog(instance.LogEntry{
		StepID:   in.CurrentStep,
		Status:   instance.LogCancelled,
		Metadata: map[string]any{"reason": reason},
	})
	return true
}

// checkpoint persists the instance mid-run. Checkpoint failures are
// logged, not fatal: the run continues on in-memory state.
func (e *Engine) checkpoint(ctx context.Context, in *instance.Instance) {
	in.Touch()
	if err := e.store.Update(ctx, in); err != nil {
		e.logger.Error("checkpoint update failed",
			slog.String("instance_id", in.ID.String()),
			slog.String("step_id", in.CurrentStep),
			slog.String("error", err.Error()),
		)
	}
}

// evalScope builds the map transition conditions are evaluated against:
// input under variables under accumulated output.
func (e *Engine) evalScope(in *instance.Instance) map[string]any {
	scope := make(map[string]any, len(in.Input)+len(in.Variables)+len(in.Output))
	for k, v := range in.Input {
		scope[k] = v
	}
	for k, v := range in.Variables {
		scope[k] = v
	}
	for k, v := range in.Output {
		scope[k] = v
	}
	return scope
}

// mergeOutput merges a step's output into the instance by shallow
// union, last write wins.
func mergeOutput(in *instance.Instance, out action.Output) {
	if len(out) == 0 {
		return
	}
	if in.Output == nil {
		in.Output = make(map[string]any, len(out))
	}
	if in.Variables == nil {
		in.Variables = make(map[string]any, len(out))
	}
	for k, v := range out {
		in.Output[k] = v
		in.Variables[k] = v
	}
}

// runTimeout resolves the effective deadline of a run: request over
// definition.
func runTimeout(def *definition.Definition, req Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return def.Timeout
}

// sleep waits for the given delay, aborting early on context
// cancellation or a stop request. Reports whether the full delay passed.
func (e *Engine) sleep(ctx context.Context, h *instance.Handle, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-h.Stopped():
		return false
	}
}
