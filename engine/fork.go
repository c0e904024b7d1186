package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/action"
	"github.com/stepflow/stepflow/definition"
	"github.com/stepflow/stepflow/expr"
	"github.com/stepflow/stepflow/instance"
)

// runFork executes a fork transition: every target runs concurrently on
// an isolated branch copy of the instance, all branches settle before
// the join, and results merge back in declaration order. Branch outputs
// additionally collect under the "parallelResults" key.
//
// A branch failure does not cancel its siblings; after all branches
// settle their errors aggregate into one step-failure error.
func (e *Engine) runFork(ctx context.Context, h *instance.Handle, in *instance.Instance, def *definition.Definition, t *definition.Transition, path *[]string) *stepflow.WorkflowError {
	join := def.JoinFor(t)

	type branchResult struct {
		inst *instance.Instance
		path []string
		err  *stepflow.WorkflowError
	}
	results := make([]branchResult, len(t.To))

	var g errgroup.Group
	for i, target := range t.To {
		branch := in.Branch()
		// Branch counters start at zero so the merge adds deltas only.
		branch.Metrics = instance.Metrics{}
		branch.RetryCount = 0
		g.Go(func() error {
			p, werr := e.runBranch(ctx, h, branch, def, target, join)
			results[i] = branchResult{inst: branch, path: p, err: werr}
			return nil
		})
	}
	_ = g.Wait() // branches record their own errors; all settle

	parallel := make([]map[string]any, 0, len(results))
	var errs []error
	for _, res := range results {
		*path = append(*path, res.path...)
		in.ExecutionLog = append(in.ExecutionLog, res.inst.ExecutionLog...)
		in.RollbackLog = append(in.RollbackLog, res.inst.RollbackLog...)
		in.Metrics.StepsExecuted += res.inst.Metrics.StepsExecuted
		in.Metrics.StepsFailed += res.inst.Metrics.StepsFailed
		in.Metrics.Retries += res.inst.Metrics.Retries
		in.Metrics.Compensations += res.inst.Metrics.Compensations
		in.RetryCount += res.inst.RetryCount

		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		parallel = append(parallel, res.inst.Output)
		mergeOutput(in, res.inst.Output)
	}

	if len(errs) > 0 {
		return stepflow.NewWorkflowError(stepflow.CodeStepFailed, "",
			fmt.Sprintf("%d of %d parallel branches failed: %v",
				len(errs), len(t.To), errors.Join(errs...)))
	}

	mergeOutput(in, map[string]any{"parallelResults": parallel})
	if in == h.Instance() {
		e.checkpoint(ctx, in)
	}
	return nil
}

// runBranch walks one fork branch on its isolated instance copy until
// the join step, an end of path, or a failure. Nested forks recurse.
func (e *Engine) runBranch(ctx context.Context, h *instance.Handle, branch *instance.Instance, def *definition.Definition, from, join string) ([]string, *stepflow.WorkflowError) {
	visits := make(map[string]int)
	var path []string
	current := from

	for current != "" && current != join {
		select {
		case <-h.Stopped():
			return path, nil // parent loop settles the stop
		case <-ctx.Done():
			return path, nil
		default:
		}

		step, ok := def.Step(current)
		if !ok {
			return path, stepflow.NewWorkflowError(stepflow.CodeInternal, current, "step not in definition index")
		}

		visits[current]++
		if visits[current] > step.VisitLimit() {
			return path, stepflow.NewWorkflowError(stepflow.CodeCircular, current,
				fmt.Sprintf("step visited %d times, limit %d", visits[current], step.VisitLimit()))
		}

		branch.CurrentStep = current
		path = append(path, current)

		var (
			out  action.Output
			werr *stepflow.WorkflowError
		)
		if step.Type == definition.TypeEventWait || step.Type == definition.TypeHumanTask {
			var stopped bool
			out, werr, stopped = e.waitForEvent(ctx, h, branch, step, false)
			if stopped {
				return path, nil
			}
		} else {
			out, werr = e.executeVisit(ctx, h, branch, def, step)
		}

		outcome := expr.OutcomeSuccess
		if werr != nil {
			outcome = expr.OutcomeError
			if werr.Code == stepflow.CodeTimeout {
				outcome = expr.OutcomeTimeout
			}
		}
		if werr == nil {
			mergeOutput(branch, out)
			branch.Metrics.StepsExecuted++
		}

		t := e.matchTransition(step, outcome, e.evalScope(branch))
		if t == nil {
			if werr != nil {
				return path, werr
			}
			return path, nil
		}

		if t.IsFork() {
			if ferr := e.runFork(ctx, h, branch, def, t, &path); ferr != nil {
				return path, ferr
			}
			current = def.JoinFor(t)
			continue
		}
		current = t.Target()
	}

	return path, nil
}
