package engine

import (
	"sort"
	"strings"

	"github.com/stepflow/stepflow/definition"
	"github.com/stepflow/stepflow/expr"
)

// matchTransition picks the step's outgoing transition for an outcome:
// transitions are evaluated in descending priority, declaration order
// breaking ties, and the first match wins.
//
// Failure outcomes only follow transitions that declare them: an
// "error" or "timeout" condition. A "timeout" falls back to an "error"
// transition when no timeout-specific one matches; unconditional and
// comparison transitions never absorb a failure.
func (e *Engine) matchTransition(step *definition.Step, outcome expr.Outcome, scope map[string]any) *definition.Transition {
	if len(step.Transitions) == 0 {
		return nil
	}

	idx := make([]int, len(step.Transitions))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return step.Transitions[idx[a]].Priority > step.Transitions[idx[b]].Priority
	})

	for _, i := range idx {
		t := &step.Transitions[i]
		if outcome != expr.OutcomeSuccess {
			cond := expr.Outcome(strings.TrimSpace(t.Condition))
			if cond == outcome || (cond == expr.OutcomeError && outcome == expr.OutcomeTimeout) {
				return t
			}
			continue
		}
		if t.Matches(outcome, scope) {
			return t
		}
	}
	return nil
}
