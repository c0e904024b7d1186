package definition

import (
	"fmt"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/expr"
)

// Validate checks that a definition is well-formed: the initial step
// exists, every transition target (including each fork branch and join
// reference) resolves to a declared step, every compensation reference
// resolves, all conditions compile, and the transition graph contains no
// cycle that lacks an explicit bounded-loop re-entry point (a step with
// MaxVisits > 1).
//
// Validate also compiles the definition in place: the step index is
// built and every condition is parsed into its expression AST, so the
// evaluator does no string parsing at run time. Compilation happens at
// most once per definition; once it has succeeded, later calls return
// immediately and the definition is read-only, which makes Validate
// safe to call before every execution even when runs of the same
// definition overlap.
func Validate(d *Definition) error {
	if d == nil || len(d.Steps) == 0 {
		return fmt.Errorf("%w: definition %q has no steps", stepflow.ErrInvalidDefinition, defID(d))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.compiled {
		return nil
	}
	if err := compile(d); err != nil {
		return err
	}
	d.compiled = true
	return nil
}

func compile(d *Definition) error {
	d.buildIndex()

	if _, ok := d.index[d.InitialStep]; !ok {
		return fmt.Errorf("%w: initial step %q in definition %q", stepflow.ErrStepNotFound, d.InitialStep, d.ID)
	}

	seen := make(map[string]bool, len(d.Steps))
	for i := range d.Steps {
		s := &d.Steps[i]
		if s.ID == "" {
			return fmt.Errorf("%w: definition %q has a step with an empty id", stepflow.ErrInvalidDefinition, d.ID)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate step id %q in definition %q", stepflow.ErrInvalidDefinition, s.ID, d.ID)
		}
		seen[s.ID] = true

		if err := validateStep(d, s); err != nil {
			return err
		}
	}

	return detectCycles(d)
}

func validateStep(d *Definition, s *Step) error {
	if s.Compensation != "" {
		if _, ok := d.index[s.Compensation]; !ok {
			return fmt.Errorf("%w: compensation %q of step %q", stepflow.ErrStepNotFound, s.Compensation, s.ID)
		}
	}

	for i := range s.Transitions {
		t := &s.Transitions[i]
		if len(t.To) == 0 {
			return fmt.Errorf("%w: step %q has a transition with no target", stepflow.ErrInvalidDefinition, s.ID)
		}
		for _, target := range t.To {
			if _, ok := d.index[target]; !ok {
				return fmt.Errorf("%w: transition target %q of step %q", stepflow.ErrStepNotFound, target, s.ID)
			}
		}
		if t.IsFork() {
			join := d.JoinFor(t)
			if join == "" {
				return fmt.Errorf("%w: fork from step %q has no join step", stepflow.ErrInvalidDefinition, s.ID)
			}
			if _, ok := d.index[join]; !ok {
				return fmt.Errorf("%w: join step %q of fork from %q", stepflow.ErrStepNotFound, join, s.ID)
			}
		}

		cond, err := expr.Parse(t.Condition)
		if err != nil {
			return fmt.Errorf("%w: step %q: %v", stepflow.ErrInvalidDefinition, s.ID, err)
		}
		t.cond = cond
	}

	return nil
}

// detectCycles runs a depth-first search over the transition graph.
// A back edge is only an error when no step on the cycle allows
// re-entry (MaxVisits > 1); such cycles can never terminate because the
// run-time visit caps would abort them on the first revisit.
func detectCycles(d *Definition) error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)

	color := make(map[string]int, len(d.Steps))
	path := make([]string, 0, len(d.Steps))

	var visit func(stepID string) error
	visit = func(stepID string) error {
		color[stepID] = gray
		path = append(path, stepID)

		step := d.index[stepID]
		for i := range step.Transitions {
			for _, target := range step.Transitions[i].To {
				switch color[target] {
				case white:
					if err := visit(target); err != nil {
						return err
					}
				case gray:
					if !cycleBounded(d, path, target) {
						return fmt.Errorf("%w: step %q revisits itself", stepflow.ErrCircularDependency, target)
					}
				}
			}
		}

		path = path[:len(path)-1]
		color[stepID] = black
		return nil
	}

	for i := range d.Steps {
		if color[d.Steps[i].ID] == white {
			if err := visit(d.Steps[i].ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleBounded reports whether the cycle closed by a back edge to `entry`
// passes through at least one step with an explicit visit allowance.
func cycleBounded(d *Definition, path []string, entry string) bool {
	start := 0
	for i, id := range path {
		if id == entry {
			start = i
			break
		}
	}
	for _, id := range path[start:] {
		if s, ok := d.index[id]; ok && s.MaxVisits > 1 {
			return true
		}
	}
	return false
}

func defID(d *Definition) string {
	if d == nil {
		return ""
	}
	return d.ID
}
