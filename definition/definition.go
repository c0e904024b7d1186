// Package definition defines the workflow graph model — definitions,
// steps, transitions, retry policies — and the validator that checks a
// definition is well-formed before any instance runs.
package definition

import (
	"sync"
	"time"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/expr"
)

// StepType identifies how the engine treats a step. Unknown types fall
// back to Task handling (action-name dispatch).
type StepType string

// Step types.
const (
	TypeTask         StepType = "task"
	TypeDecision     StepType = "decision"
	TypeParallel     StepType = "parallel"
	TypeJoin         StepType = "join"
	TypeEventWait    StepType = "event_wait"
	TypeEventEmit    StepType = "event_emit"
	TypeSubworkflow  StepType = "subworkflow"
	TypeScript       StepType = "script"
	TypeHumanTask    StepType = "human_task"
	TypeTimer        StepType = "timer"
	TypeErrorHandler StepType = "error_handler"
)

// RetryPolicy governs re-invocation of a failing step. The delay for
// retry attempt n is RetryDelay * BackoffMultiplier^(n-1), capped at
// MaxRetryDelay. A multiplier of 0 or 1 yields a constant delay.
type RetryPolicy struct {
	MaxRetries        int             `json:"max_retries"`
	RetryDelay        time.Duration   `json:"retry_delay"`
	BackoffMultiplier float64         `json:"backoff_multiplier,omitempty"`
	MaxRetryDelay     time.Duration   `json:"max_retry_delay,omitempty"`
	RetryableErrors   []stepflow.Code `json:"retryable_errors,omitempty"`
}

// DefaultRetryPolicy returns the engine default: three retries at a one
// second base delay, doubling per attempt, for the transient error codes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		RetryDelay:        1 * time.Second,
		BackoffMultiplier: 2,
		MaxRetryDelay:     30 * time.Second,
		RetryableErrors: []stepflow.Code{
			stepflow.CodeTimeout,
			stepflow.CodeNetwork,
			stepflow.CodeTemporaryFailure,
		},
	}
}

// Retryable reports whether the given code is in the policy's allowlist.
// An empty allowlist falls back to the default transient codes.
func (p RetryPolicy) Retryable(code stepflow.Code) bool {
	allow := p.RetryableErrors
	if len(allow) == 0 {
		allow = DefaultRetryPolicy().RetryableErrors
	}
	for _, c := range allow {
		if c == code {
			return true
		}
	}
	return false
}

// Transition is a directed edge from a step to one or more successors.
// A transition with multiple targets is a fork; forks name their join
// step explicitly via JoinStep.
type Transition struct {
	// To lists the target step IDs. One target is a normal transition;
	// more than one is a fork.
	To []string `json:"to"`

	// JoinStep is the step where forked branches reconverge. Required for
	// forks in new definitions; when empty the engine falls back to the
	// first Join-typed step that declares a success transition.
	JoinStep string `json:"join_step,omitempty"`

	// Condition gates the transition. See package expr for the grammar.
	Condition string `json:"condition,omitempty"`

	// Priority orders evaluation: higher priorities are evaluated first,
	// declaration order breaking ties.
	Priority int `json:"priority,omitempty"`

	cond expr.Expr
}

// IsFork reports whether the transition targets multiple steps.
func (t *Transition) IsFork() bool { return len(t.To) > 1 }

// Target returns the single target of a non-fork transition.
func (t *Transition) Target() string {
	if len(t.To) == 0 {
		return ""
	}
	return t.To[0]
}

// Matches evaluates the transition condition against a step outcome and
// the instance input. Conditions are compiled by Validate; on an
// unvalidated transition the condition is parsed per call, with
// malformed conditions treated as true.
func (t *Transition) Matches(outcome expr.Outcome, input map[string]any) bool {
	cond := t.cond
	if cond == nil {
		cond = expr.MustParse(t.Condition)
	}
	return cond.Eval(outcome, input)
}

// Step is an atomic unit of work in a workflow definition.
type Step struct {
	ID     string         `json:"id"`
	Type   StepType       `json:"type"`
	Action string         `json:"action,omitempty"`
	Config map[string]any `json:"config,omitempty"`

	Transitions []Transition  `json:"transitions,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	Retry       *RetryPolicy  `json:"retry,omitempty"`

	// Compensation names the step that semantically undoes this one
	// during rollback.
	Compensation string `json:"compensation,omitempty"`

	// MaxVisits caps how often a run may re-enter this step. Zero means
	// one visit. Values above one make the step a legal loop re-entry
	// point; the validator rejects any cycle without one.
	MaxVisits int `json:"max_visits,omitempty"`
}

// VisitLimit returns the effective per-run visit cap for the step.
func (s *Step) VisitLimit() int {
	if s.MaxVisits > 1 {
		return s.MaxVisits
	}
	return 1
}

// Definition is a versioned workflow graph. Validate compiles it in
// place exactly once; after a successful validation the definition is
// read-only and safe to execute from any number of goroutines. Mutating
// a compiled definition is not supported.
type Definition struct {
	ID          string         `json:"id"`
	Version     int            `json:"version"`
	Steps       []Step         `json:"steps"`
	InitialStep string         `json:"initial_step"`
	Variables   map[string]any `json:"variables,omitempty"`
	Timeout     time.Duration  `json:"timeout,omitempty"`
	Retry       *RetryPolicy   `json:"retry,omitempty"`

	mu       sync.Mutex
	compiled bool
	index    map[string]*Step
}

// Step returns the step with the given ID, or false if it does not
// exist. The index exists once Validate has compiled the definition;
// before that, lookups fall back to a linear scan so that Step never
// mutates shared state.
func (d *Definition) Step(stepID string) (*Step, bool) {
	if d.index != nil {
		s, ok := d.index[stepID]
		return s, ok
	}
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return &d.Steps[i], true
		}
	}
	return nil, false
}

func (d *Definition) buildIndex() {
	d.index = make(map[string]*Step, len(d.Steps))
	for i := range d.Steps {
		d.index[d.Steps[i].ID] = &d.Steps[i]
	}
}

// JoinFor resolves the join step for a fork transition. It prefers the
// explicit JoinStep reference and falls back to the historical heuristic:
// the first Join-typed step whose transitions include a success condition.
func (d *Definition) JoinFor(t *Transition) string {
	if t.JoinStep != "" {
		return t.JoinStep
	}
	for i := range d.Steps {
		s := &d.Steps[i]
		if s.Type != TypeJoin {
			continue
		}
		for j := range s.Transitions {
			if s.Transitions[j].Condition == string(expr.OutcomeSuccess) {
				return s.ID
			}
		}
	}
	return ""
}
