package definition_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/definition"
)

func linearDef() *definition.Definition {
	return &definition.Definition{
		ID:          "wf-linear",
		Version:     1,
		InitialStep: "a",
		Steps: []definition.Step{
			{ID: "a", Type: definition.TypeTask, Action: "do-a",
				Transitions: []definition.Transition{{To: []string{"b"}, Condition: "success"}}},
			{ID: "b", Type: definition.TypeTask, Action: "do-b"},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := definition.Validate(linearDef()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_ConcurrentCallsAreSafe(t *testing.T) {
	d := linearDef()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := definition.Validate(d); err != nil {
				t.Errorf("Validate: %v", err)
			}
			if _, ok := d.Step("a"); !ok {
				t.Error("step lookup failed after validation")
			}
		}()
	}
	wg.Wait()
}

func TestValidate_EmptyDefinition(t *testing.T) {
	err := definition.Validate(&definition.Definition{ID: "empty"})
	if !errors.Is(err, stepflow.ErrInvalidDefinition) {
		t.Fatalf("err = %v, want ErrInvalidDefinition", err)
	}
}

func TestValidate_MissingInitialStep(t *testing.T) {
	d := linearDef()
	d.InitialStep = "nope"
	if err := definition.Validate(d); !errors.Is(err, stepflow.ErrStepNotFound) {
		t.Fatalf("err = %v, want ErrStepNotFound", err)
	}
}

func TestValidate_DuplicateStepID(t *testing.T) {
	d := linearDef()
	d.Steps = append(d.Steps, definition.Step{ID: "a", Type: definition.TypeTask})
	if err := definition.Validate(d); !errors.Is(err, stepflow.ErrInvalidDefinition) {
		t.Fatalf("err = %v, want ErrInvalidDefinition", err)
	}
}

func TestValidate_UnresolvedTransitionTarget(t *testing.T) {
	d := linearDef()
	d.Steps[1].Transitions = []definition.Transition{{To: []string{"ghost"}}}
	if err := definition.Validate(d); !errors.Is(err, stepflow.ErrStepNotFound) {
		t.Fatalf("err = %v, want ErrStepNotFound", err)
	}
}

func TestValidate_UnresolvedCompensation(t *testing.T) {
	d := linearDef()
	d.Steps[0].Compensation = "undo-ghost"
	if err := definition.Validate(d); !errors.Is(err, stepflow.ErrStepNotFound) {
		t.Fatalf("err = %v, want ErrStepNotFound", err)
	}
}

func TestValidate_MalformedCondition(t *testing.T) {
	d := linearDef()
	d.Steps[0].Transitions[0].Condition = "amount >"
	if err := definition.Validate(d); !errors.Is(err, stepflow.ErrInvalidDefinition) {
		t.Fatalf("err = %v, want ErrInvalidDefinition", err)
	}
}

func TestValidate_ForkWithoutJoin(t *testing.T) {
	d := &definition.Definition{
		ID:          "wf-fork",
		InitialStep: "fork",
		Steps: []definition.Step{
			{ID: "fork", Type: definition.TypeParallel,
				Transitions: []definition.Transition{{To: []string{"x", "y"}, Condition: "success"}}},
			{ID: "x", Type: definition.TypeTask},
			{ID: "y", Type: definition.TypeTask},
		},
	}
	if err := definition.Validate(d); !errors.Is(err, stepflow.ErrInvalidDefinition) {
		t.Fatalf("err = %v, want ErrInvalidDefinition", err)
	}

	d.Steps[0].Transitions[0].JoinStep = "x"
	if err := definition.Validate(d); err != nil {
		t.Fatalf("with explicit join: %v", err)
	}
}

func TestValidate_RejectsUnboundedCycle(t *testing.T) {
	d := &definition.Definition{
		ID:          "wf-cycle",
		InitialStep: "a",
		Steps: []definition.Step{
			{ID: "a", Type: definition.TypeTask,
				Transitions: []definition.Transition{{To: []string{"b"}, Condition: "success"}}},
			{ID: "b", Type: definition.TypeTask,
				Transitions: []definition.Transition{{To: []string{"a"}, Condition: "success"}}},
		},
	}
	if err := definition.Validate(d); !errors.Is(err, stepflow.ErrCircularDependency) {
		t.Fatalf("err = %v, want ErrCircularDependency", err)
	}
}

func TestValidate_AllowsBoundedLoop(t *testing.T) {
	d := &definition.Definition{
		ID:          "wf-loop",
		InitialStep: "poll",
		Steps: []definition.Step{
			{ID: "poll", Type: definition.TypeTask, Action: "poll", MaxVisits: 5,
				Transitions: []definition.Transition{
					{To: []string{"done"}, Condition: "ready == true"},
					{To: []string{"poll"}, Condition: "success"},
				}},
			{ID: "done", Type: definition.TypeTask, Action: "finish"},
		},
	}
	if err := definition.Validate(d); err != nil {
		t.Fatalf("bounded loop should validate: %v", err)
	}
}

func TestRetryPolicy_Retryable(t *testing.T) {
	p := definition.DefaultRetryPolicy()
	for _, code := range []stepflow.Code{stepflow.CodeTimeout, stepflow.CodeNetwork, stepflow.CodeTemporaryFailure} {
		if !p.Retryable(code) {
			t.Errorf("default policy should retry %s", code)
		}
	}
	if p.Retryable(stepflow.CodeBusinessRule) {
		t.Error("default policy should not retry BUSINESS_RULE_ERROR")
	}

	narrow := definition.RetryPolicy{RetryableErrors: []stepflow.Code{stepflow.CodeNetwork}}
	if narrow.Retryable(stepflow.CodeTimeout) {
		t.Error("explicit allowlist should exclude TIMEOUT_ERROR")
	}
}

func TestDefinition_JoinFor(t *testing.T) {
	d := &definition.Definition{
		ID:          "wf-join",
		InitialStep: "fork",
		Steps: []definition.Step{
			{ID: "fork", Type: definition.TypeParallel,
				Transitions: []definition.Transition{{To: []string{"x", "y"}, Condition: "success"}}},
			{ID: "x", Type: definition.TypeTask},
			{ID: "y", Type: definition.TypeTask},
			{ID: "merge", Type: definition.TypeJoin,
				Transitions: []definition.Transition{{To: []string{"x"}, Condition: "success"}}},
		},
	}

	// Heuristic fallback: first Join-typed step with a success transition.
	if got := d.JoinFor(&d.Steps[0].Transitions[0]); got != "merge" {
		t.Errorf("JoinFor = %q, want %q", got, "merge")
	}

	// Explicit reference wins.
	d.Steps[0].Transitions[0].JoinStep = "y"
	if got := d.JoinFor(&d.Steps[0].Transitions[0]); got != "y" {
		t.Errorf("JoinFor = %q, want %q", got, "y")
	}
}
