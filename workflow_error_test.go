package stepflow_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stepflow/stepflow"
)

func TestNewWorkflowError_Classification(t *testing.T) {
	tests := []struct {
		code        stepflow.Code
		retryable   bool
		recoverable bool
	}{
		{stepflow.CodeTimeout, true, false},
		{stepflow.CodeNetwork, true, false},
		{stepflow.CodeTemporaryFailure, true, false},
		{stepflow.CodeValidation, false, true},
		{stepflow.CodeBusinessRule, false, true},
		{stepflow.CodeStepFailed, false, false},
		{stepflow.CodeRetriesExceeded, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			werr := stepflow.NewWorkflowError(tt.code, "step-1", "boom")
			if werr.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", werr.Retryable, tt.retryable)
			}
			if werr.Recoverable != tt.recoverable {
				t.Errorf("Recoverable = %v, want %v", werr.Recoverable, tt.recoverable)
			}
			if werr.Timestamp.IsZero() {
				t.Error("Timestamp not stamped")
			}
		})
	}
}

func TestNewWorkflowError_UnknownCodeFallsBackToInternal(t *testing.T) {
	werr := stepflow.NewWorkflowError("NO_SUCH_CODE", "", "boom")
	if werr.Code != stepflow.CodeInternal {
		t.Errorf("Code = %q, want %q", werr.Code, stepflow.CodeInternal)
	}
}

func TestWrapError_PassesThroughWorkflowError(t *testing.T) {
	orig := stepflow.NewWorkflowError(stepflow.CodeBusinessRule, "step-1", "limit exceeded")
	wrapped := fmt.Errorf("outer: %w", orig)

	got := stepflow.WrapError(wrapped, stepflow.CodeStepFailed, "step-2")
	if got != orig {
		t.Errorf("WrapError did not pass through the original WorkflowError")
	}
	if got.Code != stepflow.CodeBusinessRule {
		t.Errorf("Code = %q, want %q", got.Code, stepflow.CodeBusinessRule)
	}
}

func TestWrapError_KeepsCauseChain(t *testing.T) {
	cause := errors.New("connection refused")
	werr := stepflow.WrapError(cause, stepflow.CodeNetwork, "step-1")

	if !errors.Is(werr, cause) {
		t.Error("wrapped error lost its cause")
	}
	if !werr.Retryable {
		t.Error("NETWORK_ERROR should be retryable")
	}
}

func TestCodeOf(t *testing.T) {
	werr := stepflow.NewWorkflowError(stepflow.CodeTimeout, "s", "slow")
	if got := stepflow.CodeOf(fmt.Errorf("wrap: %w", werr)); got != stepflow.CodeTimeout {
		t.Errorf("CodeOf = %q, want %q", got, stepflow.CodeTimeout)
	}
	if got := stepflow.CodeOf(errors.New("plain")); got != stepflow.CodeInternal {
		t.Errorf("CodeOf(plain) = %q, want %q", got, stepflow.CodeInternal)
	}
}
