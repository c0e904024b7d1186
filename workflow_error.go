package stepflow

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies a workflow error. The retryable and recoverable flags
// of a WorkflowError are derived from a fixed per-code table, not from
// per-instance policy.
type Code string

// Error codes recognized by the engine.
const (
	CodeTimeout          Code = "TIMEOUT_ERROR"
	CodeNetwork          Code = "NETWORK_ERROR"
	CodeTemporaryFailure Code = "TEMPORARY_FAILURE"
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeBusinessRule     Code = "BUSINESS_RULE_ERROR"
	CodeStepFailed       Code = "STEP_EXECUTION_FAILED"
	CodeRetriesExceeded  Code = "MAX_RETRIES_EXCEEDED"
	CodeCircular         Code = "CIRCULAR_DEPENDENCY"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// classification is the fixed code table: network and timeout failures are
// retryable; validation and business-rule failures are recoverable (a
// declared error transition can absorb them).
var classification = map[Code]struct {
	retryable   bool
	recoverable bool
}{
	CodeTimeout:          {retryable: true},
	CodeNetwork:          {retryable: true},
	CodeTemporaryFailure: {retryable: true},
	CodeValidation:       {recoverable: true},
	CodeBusinessRule:     {recoverable: true},
	CodeStepFailed:       {},
	CodeRetriesExceeded:  {},
	CodeCircular:         {},
	CodeInternal:         {},
}

// WorkflowError is the structured error attached to failed instances and
// returned from the engine. Retryable and Recoverable are populated from
// the classification table when the error is created.
type WorkflowError struct {
	Code        Code           `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	StepID      string         `json:"step_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Retryable   bool           `json:"retryable"`
	Recoverable bool           `json:"recoverable"`

	cause error
}

// NewWorkflowError creates a WorkflowError with flags derived from the
// classification table. Unknown codes classify as INTERNAL_ERROR.
func NewWorkflowError(code Code, stepID, message string) *WorkflowError {
	cls, ok := classification[code]
	if !ok {
		code = CodeInternal
		cls = classification[CodeInternal]
	}
	return &WorkflowError{
		Code:        code,
		Message:     message,
		StepID:      stepID,
		Timestamp:   time.Now().UTC(),
		Retryable:   cls.retryable,
		Recoverable: cls.recoverable,
	}
}

// WrapError builds a WorkflowError around an underlying error. If err is
// already a *WorkflowError it is returned unchanged; otherwise it is
// classified under the given fallback code.
func WrapError(err error, fallback Code, stepID string) *WorkflowError {
	var werr *WorkflowError
	if errors.As(err, &werr) {
		return werr
	}
	w := NewWorkflowError(fallback, stepID, err.Error())
	w.cause = err
	return w
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("stepflow: step %q: %s: %s", e.StepID, e.Code, e.Message)
	}
	return fmt.Sprintf("stepflow: %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *WorkflowError) Unwrap() error { return e.cause }

// WithDetails attaches structured detail fields and returns the error.
func (e *WorkflowError) WithDetails(details map[string]any) *WorkflowError {
	e.Details = details
	return e
}

// CodeOf extracts the Code from an error chain. Errors that are not
// WorkflowErrors report CodeInternal.
func CodeOf(err error) Code {
	var werr *WorkflowError
	if errors.As(err, &werr) {
		return werr.Code
	}
	return CodeInternal
}
