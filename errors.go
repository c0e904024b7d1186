package stepflow

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("stepflow: no store configured")
	ErrStoreClosed     = errors.New("stepflow: store closed")
	ErrMigrationFailed = errors.New("stepflow: migration failed")

	// Definition errors. These are synchronous and precede instance creation.
	ErrInvalidDefinition  = errors.New("stepflow: invalid workflow definition")
	ErrStepNotFound       = errors.New("stepflow: step not found")
	ErrCircularDependency = errors.New("stepflow: circular dependency")

	// Not found errors.
	ErrInstanceNotFound   = errors.New("stepflow: instance not found")
	ErrInstanceExists     = errors.New("stepflow: instance already exists")
	ErrDefinitionNotFound = errors.New("stepflow: workflow definition not found")
	ErrNoHandler          = errors.New("stepflow: no handler registered")

	// Execution errors.
	ErrStepExecutionFailed = errors.New("stepflow: step execution failed")
	ErrStepTimeout         = errors.New("stepflow: step timed out")
	ErrMaxRetriesExceeded  = errors.New("stepflow: max retries exceeded")

	// State errors.
	ErrInstanceNotRunning = errors.New("stepflow: instance is not running")
	ErrInstanceActive     = errors.New("stepflow: instance is already being executed")
)
