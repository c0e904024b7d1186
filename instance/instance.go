// Package instance defines the runtime state of a workflow execution:
// the instance record, its status state machine, the append-only
// execution log, metrics, the persistence contract, and the in-memory
// working-set registry that enforces the single-writer discipline.
package instance

import (
	"time"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/id"
)

// Status is the lifecycle state of a workflow instance.
type Status string

// Instance statuses. SUSPENDED is entered from RUNNING while parked on
// an event wait and exited back to RUNNING on event or timeout.
const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusSuspended  Status = "suspended"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusTerminated Status = "terminated"
)

// Terminal reports whether the status is a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTerminated:
		return true
	}
	return false
}

// validTransitions is the instance state machine.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusRunning, StatusCancelled, StatusTerminated},
	StatusRunning:   {StatusSuspended, StatusCompleted, StatusFailed, StatusCancelled, StatusTerminated},
	StatusSuspended: {StatusRunning, StatusCancelled, StatusTerminated},
}

// CanTransition reports whether the state machine allows moving from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// LogStatus classifies an execution log entry.
type LogStatus string

// Log entry statuses.
const (
	LogStarted            LogStatus = "started"
	LogCompleted          LogStatus = "completed"
	LogFailed             LogStatus = "failed"
	LogCancelled          LogStatus = "cancelled"
	LogRetry              LogStatus = "retry"
	LogSuspended          LogStatus = "suspended"
	LogResumed            LogStatus = "resumed"
	LogCompensated        LogStatus = "compensated"
	LogCompensationFailed LogStatus = "compensation_failed"
)

// LogEntry is one record in an instance's append-only execution log.
// The log forms the audit trail compensation ordering is derived from.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	StepID    string         `json:"step_id"`
	Action    string         `json:"action,omitempty"`
	Status    LogStatus      `json:"status"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Metrics aggregates per-run execution counters.
type Metrics struct {
	StepsExecuted int           `json:"steps_executed"`
	StepsFailed   int           `json:"steps_failed"`
	Retries       int           `json:"retries"`
	Compensations int           `json:"compensations"`
	Duration      time.Duration `json:"duration"`
}

// Context carries correlation identifiers through a run.
type Context struct {
	CorrelationID string `json:"correlation_id,omitempty"`
	TraceID       string `json:"trace_id,omitempty"`
}

// Instance is one runtime execution of a workflow definition. For the
// duration of a run it is owned exclusively by the orchestrator loop
// handling its ID; fork branches receive copies (Branch) and results are
// merged back after all branches settle.
type Instance struct {
	stepflow.Entity

	ID              id.InstanceID `json:"id"`
	WorkflowID      string        `json:"workflow_id"`
	WorkflowVersion int           `json:"workflow_version"`
	Status          Status        `json:"status"`
	CurrentStep     string        `json:"current_step,omitempty"`

	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Context   Context        `json:"context"`

	// Metadata is opaque caller data attached at submission. The engine
	// never reads it.
	Metadata map[string]any `json:"metadata,omitempty"`

	ExecutionLog []LogEntry `json:"execution_log,omitempty"`
	RollbackLog  []LogEntry `json:"rollback_log,omitempty"`
	Metrics      Metrics    `json:"metrics"`

	Error      *stepflow.WorkflowError `json:"error,omitempty"`
	RetryCount int                     `json:"retry_count"`

	UserID             string     `json:"user_id,omitempty"`
	Priority           int        `json:"priority,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// AppendLog appends an entry to the execution log, stamping the time if
// the entry carries none.
func (in *Instance) AppendLog(e LogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	in.ExecutionLog = append(in.ExecutionLog, e)
}

// AppendRollback appends an entry to the rollback log.
func (in *Instance) AppendRollback(e LogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	in.RollbackLog = append(in.RollbackLog, e)
}

// Branch returns an isolated copy of the instance for a fork branch:
// a shallow clone with freshly allocated top-level maps, so no branch
// shares mutable fields with the parent or its siblings. Logs start
// empty; the parent merges them back after the branch settles.
func (in *Instance) Branch() *Instance {
	cp := *in
	cp.Input = copyMap(in.Input)
	cp.Output = copyMap(in.Output)
	cp.Variables = copyMap(in.Variables)
	cp.Metadata = copyMap(in.Metadata)
	cp.ExecutionLog = nil
	cp.RollbackLog = nil
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
