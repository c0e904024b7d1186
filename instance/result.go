package instance

import (
	"time"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/id"
)

// Result is the execution outcome returned to the caller. It snapshots
// the instance's final state together with the ordered step path.
type Result struct {
	InstanceID id.InstanceID `json:"instance_id"`
	WorkflowID string        `json:"workflow_id"`
	Status     Status        `json:"status"`

	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	ExecutionPath []string   `json:"execution_path"`
	ExecutionLog  []LogEntry `json:"execution_log,omitempty"`
	RollbackLog   []LogEntry `json:"rollback_log,omitempty"`
	Metrics       Metrics    `json:"metrics"`

	Error      *stepflow.WorkflowError `json:"error,omitempty"`
	RetryCount int                     `json:"retry_count"`

	StartedAt          time.Time     `json:"started_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
	ExecutionTime      time.Duration `json:"execution_time"`
	CancellationReason string        `json:"cancellation_reason,omitempty"`
}

// ResultOf builds a Result from a settled instance and its step path.
func ResultOf(in *Instance, path []string) *Result {
	r := &Result{
		InstanceID:         in.ID,
		WorkflowID:         in.WorkflowID,
		Status:             in.Status,
		Input:              in.Input,
		Output:             in.Output,
		Variables:          in.Variables,
		Metadata:           in.Metadata,
		ExecutionPath:      path,
		ExecutionLog:       in.ExecutionLog,
		RollbackLog:        in.RollbackLog,
		Metrics:            in.Metrics,
		Error:              in.Error,
		RetryCount:         in.RetryCount,
		StartedAt:          in.StartedAt,
		CompletedAt:        in.CompletedAt,
		CancellationReason: in.CancellationReason,
	}
	if in.CompletedAt != nil {
		r.ExecutionTime = in.CompletedAt.Sub(in.StartedAt)
	}
	return r
}
