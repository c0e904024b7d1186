package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/id"
	"github.com/stepflow/stepflow/instance"
)

// instanceRow maps an instance onto the stepflow_instances table.
// Fields the queries filter and order on get their own columns; the
// rest of the record is carried in the document JSONB column.
type instanceRow struct {
	bun.BaseModel `bun:"table:stepflow_instances"`

	ID              string     `bun:"id,pk"`
	WorkflowID      string     `bun:"workflow_id,notnull"`
	WorkflowVersion int        `bun:"workflow_version,notnull,default:1"`
	Status          string     `bun:"status,notnull,default:'pending'"`
	CurrentStep     string     `bun:"current_step"`
	UserID          string     `bun:"user_id"`
	Priority        int        `bun:"priority,notnull,default:0"`
	RetryCount      int        `bun:"retry_count,notnull,default:0"`
	CancelReason    string     `bun:"cancellation_reason"`
	Document        []byte     `bun:"document,notnull,type:jsonb"`
	StartedAt       time.Time  `bun:"started_at,notnull,default:current_timestamp"`
	CompletedAt     *time.Time `bun:"completed_at"`
	CreatedAt       time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull,default:current_timestamp"`
}

// instanceDoc is the JSONB payload: everything not promoted to a column.
type instanceDoc struct {
	Input        map[string]any          `json:"input,omitempty"`
	Output       map[string]any          `json:"output,omitempty"`
	Variables    map[string]any          `json:"variables,omitempty"`
	Metadata     map[string]any          `json:"metadata,omitempty"`
	Context      instance.Context        `json:"context"`
	ExecutionLog []instance.LogEntry     `json:"execution_log,omitempty"`
	RollbackLog  []instance.LogEntry     `json:"rollback_log,omitempty"`
	Metrics      instance.Metrics        `json:"metrics"`
	Error        *stepflow.WorkflowError `json:"error,omitempty"`
}

func toRow(in *instance.Instance) (*instanceRow, error) {
	doc, err := json.Marshal(instanceDoc{
		Input:        in.Input,
		Output:       in.Output,
		Variables:    in.Variables,
		Metadata:     in.Metadata,
		Context:      in.Context,
		ExecutionLog: in.ExecutionLog,
		RollbackLog:  in.RollbackLog,
		Metrics:      in.Metrics,
		Error:        in.Error,
	})
	if err != nil {
		return nil, fmt.Errorf("stepflow/bun: marshal instance %s document: %w", in.ID, err)
	}

	return &instanceRow{
		ID:              in.ID.String(),
		WorkflowID:      in.WorkflowID,
		WorkflowVersion: in.WorkflowVersion,
		Status:          string(in.Status),
		CurrentStep:     in.CurrentStep,
		UserID:          in.UserID,
		Priority:        in.Priority,
		RetryCount:      in.RetryCount,
		CancelReason:    in.CancellationReason,
		Document:        doc,
		StartedAt:       in.StartedAt,
		CompletedAt:     in.CompletedAt,
		CreatedAt:       in.CreatedAt,
		UpdatedAt:       in.UpdatedAt,
	}, nil
}

func fromRow(row *instanceRow) (*instance.Instance, error) {
	instanceID, err := id.ParseInstanceID(row.ID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/bun: parse instance id %q: %w", row.ID, err)
	}

	var doc instanceDoc
	if err := json.Unmarshal(row.Document, &doc); err != nil {
		return nil, fmt.Errorf("stepflow/bun: unmarshal instance %s document: %w", row.ID, err)
	}

	return &instance.Instance{
		Entity: stepflow.Entity{
			CreatedAt: row.CreatedAt,
			UpdatedAt: row.UpdatedAt,
		},
		ID:                 instanceID,
		WorkflowID:         row.WorkflowID,
		WorkflowVersion:    row.WorkflowVersion,
		Status:             instance.Status(row.Status),
		CurrentStep:        row.CurrentStep,
		Input:              doc.Input,
		Output:             doc.Output,
		Variables:          doc.Variables,
		Metadata:           doc.Metadata,
		Context:            doc.Context,
		ExecutionLog:       doc.ExecutionLog,
		RollbackLog:        doc.RollbackLog,
		Metrics:            doc.Metrics,
		Error:              doc.Error,
		RetryCount:         row.RetryCount,
		UserID:             row.UserID,
		Priority:           row.Priority,
		CancellationReason: row.CancelReason,
		StartedAt:          row.StartedAt,
		CompletedAt:        row.CompletedAt,
	}, nil
}
