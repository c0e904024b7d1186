package redis

import (
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/id"
	"github.com/stepflow/stepflow/instance"
)

// record is the msgpack wire form of an instance. IDs travel as strings;
// everything else maps one to one.
type record struct {
	ID              string                  `msgpack:"id"`
	WorkflowID      string                  `msgpack:"workflow_id"`
	WorkflowVersion int                     `msgpack:"workflow_version"`
	Status          string                  `msgpack:"status"`
	CurrentStep     string                  `msgpack:"current_step"`
	Input           map[string]any          `msgpack:"input"`
	Output          map[string]any          `msgpack:"output"`
	Variables       map[string]any          `msgpack:"variables"`
	Metadata        map[string]any          `msgpack:"metadata"`
	CorrelationID   string                  `msgpack:"correlation_id"`
	TraceID         string                  `msgpack:"trace_id"`
	ExecutionLog    []instance.LogEntry     `msgpack:"execution_log"`
	RollbackLog     []instance.LogEntry     `msgpack:"rollback_log"`
	Metrics         instance.Metrics        `msgpack:"metrics"`
	Error           *stepflow.WorkflowError `msgpack:"error"`
	RetryCount      int                     `msgpack:"retry_count"`
	UserID          string                  `msgpack:"user_id"`
	Priority        int                     `msgpack:"priority"`
	CancelReason    string                  `msgpack:"cancellation_reason"`
	StartedAt       time.Time               `msgpack:"started_at"`
	CompletedAt     *time.Time              `msgpack:"completed_at"`
	CreatedAt       time.Time               `msgpack:"created_at"`
	UpdatedAt       time.Time               `msgpack:"updated_at"`
}

func encode(in *instance.Instance) ([]byte, error) {
	r := &record{
		ID:              in.ID.String(),
		WorkflowID:      in.WorkflowID,
		WorkflowVersion: in.WorkflowVersion,
		Status:          string(in.Status),
		CurrentStep:     in.CurrentStep,
		Input:           in.Input,
		Output:          in.Output,
		Variables:       in.Variables,
		Metadata:        in.Metadata,
		CorrelationID:   in.Context.CorrelationID,
		TraceID:         in.Context.TraceID,
		ExecutionLog:    in.ExecutionLog,
		RollbackLog:     in.RollbackLog,
		Metrics:         in.Metrics,
		Error:           in.Error,
		RetryCount:      in.RetryCount,
		UserID:          in.UserID,
		Priority:        in.Priority,
		CancelReason:    in.CancellationReason,
		StartedAt:       in.StartedAt,
		CompletedAt:     in.CompletedAt,
		CreatedAt:       in.CreatedAt,
		UpdatedAt:       in.UpdatedAt,
	}
	payload, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: encode instance %s: %w", r.ID, err)
	}
	return payload, nil
}

func decode(payload []byte) (*instance.Instance, error) {
	var r record
	if err := msgpack.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("stepflow/redis: decode instance: %w", err)
	}

	instanceID, err := id.ParseInstanceID(r.ID)
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: parse instance id %q: %w", r.ID, err)
	}

	return &instance.Instance{
		Entity: stepflow.Entity{
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		},
		ID:              instanceID,
		WorkflowID:      r.WorkflowID,
		WorkflowVersion: r.WorkflowVersion,
		Status:          instance.Status(r.Status),
		CurrentStep:     r.CurrentStep,
		Input:           r.Input,
		Output:          r.Output,
		Variables:       r.Variables,
		Metadata:        r.Metadata,
		Context: instance.Context{
			CorrelationID: r.CorrelationID,
			TraceID:       r.TraceID,
		},
		ExecutionLog:       r.ExecutionLog,
		RollbackLog:        r.RollbackLog,
		Metrics:            r.Metrics,
		Error:              r.Error,
		RetryCount:         r.RetryCount,
		UserID:             r.UserID,
		Priority:           r.Priority,
		CancellationReason: r.CancelReason,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
	}, nil
}

// isNil reports whether err is the go-redis key-missing sentinel.
func isNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

func sortByCreation(ins []*instance.Instance) {
	sort.Slice(ins, func(i, j int) bool {
		if ins[i].CreatedAt.Equal(ins[j].CreatedAt) {
			return ins[i].ID.String() < ins[j].ID.String()
		}
		return ins[i].CreatedAt.Before(ins[j].CreatedAt)
	})
}
