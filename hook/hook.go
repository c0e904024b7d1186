// Package hook defines the extension system for Stepflow.
// Extensions are notified of lifecycle events (instance started,
// suspended, step failed, etc.) and can react to them — audit trails,
// notifications, metrics, and the like.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/stepflow/stepflow/instance"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Instance lifecycle hooks
// ──────────────────────────────────────────────────

// InstanceStarted is called when a workflow instance begins executing.
type InstanceStarted interface {
	OnInstanceStarted(ctx context.Context, in *instance.Instance) error
}

// InstanceSuspended is called when an instance parks on an event-wait step.
type InstanceSuspended interface {
	OnInstanceSuspended(ctx context.Context, in *instance.Instance, eventType string) error
}

// InstanceResumed is called when a suspended instance resumes.
type InstanceResumed interface {
	OnInstanceResumed(ctx context.Context, in *instance.Instance, eventType string) error
}

// InstanceCompleted is called after an instance finishes successfully.
type InstanceCompleted interface {
	OnInstanceCompleted(ctx context.Context, in *instance.Instance, elapsed time.Duration) error
}

// InstanceFailed is called when an instance fails terminally.
type InstanceFailed interface {
	OnInstanceFailed(ctx context.Context, in *instance.Instance, err error) error
}

// InstanceCancelled is called after a cancellation request takes effect.
type InstanceCancelled interface {
	OnInstanceCancelled(ctx context.Context, in *instance.Instance, reason string) error
}

// ──────────────────────────────────────────────────
// Step lifecycle hooks
// ──────────────────────────────────────────────────

// StepCompleted is called after a step completes.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, in *instance.Instance, stepID string, elapsed time.Duration) error
}

// StepFailed is called when a step fails with no more retries left.
type StepFailed interface {
	OnStepFailed(ctx context.Context, in *instance.Instance, stepID string, err error) error
}

// StepRetrying is called when a step fails but will be retried.
type StepRetrying interface {
	OnStepRetrying(ctx context.Context, in *instance.Instance, stepID string, attempt int, delay time.Duration) error
}

// StepCompensated is called after a compensation step runs during rollback.
type StepCompensated interface {
	OnStepCompensated(ctx context.Context, in *instance.Instance, stepID string, compErr error) error
}
