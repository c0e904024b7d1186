package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/id"
	"github.com/stepflow/stepflow/instance"
)

// Cancel requests cooperative cancellation of a running instance. An
// in-flight run observes the request at its next loop boundary; an
// instance only present in the store (PENDING or SUSPENDED after a
// restart) is cancelled directly.
func (e *Engine) Cancel(ctx context.Context, instanceID id.InstanceID, reason string) error {
	if h, ok := e.working.Get(instanceID); ok {
		h.Cancel(reason)
		return nil
	}
	return e.stopStored(ctx, instanceID, instance.StatusCancelled, reason)
}

// Terminate forces an instance into the TERMINATED terminal state.
func (e *Engine) Terminate(ctx context.Context, instanceID id.InstanceID, reason string) error {
	if h, ok := e.working.Get(instanceID); ok {
		h.Terminate(reason)
		return nil
	}
	return e.stopStored(ctx, instanceID, instance.StatusTerminated, reason)
}

// Status reads an instance's durable record. It never consults the
// working set, so the answer reflects the last persisted checkpoint.
func (e *Engine) Status(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	return e.store.Load(ctx, instanceID)
}

// stopStored applies a stop directly to the persisted record.
func (e *Engine) stopStored(ctx context.Context, instanceID id.InstanceID, target instance.Status, reason string) error {
	in, err := e.store.Load(ctx, instanceID)
	if err != nil {
		return err
	}
	if !instance.CanTransition(in.Status, target) {
		return fmt.Errorf("%w: instance %s is %s", stepflow.ErrInstanceNotRunning, instanceID, in.Status)
	}

	now := time.Now().UTC()
	in.Status = target
	in.CancellationReason = reason
	in.CompletedAt = &now
	in.AppendLog(instance.LogEntry{
		StepID:   in.CurrentStep,
		Status:   instance.LogCancelled,
		Metadata: map[string]any{"reason": reason},
	})
	in.Touch()
	if err := e.store.Update(ctx, in); err != nil {
		return fmt.Errorf("engine: update stopped instance: %w", err)
	}
	e.hooks.EmitInstanceCancelled(ctx, in, reason)
	return nil
}
