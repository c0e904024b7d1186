package instance

import (
	"context"

	"github.com/stepflow/stepflow/id"
)

// Filter selects instances in Find queries. Zero-valued fields match
// everything.
type Filter struct {
	WorkflowID string
	Status     Status
	UserID     string
	Limit      int
	Offset     int
}

// Store defines the persistence contract for workflow instances. The
// orchestrator saves at creation, updates after every completed step
// (the mid-run checkpoint), and updates once more when the run settles.
type Store interface {
	// Save persists a new instance.
	Save(ctx context.Context, in *Instance) error

	// Load retrieves an instance by ID.
	Load(ctx context.Context, instanceID id.InstanceID) (*Instance, error)

	// Update persists changes to an existing instance.
	Update(ctx context.Context, in *Instance) error

	// Delete removes an instance by ID.
	Delete(ctx context.Context, instanceID id.InstanceID) error

	// Find returns instances matching the given filter, ordered by
	// creation time.
	Find(ctx context.Context, f Filter) ([]*Instance, error)
}
