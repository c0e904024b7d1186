// Package store defines the aggregate persistence interface for workflow
// instances. Backends: Postgres (bun), Redis, and Memory. A backend
// implements instance.Store plus the lifecycle operations.
package store

import (
	"context"

	"github.com/stepflow/stepflow/instance"
)

// Store is the aggregate persistence interface.
type Store interface {
	instance.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases resources owned by the store.
	Close() error
}
