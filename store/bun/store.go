// Package bunstore implements store.Store on PostgreSQL through the Bun
// ORM. Queryable instance fields live in real columns; the full record
// (logs, maps, metrics) rides along as a JSONB document.
//
// Usage:
//
//	s := bunstore.Open(dsn)
//	if err := s.Migrate(ctx); err != nil { ... }
//
// or bring your own *bun.DB with New.
package bunstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/instance"
)

// Compile-time interface check.
var _ instance.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store using the PostgreSQL
// dialect.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
	owned  bool
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle — the
// Store will not close it on Close().
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to PostgreSQL with the given DSN and returns a Store
// that owns the connection; Close releases it.
func Open(dsn string, opts ...Option) *Store {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	s := New(db, opts...)
	s.owned = true
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the instances table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*instanceRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create instances table: %v", stepflow.ErrMigrationFailed, err)
	}

	if _, err := s.db.NewCreateIndex().
		Model((*instanceRow)(nil)).
		Index("stepflow_instances_workflow_status_idx").
		Column("workflow_id", "status").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create workflow/status index: %v", stepflow.ErrMigrationFailed, err)
	}

	s.logger.Info("stepflow schema migrated")
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the connection when the store opened it (Open); for a
// caller-supplied db (New) it is a no-op.
func (s *Store) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
