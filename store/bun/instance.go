package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/id"
	"github.com/stepflow/stepflow/instance"
)

// Save persists a new workflow instance.
func (s *Store) Save(ctx context.Context, in *instance.Instance) error {
	row, err := toRow(in)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return stepflow.ErrInstanceExists
		}
		return fmt.Errorf("stepflow/bun: save instance: %w", err)
	}
	return nil
}

// Load retrieves a workflow instance by ID.
func (s *Store) Load(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	row := new(instanceRow)
	err := s.db.NewSelect().Model(row).
		Where("id = ?", instanceID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, stepflow.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("stepflow/bun: load instance: %w", err)
	}
	return fromRow(row)
}

// Update persists changes to an existing workflow instance.
func (s *Store) Update(ctx context.Context, in *instance.Instance) error {
	row, err := toRow(in)
	if err != nil {
		return err
	}
	row.UpdatedAt = time.Now().UTC()

	res, err := s.db.NewUpdate().Model(row).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("stepflow/bun: update instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("stepflow/bun: update rows affected: %w", err)
	}
	if affected == 0 {
		return stepflow.ErrInstanceNotFound
	}
	return nil
}

// Delete removes a workflow instance by ID.
func (s *Store) Delete(ctx context.Context, instanceID id.InstanceID) error {
	res, err := s.db.NewDelete().
		Model((*instanceRow)(nil)).
		Where("id = ?", instanceID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("stepflow/bun: delete instance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("stepflow/bun: delete rows affected: %w", err)
	}
	if affected == 0 {
		return stepflow.ErrInstanceNotFound
	}
	return nil
}

// Find returns instances matching the given filter, ordered by creation
// time.
func (s *Store) Find(ctx context.Context, f instance.Filter) ([]*instance.Instance, error) {
	var rows []instanceRow
	q := s.db.NewSelect().Model(&rows).Order("created_at ASC", "id ASC")

	if f.WorkflowID != "" {
		q = q.Where("workflow_id = ?", f.WorkflowID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("stepflow/bun: find instances: %w", err)
	}

	out := make([]*instance.Instance, 0, len(rows))
	for i := range rows {
		in, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == "23505"
	}
	return false
}
