package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/id"
	"github.com/stepflow/stepflow/instance"
)

// Save persists a new workflow instance.
func (s *Store) Save(ctx context.Context, in *instance.Instance) error {
	iID := in.ID.String()
	key := instanceKey(iID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("stepflow/redis: save exists: %w", err)
	}
	if exists > 0 {
		return stepflow.ErrInstanceExists
	}

	payload, err := encode(in)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, payload, 0)
	pipe.SAdd(ctx, instanceIDsKey, iID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepflow/redis: save instance: %w", err)
	}
	return nil
}

// Load retrieves a workflow instance by ID.
func (s *Store) Load(ctx context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	payload, err := s.client.Get(ctx, instanceKey(instanceID.String())).Bytes()
	if err != nil {
		if isNil(err) {
			return nil, stepflow.ErrInstanceNotFound
		}
		return nil, fmt.Errorf("stepflow/redis: load instance: %w", err)
	}
	return decode(payload)
}

// Update persists changes to an existing workflow instance.
func (s *Store) Update(ctx context.Context, in *instance.Instance) error {
	key := instanceKey(in.ID.String())

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("stepflow/redis: update exists: %w", err)
	}
	if exists == 0 {
		return stepflow.ErrInstanceNotFound
	}

	in.UpdatedAt = time.Now().UTC()
	payload, err := encode(in)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("stepflow/redis: update instance: %w", err)
	}
	return nil
}

// Delete removes a workflow instance by ID.
func (s *Store) Delete(ctx context.Context, instanceID id.InstanceID) error {
	iID := instanceID.String()
	key := instanceKey(iID)

	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("stepflow/redis: delete exists: %w", err)
	}
	if exists == 0 {
		return stepflow.ErrInstanceNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, instanceIDsKey, iID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stepflow/redis: delete instance: %w", err)
	}
	return nil
}

// Find returns instances matching the given filter, ordered by creation
// time.
func (s *Store) Find(ctx context.Context, f instance.Filter) ([]*instance.Instance, error) {
	ids, err := s.client.SMembers(ctx, instanceIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("stepflow/redis: find smembers: %w", err)
	}

	var out []*instance.Instance
	for _, iID := range ids {
		payload, getErr := s.client.Get(ctx, instanceKey(iID)).Bytes()
		if getErr != nil {
			continue
		}
		in, convErr := decode(payload)
		if convErr != nil {
			continue
		}
		if f.WorkflowID != "" && in.WorkflowID != f.WorkflowID {
			continue
		}
		if f.Status != "" && in.Status != f.Status {
			continue
		}
		if f.UserID != "" && in.UserID != f.UserID {
			continue
		}
		out = append(out, in)
	}

	sortByCreation(out)

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}
