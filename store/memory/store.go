// Package memory implements store.Store fully in memory.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/id"
	"github.com/stepflow/stepflow/instance"
)

// Ensure Store implements instance.Store at compile time.
var _ instance.Store = (*Store)(nil)

// Store is an in-memory instance store. Records are cloned on both write
// and read so callers never share mutable state with the store.
type Store struct {
	mu        sync.RWMutex
	instances map[string]*instance.Instance
	closed    bool
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{instances: make(map[string]*instance.Instance)}
}

// Save persists a new instance.
func (s *Store) Save(_ context.Context, in *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stepflow.ErrStoreClosed
	}

	key := in.ID.String()
	if _, exists := s.instances[key]; exists {
		return stepflow.ErrInstanceExists
	}
	s.instances[key] = clone(in)
	return nil
}

// Load retrieves an instance by ID.
func (s *Store) Load(_ context.Context, instanceID id.InstanceID) (*instance.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, stepflow.ErrStoreClosed
	}

	in, ok := s.instances[instanceID.String()]
	if !ok {
		return nil, stepflow.ErrInstanceNotFound
	}
	return clone(in), nil
}

// Update persists changes to an existing instance.
func (s *Store) Update(_ context.Context, in *instance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stepflow.ErrStoreClosed
	}

	key := in.ID.String()
	if _, ok := s.instances[key]; !ok {
		return stepflow.ErrInstanceNotFound
	}
	s.instances[key] = clone(in)
	return nil
}

// Delete removes an instance by ID.
func (s *Store) Delete(_ context.Context, instanceID id.InstanceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stepflow.ErrStoreClosed
	}

	key := instanceID.String()
	if _, ok := s.instances[key]; !ok {
		return stepflow.ErrInstanceNotFound
	}
	delete(s.instances, key)
	return nil
}

// Find returns instances matching the filter, ordered by creation time.
func (s *Store) Find(_ context.Context, f instance.Filter) ([]*instance.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, stepflow.ErrStoreClosed
	}

	var out []*instance.Instance
	for _, in := range s.instances {
		if f.WorkflowID != "" && in.WorkflowID != f.WorkflowID {
			continue
		}
		if f.Status != "" && in.Status != f.Status {
			continue
		}
		if f.UserID != "" && in.UserID != f.UserID {
			continue
		}
		out = append(out, clone(in))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

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

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return stepflow.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed; further operations fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored instances.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

// clone copies an instance deeply enough that the store and its callers
// never share maps or log slices.
func clone(in *instance.Instance) *instance.Instance {
	cp := *in
	cp.Input = copyMap(in.Input)
	cp.Output = copyMap(in.Output)
	cp.Variables = copyMap(in.Variables)
	cp.Metadata = copyMap(in.Metadata)
	cp.ExecutionLog = append([]instance.LogEntry(nil), in.ExecutionLog...)
	cp.RollbackLog = append([]instance.LogEntry(nil), in.RollbackLog...)
	if in.CompletedAt != nil {
		t := *in.CompletedAt
		cp.CompletedAt = &t
	}
	if in.Error != nil {
		e := *in.Error
		cp.Error = &e
	}
	return &cp
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
