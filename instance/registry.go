package instance

import (
	"sync"

	"github.com/stepflow/stepflow"
	"github.com/stepflow/stepflow/id"
)

// StopKind distinguishes a cooperative cancel from a forced terminate.
type StopKind int

// Stop kinds.
const (
	StopCancel StopKind = iota
	StopTerminate
)

// Handle is the working-set entry for one in-flight instance. The
// orchestrator loop polls Stopped at iteration boundaries; external
// callers request a stop through Cancel or Terminate.
type Handle struct {
	inst *Instance

	mu      sync.Mutex
	reason  string
	kind    StopKind
	stopped chan struct{}
}

// Instance returns the working copy owned by the orchestrator loop.
func (h *Handle) Instance() *Instance { return h.inst }

// Cancel requests a cooperative stop. Only the first stop request wins.
func (h *Handle) Cancel(reason string) { h.stop(StopCancel, reason) }

// Terminate requests a forced stop.
func (h *Handle) Terminate(reason string) { h.stop(StopTerminate, reason) }

func (h *Handle) stop(kind StopKind, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.stopped:
		return // already stopping
	default:
	}
	h.kind = kind
	h.reason = reason
	close(h.stopped)
}

// Stopped returns a channel closed once a stop has been requested.
// Event-wait selects include it so suspended runs wake promptly.
func (h *Handle) Stopped() <-chan struct{} { return h.stopped }

// StopRequest returns the pending stop kind and reason, if any.
func (h *Handle) StopRequest() (StopKind, string, bool) {
	select {
	case <-h.stopped:
	default:
		return 0, "", false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.kind, h.reason, true
}

// Registry is the explicit working set of in-flight instances, keyed by
// instance ID. Each instance is single-writer: Add fails while a run for
// the same ID is active, and entries are evicted only after the final
// state has been handed to the store.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Handle
}

// NewRegistry creates an empty working-set registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Handle)}
}

// Add claims an instance ID for a run and returns its handle.
func (r *Registry) Add(in *Instance) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := in.ID.String()
	if _, active := r.entries[key]; active {
		return nil, stepflow.ErrInstanceActive
	}
	h := &Handle{inst: in, stopped: make(chan struct{})}
	r.entries[key] = h
	return h, nil
}

// Get returns the handle for an in-flight instance.
func (r *Registry) Get(instanceID id.InstanceID) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[instanceID.String()]
	return h, ok
}

// Evict releases an instance ID from the working set. Called after the
// run's final persist, never mid-run.
func (r *Registry) Evict(instanceID id.InstanceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, instanceID.String())
}

// Len returns the number of in-flight instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
