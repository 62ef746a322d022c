package resource

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle wraps one live resource owned by a cache.
//
// A handle is either fully valid or already released; there is no
// half-alive state visible outside the cache. Release is idempotent
// and safe to call even if the underlying resource never finished
// initializing.
type Handle[T any] struct {
	value     T
	projectID string
	costBytes int64

	// lastAccess is unix nanoseconds, updated by the owning cache on
	// every successful fetch. Atomic so status reads never contend
	// with the cache lock.
	lastAccess atomic.Int64

	mu        sync.Mutex
	released  bool
	releaseFn func() error
}

// NewHandle creates a handle for a materialized resource.
// costBytes is the factory's memory estimate, used for cache budget
// accounting. releaseFn may be nil for resources with no cleanup.
func NewHandle[T any](projectID string, value T, costBytes int64, releaseFn func() error) *Handle[T] {
	h := &Handle[T]{
		value:     value,
		projectID: projectID,
		costBytes: costBytes,
		releaseFn: releaseFn,
	}
	h.lastAccess.Store(time.Now().UnixNano())
	return h
}

// Value returns the live resource. Callers must not retain it past the
// handle's lifetime; the cache releases handles on eviction.
func (h *Handle[T]) Value() T { return h.value }

// ProjectID returns the project this handle belongs to.
func (h *Handle[T]) ProjectID() string { return h.projectID }

// CostBytes returns the factory's memory cost estimate.
func (h *Handle[T]) CostBytes() int64 { return h.costBytes }

// Touch updates the last-access time to now.
func (h *Handle[T]) Touch() {
	h.lastAccess.Store(time.Now().UnixNano())
}

// LastAccessed returns the last-access time.
func (h *Handle[T]) LastAccessed() time.Time {
	return time.Unix(0, h.lastAccess.Load())
}

// Released reports whether the handle has been released.
func (h *Handle[T]) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Release frees the underlying resource. The first call runs the
// release function and returns its error; subsequent calls are no-ops
// returning nil. Release errors are for the caller to log, never to
// propagate: release usually runs during eviction on an unrelated
// operation's critical path.
func (h *Handle[T]) Release() error {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return nil
	}
	h.released = true
	fn := h.releaseFn
	h.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn()
}
