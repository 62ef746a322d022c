package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fyrsmithlabs/switchd/internal/resource"
)

// Common errors.
var (
	ErrInvalidConfig = errors.New("invalid cache config")
	ErrClosed        = errors.New("cache closed")
)

// Config configures a bounded cache.
type Config[T any] struct {
	// Name identifies the cache in logs and metrics (e.g. "adapter").
	Name string

	// MaxEntries is the entry-count ceiling. Must be positive.
	MaxEntries int

	// MaxBytes is the aggregate memory-budget ceiling. Must be positive.
	MaxBytes int64

	// LoadTimeout bounds each factory call. Zero means no deadline.
	LoadTimeout time.Duration

	// Factory materializes handles on cache misses.
	Factory resource.Factory[T]
}

// Cache is a bounded LRU cache over resource handles.
//
// Both capacity ceilings hold after every public operation completes.
// The recency list keeps most-recent entries at the front; entries that
// were never re-accessed stay in insertion order at the back, so the
// oldest insertion is evicted first.
type Cache[T any] struct {
	name    string
	factory resource.Factory[T]
	timeout time.Duration
	logger  *zap.Logger

	group singleflight.Group

	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List // front = most recently used
	bytes      int64
	maxEntries int
	maxBytes   int64
	closed     bool
}

type entry[T any] struct {
	id     string
	handle *resource.Handle[T]
}

// New creates a bounded cache.
func New[T any](cfg Config[T], logger *zap.Logger) (*Cache[T], error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if cfg.MaxEntries <= 0 {
		return nil, fmt.Errorf("%w: max entries must be positive", ErrInvalidConfig)
	}
	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("%w: max bytes must be positive", ErrInvalidConfig)
	}
	if cfg.Factory == nil {
		return nil, fmt.Errorf("%w: factory is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Cache[T]{
		name:       cfg.Name,
		factory:    cfg.Factory,
		timeout:    cfg.LoadTimeout,
		logger:     logger.Named(cfg.Name),
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: cfg.MaxEntries,
		maxBytes:   cfg.MaxBytes,
	}, nil
}

// Name returns the cache name.
func (c *Cache[T]) Name() string { return c.name }

// Get returns the cached handle for projectID, bumping its recency, or
// materializes one through the factory. Concurrent calls for the same
// ID coalesce onto one factory invocation and share its result. Calls
// for different IDs proceed in parallel; the factory never runs under
// the cache lock.
//
// On factory failure the cache is left unchanged: no partial insert,
// no byte-accounting drift, no eviction.
func (c *Cache[T]) Get(ctx context.Context, projectID string) (*resource.Handle[T], error) {
	if h, ok := c.lookup(projectID); ok {
		HitsTotal.WithLabelValues(c.name).Inc()
		return h, nil
	}
	MissesTotal.WithLabelValues(c.name).Inc()

	// The flight is detached from the caller's context: a caller that
	// times out waiting does not cancel work a later arrival may still
	// be satisfied by.
	ch := c.group.DoChan(projectID, func() (interface{}, error) {
		return c.load(projectID)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		h := res.Val.(*resource.Handle[T])
		// Shared callers joined after the insert; refresh recency for them.
		if cached, ok := c.lookup(projectID); ok {
			return cached, nil
		}
		return h, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", resource.ErrTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// Peek returns the cached handle without bumping recency or invoking
// the factory. Intended for status reads.
func (c *Cache[T]) Peek(projectID string) (*resource.Handle[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[projectID]
	if !ok {
		return nil, false
	}
	return elem.Value.(*entry[T]).handle, true
}

// Touch bumps the recency of a cached entry if present. Used when
// re-activating the already-active project, which counts as a read.
func (c *Cache[T]) Touch(projectID string) bool {
	_, ok := c.lookup(projectID)
	return ok
}

// Invalidate force-evicts and releases the entry for projectID, even
// if recently used. No-op if absent.
func (c *Cache[T]) Invalidate(projectID string) {
	c.mu.Lock()
	elem, ok := c.entries[projectID]
	var h *resource.Handle[T]
	if ok {
		h = c.removeLocked(elem)
	}
	c.mu.Unlock()

	if h != nil {
		c.release(h, "invalidate")
	}
}

// EvictOldest evicts up to n least-recently-used entries regardless of
// capacity pressure. Returns the number evicted.
func (c *Cache[T]) EvictOldest(n int) int {
	return c.EvictOldestExcept(n, "")
}

// EvictOldestExcept evicts up to n least-recently-used entries,
// skipping keepID (the active project under memory pressure).
func (c *Cache[T]) EvictOldestExcept(n int, keepID string) int {
	c.mu.Lock()
	var victims []*resource.Handle[T]
	elem := c.order.Back()
	for elem != nil && len(victims) < n {
		prev := elem.Prev()
		ent := elem.Value.(*entry[T])
		if ent.id != keepID {
			victims = append(victims, c.removeLocked(elem))
		}
		elem = prev
	}
	c.mu.Unlock()

	for _, h := range victims {
		c.release(h, "pressure")
	}
	return len(victims)
}

// Len returns the current entry count.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Bytes returns the aggregate memory cost estimate of cached entries.
func (c *Cache[T]) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Close releases every cached entry. Get fails afterwards.
func (c *Cache[T]) Close() {
	c.mu.Lock()
	c.closed = true
	var victims []*resource.Handle[T]
	for elem := c.order.Back(); elem != nil; elem = c.order.Back() {
		victims = append(victims, c.removeLocked(elem))
	}
	c.mu.Unlock()

	for _, h := range victims {
		c.release(h, "close")
	}
}

// lookup returns the cached handle and bumps its recency.
func (c *Cache[T]) lookup(projectID string) (*resource.Handle[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[projectID]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	h := elem.Value.(*entry[T]).handle
	h.Touch()
	return h, true
}

// load runs inside the singleflight group: at most one per project ID.
func (c *Cache[T]) load(projectID string) (*resource.Handle[T], error) {
	// A previous flight may have inserted between our miss and now.
	if h, ok := c.lookup(projectID); ok {
		return h, nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	ctx := context.Background()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	h, err := c.factory.Create(ctx, projectID)
	if err != nil {
		FactoryDuration.WithLabelValues(c.name, "error").Observe(time.Since(start).Seconds())
		return nil, c.classify(err)
	}
	FactoryDuration.WithLabelValues(c.name, "success").Observe(time.Since(start).Seconds())

	c.insert(projectID, h)
	return h, nil
}

// insert records the handle and evicts oldest-first until both
// ceilings hold, never evicting the just-inserted entry.
func (c *Cache[T]) insert(projectID string, h *resource.Handle[T]) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		c.release(h, "close")
		return
	}

	// Replace a stale entry for the same ID (e.g. racing re-creation
	// after Invalidate).
	var victims []*resource.Handle[T]
	if elem, ok := c.entries[projectID]; ok {
		victims = append(victims, c.removeLocked(elem))
	}

	elem := c.order.PushFront(&entry[T]{id: projectID, handle: h})
	c.entries[projectID] = elem
	c.bytes += h.CostBytes()
	c.updateGauges()

	for (len(c.entries) > c.maxEntries || c.bytes > c.maxBytes) && len(c.entries) > 1 {
		back := c.order.Back()
		if back == elem {
			break
		}
		victims = append(victims, c.removeLocked(back))
	}
	c.mu.Unlock()

	for _, v := range victims {
		c.release(v, "capacity")
	}
}

// removeLocked unlinks an element and returns its handle.
// Caller must hold c.mu.
func (c *Cache[T]) removeLocked(elem *list.Element) *resource.Handle[T] {
	ent := elem.Value.(*entry[T])
	c.order.Remove(elem)
	delete(c.entries, ent.id)
	c.bytes -= ent.handle.CostBytes()
	c.updateGauges()
	return ent.handle
}

// release frees a handle outside the cache lock. Errors are logged,
// never propagated.
func (c *Cache[T]) release(h *resource.Handle[T], reason string) {
	EvictionsTotal.WithLabelValues(c.name, reason).Inc()
	if err := h.Release(); err != nil {
		c.logger.Warn("failed to release evicted resource",
			zap.String("project_id", h.ProjectID()),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// classify maps factory context expiry to the timeout error.
func (c *Cache[T]) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, resource.ErrTimeout) {
		return fmt.Errorf("%w: %v", resource.ErrTimeout, err)
	}
	return err
}

// updateGauges refreshes entry and byte gauges. Caller must hold c.mu.
func (c *Cache[T]) updateGauges() {
	Entries.WithLabelValues(c.name).Set(float64(len(c.entries)))
	ResidentBytes.WithLabelValues(c.name).Set(float64(c.bytes))
}
