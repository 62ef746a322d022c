package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/switchd/internal/resource"
)

// fakeFactory builds string handles and records every call.
type fakeFactory struct {
	mu       sync.Mutex
	calls    map[string]int
	cost     int64
	err      error
	block    chan struct{} // non-nil: Create waits for close or ctx
	released map[string]*int
}

func newFakeFactory(cost int64) *fakeFactory {
	return &fakeFactory{
		calls:    make(map[string]int),
		cost:     cost,
		released: make(map[string]*int),
	}
}

func (f *fakeFactory) Create(ctx context.Context, projectID string) (*resource.Handle[string], error) {
	f.mu.Lock()
	f.calls[projectID]++
	block := f.block
	err := f.err
	counter := new(int)
	f.released[projectID] = counter
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	release := func() error {
		f.mu.Lock()
		*counter++
		f.mu.Unlock()
		return nil
	}
	return resource.NewHandle(projectID, "resource-"+projectID, f.cost, release), nil
}

func (f *fakeFactory) callCount(projectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[projectID]
}

func (f *fakeFactory) releaseCount(projectID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.released[projectID]; ok {
		return *c
	}
	return 0
}

func newTestCache(t *testing.T, factory *fakeFactory, maxEntries int, maxBytes int64) *Cache[string] {
	t.Helper()
	c, err := New(Config[string]{
		Name:       "test",
		MaxEntries: maxEntries,
		MaxBytes:   maxBytes,
		Factory:    factory,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestNew_Validation(t *testing.T) {
	factory := newFakeFactory(1)

	_, err := New(Config[string]{MaxEntries: 1, MaxBytes: 1, Factory: factory}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config[string]{Name: "x", MaxBytes: 1, Factory: factory}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config[string]{Name: "x", MaxEntries: 1, Factory: factory}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config[string]{Name: "x", MaxEntries: 1, MaxBytes: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGet_HitDoesNotCallFactoryAgain(t *testing.T) {
	factory := newFakeFactory(10)
	c := newTestCache(t, factory, 4, 1000)
	ctx := context.Background()

	h1, err := c.Get(ctx, "alpha")
	require.NoError(t, err)
	h2, err := c.Get(ctx, "alpha")
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, factory.callCount("alpha"))
	assert.Equal(t, "resource-alpha", h1.Value())
}

func TestGet_CapacityInvariantHolds(t *testing.T) {
	factory := newFakeFactory(10)
	c := newTestCache(t, factory, 3, 25)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		_, err := c.Get(ctx, id)
		require.NoError(t, err)
		assert.LessOrEqual(t, c.Len(), 3)
		assert.LessOrEqual(t, c.Bytes(), int64(25))
	}
	// Byte budget of 25 with 10-byte entries caps occupancy at 2.
	assert.Equal(t, 2, c.Len())
}

func TestGet_LRUOrder(t *testing.T) {
	factory := newFakeFactory(1)
	c := newTestCache(t, factory, 2, 1000)
	ctx := context.Background()

	// Get(A); Get(B); Get(A); Get(C) must evict B, since A was
	// refreshed before C forced an eviction.
	_, err := c.Get(ctx, "A")
	require.NoError(t, err)
	_, err = c.Get(ctx, "B")
	require.NoError(t, err)
	_, err = c.Get(ctx, "A")
	require.NoError(t, err)
	_, err = c.Get(ctx, "C")
	require.NoError(t, err)

	_, okA := c.Peek("A")
	_, okB := c.Peek("B")
	_, okC := c.Peek("C")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
	assert.Equal(t, 1, factory.releaseCount("B"))
	assert.Equal(t, 0, factory.releaseCount("A"))
}

func TestGet_EvictionReleasesHandle(t *testing.T) {
	factory := newFakeFactory(1)
	c := newTestCache(t, factory, 2, 1000)
	ctx := context.Background()

	for _, id := range []string{"alpha", "beta", "gamma"} {
		_, err := c.Get(ctx, id)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, factory.releaseCount("alpha"))
	assert.Equal(t, 0, factory.releaseCount("beta"))
	assert.Equal(t, 0, factory.releaseCount("gamma"))

	// Reactivating alpha triggers exactly one new factory call.
	_, err := c.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 2, factory.callCount("alpha"))
}

func TestGet_NeverEvictsJustInsertedEntry(t *testing.T) {
	// A single entry over the byte budget stays resident; the budget
	// never evicts the entry that was just requested.
	factory := newFakeFactory(100)
	c := newTestCache(t, factory, 4, 50)
	ctx := context.Background()

	h, err := c.Get(ctx, "huge")
	require.NoError(t, err)
	assert.False(t, h.Released())
	assert.Equal(t, 1, c.Len())
}

func TestGet_FactoryFailureLeavesCacheUnchanged(t *testing.T) {
	factory := newFakeFactory(10)
	c := newTestCache(t, factory, 4, 1000)
	ctx := context.Background()

	_, err := c.Get(ctx, "good")
	require.NoError(t, err)
	bytesBefore := c.Bytes()

	factory.mu.Lock()
	factory.err = fmt.Errorf("%w: index corrupt", resource.ErrLoadFailure)
	factory.mu.Unlock()

	_, err = c.Get(ctx, "bad")
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrLoadFailure)

	_, ok := c.Peek("bad")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, bytesBefore, c.Bytes())
}

func TestGet_CoalescesConcurrentLoads(t *testing.T) {
	factory := newFakeFactory(1)
	factory.block = make(chan struct{})
	c := newTestCache(t, factory, 4, 1000)

	const n = 10
	var wg sync.WaitGroup
	results := make([]*resource.Handle[string], n)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "shared")
		}(i)
	}

	// Let all goroutines pile onto the flight, then release it.
	time.Sleep(50 * time.Millisecond)
	close(factory.block)
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, 1, factory.callCount("shared"))
}

func TestGet_CoalescedFailureSharedByAllCallers(t *testing.T) {
	factory := newFakeFactory(1)
	factory.block = make(chan struct{})
	factory.err = resource.ErrLoadFailure
	c := newTestCache(t, factory, 4, 1000)

	const n = 5
	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Get(context.Background(), "doomed"); err != nil {
				failures.Add(1)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(factory.block)
	wg.Wait()

	assert.Equal(t, int32(n), failures.Load())
	assert.Equal(t, 1, factory.callCount("doomed"))
}

func TestGet_LoadTimeout(t *testing.T) {
	factory := newFakeFactory(1)
	factory.block = make(chan struct{}) // never closed
	c, err := New(Config[string]{
		Name:        "timeout",
		MaxEntries:  4,
		MaxBytes:    1000,
		LoadTimeout: 30 * time.Millisecond,
		Factory:     factory,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.Get(context.Background(), "slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrTimeout)
	_, ok := c.Peek("slow")
	assert.False(t, ok)
}

func TestGet_CallerTimeoutDoesNotCancelFlight(t *testing.T) {
	factory := newFakeFactory(1)
	factory.block = make(chan struct{})
	c := newTestCache(t, factory, 4, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Get(ctx, "eventual")
	require.Error(t, err)
	assert.ErrorIs(t, err, resource.ErrTimeout)

	// The detached flight completes and warms the cache for the next
	// arrival.
	close(factory.block)
	require.Eventually(t, func() bool {
		_, ok := c.Peek("eventual")
		return ok
	}, time.Second, 5*time.Millisecond)

	_, err = c.Get(context.Background(), "eventual")
	require.NoError(t, err)
	assert.Equal(t, 1, factory.callCount("eventual"))
}

func TestInvalidate(t *testing.T) {
	factory := newFakeFactory(10)
	c := newTestCache(t, factory, 4, 1000)
	ctx := context.Background()

	_, err := c.Get(ctx, "stale")
	require.NoError(t, err)

	c.Invalidate("stale")

	_, ok := c.Peek("stale")
	assert.False(t, ok)
	assert.Equal(t, int64(0), c.Bytes())
	assert.Equal(t, 1, factory.releaseCount("stale"))

	// No-op on absent keys.
	c.Invalidate("never-seen")
}

func TestEvictOldestExcept(t *testing.T) {
	factory := newFakeFactory(1)
	c := newTestCache(t, factory, 8, 1000)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := c.Get(ctx, id)
		require.NoError(t, err)
	}

	// "a" is oldest but spared; "b" goes instead.
	evicted := c.EvictOldestExcept(1, "a")
	assert.Equal(t, 1, evicted)
	_, okA := c.Peek("a")
	_, okB := c.Peek("b")
	assert.True(t, okA)
	assert.False(t, okB)

	// Evicting more than remains stops at the spared entry.
	evicted = c.EvictOldestExcept(10, "a")
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, c.Len())
}

func TestClose_ReleasesEverything(t *testing.T) {
	factory := newFakeFactory(1)
	c := newTestCache(t, factory, 8, 1000)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := c.Get(ctx, id)
		require.NoError(t, err)
	}

	c.Close()

	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, factory.releaseCount("a"))
	assert.Equal(t, 1, factory.releaseCount("b"))

	_, err := c.Get(ctx, "c")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGet_DifferentKeysLoadInParallel(t *testing.T) {
	factory := newFakeFactory(1)
	factory.block = make(chan struct{})
	c := newTestCache(t, factory, 8, 1000)

	var wg sync.WaitGroup
	for _, id := range []string{"x", "y", "z"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = c.Get(context.Background(), id)
		}(id)
	}

	// All three factory calls should be in flight concurrently.
	require.Eventually(t, func() bool {
		return factory.callCount("x") == 1 &&
			factory.callCount("y") == 1 &&
			factory.callCount("z") == 1
	}, time.Second, 5*time.Millisecond)

	close(factory.block)
	wg.Wait()
	assert.Equal(t, 3, c.Len())
}

func TestTouch(t *testing.T) {
	factory := newFakeFactory(1)
	c := newTestCache(t, factory, 2, 1000)
	ctx := context.Background()

	_, err := c.Get(ctx, "A")
	require.NoError(t, err)
	_, err = c.Get(ctx, "B")
	require.NoError(t, err)

	assert.True(t, c.Touch("A"))
	assert.False(t, c.Touch("missing"))

	// Touch refreshed A, so inserting C evicts B.
	_, err = c.Get(ctx, "C")
	require.NoError(t, err)
	_, okA := c.Peek("A")
	_, okB := c.Peek("B")
	assert.True(t, okA)
	assert.False(t, okB)
}

func TestGet_ReplacesStaleEntryForSameKey(t *testing.T) {
	factory := newFakeFactory(10)
	c := newTestCache(t, factory, 4, 1000)
	ctx := context.Background()

	h1, err := c.Get(ctx, "alpha")
	require.NoError(t, err)
	c.Invalidate("alpha")
	require.True(t, h1.Released())

	h2, err := c.Get(ctx, "alpha")
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)
	assert.False(t, h2.Released())
	assert.Equal(t, int64(10), c.Bytes())
}

func TestGet_CallerCancelReturnsContextError(t *testing.T) {
	factory := newFakeFactory(1)
	factory.block = make(chan struct{})
	defer close(factory.block)
	c := newTestCache(t, factory, 4, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.Get(ctx, "cancelled")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
