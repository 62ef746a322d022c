package resource

import "context"

// Factory materializes a resource handle for a project.
//
// Create must be safe for concurrent calls on different project IDs;
// the cache guarantees at most one in-flight Create per ID. On error
// the factory returns no handle and must leave nothing for the cache
// to record. Blocking work should honor ctx: the cache applies a
// per-kind deadline and maps context expiry to ErrTimeout.
type Factory[T any] interface {
	Create(ctx context.Context, projectID string) (*Handle[T], error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc[T any] func(ctx context.Context, projectID string) (*Handle[T], error)

func (f FactoryFunc[T]) Create(ctx context.Context, projectID string) (*Handle[T], error) {
	return f(ctx, projectID)
}
