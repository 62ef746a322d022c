package resource

import (
	"errors"
	"fmt"
)

// Common errors returned by factories and caches.
var (
	// ErrNotFound means the project has no artifact of this kind yet.
	// Non-fatal: callers may fall back to a default resource (e.g. the
	// base model when no adapter exists).
	ErrNotFound = errors.New("resource not found")

	// ErrLoadFailure means the factory failed to materialize the
	// resource (I/O error, corruption, version mismatch).
	ErrLoadFailure = errors.New("resource load failure")

	// ErrTimeout means the factory did not complete within the
	// per-kind deadline. Treated as a load failure for switch
	// coordination.
	ErrTimeout = errors.New("resource load timeout")

	// ErrReleased means the handle was already released and its value
	// must not be used.
	ErrReleased = errors.New("resource handle released")
)

// KindError wraps a factory error with the resource kind that failed,
// so Activate callers can report which of the three resources broke.
type KindError struct {
	Kind Kind
	Err  error
}

func (e *KindError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *KindError) Unwrap() error { return e.Err }

// NewKindError wraps err with the given kind. Returns nil if err is nil.
func NewKindError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// FailedKind extracts the resource kind from an error chain.
// Returns KindUnknown if the error carries no kind.
func FailedKind(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindUnknown
}
