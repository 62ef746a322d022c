// Package resource defines the handle and factory seam between the
// switching coordinator's caches and the per-project resources they
// manage: fine-tuned adapters, vector stores, and conversation
// contexts.
//
// A Handle wraps one live resource together with its memory cost
// estimate, last-access time, and an idempotent release function.
// Factories materialize handles on demand; the caches own every handle
// they produce and release them only through eviction or invalidation.
package resource
