// Package cache provides the bounded LRU cache shared by the three
// per-project resource kinds (adapter, vector store, conversation
// context).
//
// Capacity is expressed as both an entry count and an aggregate memory
// budget; eviction runs oldest-first after every insert until both
// ceilings hold. Concurrent Get calls for the same project coalesce
// onto a single factory invocation, and factory calls never run under
// the cache lock. Evicted handles are always released through the
// cache; they are never silently dropped.
package cache
