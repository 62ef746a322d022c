// Package coordinator orchestrates project activation across the
// three per-project resource caches (adapter, vector store,
// conversation context) as a single logical operation.
//
// Activate acquires handles in a fixed order, swaps the active-project
// pointer only when all three resources are live, and degrades
// gracefully on partial failure: the previous project stays active,
// anything acquired for the new project stays cached for the next
// attempt, and the caller learns exactly which resource kind failed.
package coordinator
