package coordinator

import (
	"time"

	"github.com/fyrsmithlabs/switchd/internal/resource"
)

// State describes the coordinator's switch state. With concurrent
// switches in flight the state reflects the most recent transition.
type State string

const (
	// StateIdle means no switch is in progress.
	StateIdle State = "idle"
	// StateSwitching means a switch is acquiring resources.
	StateSwitching State = "switching"
	// StateDegraded means the last switch partially failed. Not
	// sticky: the next Activate starts a fresh switch.
	StateDegraded State = "degraded"
)

// Failure records a partially failed switch.
type Failure struct {
	ProjectID string        `json:"project_id"`
	Kind      resource.Kind `json:"kind"`
	Error     string        `json:"error"`
	At        time.Time     `json:"at"`
}

// ActivationResult reports the outcome of an Activate call.
type ActivationResult struct {
	// ProjectID is the requested project.
	ProjectID string `json:"project_id"`

	// Active is the project active after the call completed. On a
	// degraded switch this is the previous project; on a superseded
	// switch it is whichever newer switch won.
	Active string `json:"active"`

	// Degraded is true when a resource failed to load and the switch
	// did not complete.
	Degraded bool `json:"degraded"`

	// FailedKind names the resource kind that failed, if any.
	FailedKind resource.Kind `json:"failed_kind,omitempty"`

	// AdapterFallback is true when the project has no trained adapter
	// and the base model is used unmodified.
	AdapterFallback bool `json:"adapter_fallback,omitempty"`

	// Superseded is true when the switch completed its acquisitions
	// but a newer switch finished first; resources are cached, the
	// pointer was left alone.
	Superseded bool `json:"superseded,omitempty"`
}

// CacheStats reports one cache's occupancy in a Status read.
type CacheStats struct {
	Entries        int   `json:"entries"`
	Bytes          int64 `json:"bytes"`
	ActiveResident bool  `json:"active_resident"`
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Active      string                       `json:"active,omitempty"`
	State       State                        `json:"state"`
	LastFailure *Failure                     `json:"last_failure,omitempty"`
	Caches      map[resource.Kind]CacheStats `json:"caches"`
}

// Severity scales memory-pressure eviction.
type Severity string

const (
	// SeverityLow evicts one least-recently-used entry per cache.
	SeverityLow Severity = "low"
	// SeverityHigh evicts everything except the active project's
	// entries.
	SeverityHigh Severity = "high"
)
