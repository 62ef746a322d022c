package coordinator

import (
	"fmt"

	"go.uber.org/zap"
)

// OnMemoryPressure responds to a host memory-pressure signal by
// evicting least-recently-used entries across all three caches,
// sparing the active project's entries. Runs outside the switch
// protocol; returns the number of entries evicted.
func (c *Coordinator) OnMemoryPressure(severity Severity) (int, error) {
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	var evicted int
	switch severity {
	case SeverityLow:
		evicted += c.adapters.EvictOldestExcept(1, active)
		evicted += c.stores.EvictOldestExcept(1, active)
		evicted += c.contexts.EvictOldestExcept(1, active)
	case SeverityHigh:
		evicted += c.adapters.EvictOldestExcept(c.adapters.Len(), active)
		evicted += c.stores.EvictOldestExcept(c.stores.Len(), active)
		evicted += c.contexts.EvictOldestExcept(c.contexts.Len(), active)
	default:
		return 0, fmt.Errorf("unknown memory pressure severity: %q", severity)
	}

	c.logger.Info("memory pressure handled",
		zap.String("severity", string(severity)),
		zap.String("active", active),
		zap.Int("evicted", evicted))
	return evicted, nil
}
