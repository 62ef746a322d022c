// Package cache provides Prometheus metrics for cache behavior.
package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HitsTotal counts cache hits. Labels: cache.
	HitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchd",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)

	// MissesTotal counts cache misses. Labels: cache.
	MissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchd",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// EvictionsTotal counts evicted entries. Labels: cache, reason
	// (capacity, invalidate, pressure, close).
	EvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "switchd",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of cache evictions",
		},
		[]string{"cache", "reason"},
	)

	// Entries tracks the current number of cached entries. Labels: cache.
	Entries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "switchd",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of cached entries",
		},
		[]string{"cache"},
	)

	// ResidentBytes tracks the aggregate memory cost estimate of cached
	// entries. Labels: cache.
	ResidentBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "switchd",
			Subsystem: "cache",
			Name:      "resident_bytes",
			Help:      "Aggregate memory cost estimate of cached entries in bytes",
		},
		[]string{"cache"},
	)

	// FactoryDuration tracks how long factory loads take. Labels:
	// cache, result (success, error).
	FactoryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "switchd",
			Subsystem: "cache",
			Name:      "factory_duration_seconds",
			Help:      "Duration of resource factory loads in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"cache", "result"},
	)
)
