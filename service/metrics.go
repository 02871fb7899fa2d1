package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_ownership_transitions_total",
			Help: "Ownership transitions by record kind, operation and result code",
		},
		[]string{"kind", "op", "result"},
	)

	evictedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_eviction_released_total",
			Help: "Records released to the public pool by the eviction sweep",
		},
		[]string{"kind"},
	)

	evictionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_eviction_failures_total",
			Help: "Per-record failures during eviction sweeps",
		},
		[]string{"kind"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crm_eviction_sweep_duration_seconds",
			Help:    "Duration of eviction sweeps",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
	)

	codeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_code_collisions_total",
			Help: "Generated codes rejected by the unique index and retried",
		},
	)

	eventPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_event_publish_failures_total",
			Help: "Ownership events that could not be published after commit",
		},
	)
)
