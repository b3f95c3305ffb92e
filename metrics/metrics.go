// Package metrics exposes Prometheus collectors for cache backend operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultHit     = "hit"
	ResultMiss    = "miss"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elasticcache_operations_total",
			Help: "Total number of cache backend operations",
		},
		[]string{"operation", "result"}, // result: success, error
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "elasticcache_operation_duration_seconds",
			Help:    "Duration of cache backend operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	GetTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elasticcache_get_total",
			Help: "Total number of cache lookups by outcome",
		},
		[]string{"result"}, // result: hit, miss
	)

	IndexCreationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "elasticcache_index_creations_total",
			Help: "Total number of indices created by the backend",
		},
	)
)

// ObserveOperation records the outcome and duration of an operation started at start.
func ObserveOperation(operation string, start time.Time, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	OperationsTotal.WithLabelValues(operation, result).Inc()
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveLookup records a cache hit or miss.
func ObserveLookup(hit bool) {
	if hit {
		GetTotal.WithLabelValues(ResultHit).Inc()
		return
	}
	GetTotal.WithLabelValues(ResultMiss).Inc()
}
