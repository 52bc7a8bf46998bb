// Package observability holds the Prometheus collectors of the matching engine
// and market service. A nil *Metrics records nothing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "curveswap"

type Metrics struct {
	swaps          *prometheus.CounterVec
	batches        *prometheus.CounterVec
	batchDuration  *prometheus.HistogramVec
	deactivations  prometheus.Counter
	candidates     *prometheus.CounterVec
	operations     *prometheus.CounterVec
	journalFailure prometheus.Counter
}

// New creates the collectors and registers them on reg when it is non-nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "swaps_total",
			Help:      "Swap legs executed, by operation.",
		}, []string{"operation"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "batches_total",
			Help:      "Swap batches processed, by operation and final status.",
		}, []string{"operation", "status"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "batch_duration_seconds",
			Help:      "Time spent matching one swap batch.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"operation"}),
		deactivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "pools_deactivated_total",
			Help:      "Pools deactivated by an invalid curve transition.",
		}),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "index_candidates_total",
			Help:      "Pools pulled from the best-price index, by side.",
		}, []string{"side"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "operations_total",
			Help:      "Market operations, by operation and result.",
		}, []string{"operation", "result"}),
		journalFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "journal_failures_total",
			Help:      "Committed calls that could not be journaled.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.swaps, m.batches, m.batchDuration, m.deactivations, m.candidates, m.operations, m.journalFailure,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) SwapExecuted(operation string) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(operation).Inc()
}

func (m *Metrics) BatchFinished(operation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(operation, status).Inc()
	m.batchDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) PoolDeactivated() {
	if m == nil {
		return
	}
	m.deactivations.Inc()
}

func (m *Metrics) CandidateFetched(side string) {
	if m == nil {
		return
	}
	m.candidates.WithLabelValues(side).Inc()
}

// Operation records the outcome of a market call; err nil counts as ok.
func (m *Metrics) Operation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) JournalFailed() {
	if m == nil {
		return
	}
	m.journalFailure.Inc()
}
