package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type blockMetrics struct {
	executed *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	txs      prometheus.Histogram
}

var (
	blockMetricsOnce sync.Once
	blockRegistry    *blockMetrics
)

// BlockMetrics returns the lazily-initialised registry recording block
// execution outcomes and latency.
func BlockMetrics() *blockMetrics {
	blockMetricsOnce.Do(func() {
		blockRegistry = &blockMetrics{
			executed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpledger",
				Subsystem: "block",
				Name:      "executed_total",
				Help:      "Blocks executed segmented by outcome.",
			}, []string{"outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cdpledger",
				Subsystem: "block",
				Name:      "execution_duration_seconds",
				Help:      "Latency distribution of block execution.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
			txs: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "cdpledger",
				Subsystem: "block",
				Name:      "transactions",
				Help:      "Transactions per executed block.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			}),
		}
		prometheus.MustRegister(blockRegistry.executed, blockRegistry.latency, blockRegistry.txs)
	})
	return blockRegistry
}

// Observe records one block execution.
func (m *blockMetrics) Observe(txCount int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.executed.WithLabelValues(outcome).Inc()
	m.latency.WithLabelValues(outcome).Observe(duration.Seconds())
	if err == nil {
		m.txs.Observe(float64(txCount))
	}
}

// Executed exposes the execution counter of an outcome for tests.
func (m *blockMetrics) Executed(outcome string) prometheus.Counter {
	return m.executed.WithLabelValues(outcome)
}
