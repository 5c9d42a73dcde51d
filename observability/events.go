package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	transfers     *prometheus.CounterVec
	frictionFees  *prometheus.CounterVec
	registrations prometheus.Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking ledger events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpledger",
				Subsystem: "events",
				Name:      "transfers_total",
				Help:      "Count of coin transfers segmented by symbol.",
			}, []string{"symbol"}),
			frictionFees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdpledger",
				Subsystem: "events",
				Name:      "friction_fees_total",
				Help:      "Stable coin friction fees paid to the risk reserve, in base units.",
			}, []string{"symbol"}),
			registrations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "cdpledger",
				Subsystem: "events",
				Name:      "account_registrations_total",
				Help:      "Count of registration ids assigned.",
			}),
		}
		prometheus.MustRegister(eventRegistry.transfers, eventRegistry.frictionFees, eventRegistry.registrations)
	})
	return eventRegistry
}

func normalizeSymbol(symbol string) string {
	normalized := strings.TrimSpace(strings.ToUpper(symbol))
	if normalized == "" {
		return "UNKNOWN"
	}
	return normalized
}

// RecordTransfer increments the transfer counter for the supplied symbol.
func (m *eventMetrics) RecordTransfer(symbol string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(normalizeSymbol(symbol)).Inc()
}

// RecordFrictionFee adds a friction fee paid in symbol.
func (m *eventMetrics) RecordFrictionFee(symbol string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.frictionFees.WithLabelValues(normalizeSymbol(symbol)).Add(float64(amount))
}

// RecordRegistration counts a newly assigned registration id.
func (m *eventMetrics) RecordRegistration() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

// Transfers exposes the transfer counter of symbol for tests.
func (m *eventMetrics) Transfers(symbol string) prometheus.Counter {
	return m.transfers.WithLabelValues(normalizeSymbol(symbol))
}

// Registrations exposes the registration counter for tests.
func (m *eventMetrics) Registrations() prometheus.Counter {
	return m.registrations
}
