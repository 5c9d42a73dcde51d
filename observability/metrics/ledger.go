package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Liquidation paths reported by ObserveLiquidated.
const (
	PathCurrent = "current"
	PathLegacy  = "legacy"
)

// LedgerMetrics tracks transaction execution and forced liquidation.
type LedgerMetrics struct {
	txExecuted     *prometheus.CounterVec
	txRejected     *prometheus.CounterVec
	blockHeight    prometheus.Gauge
	pairsScanned   *prometheus.CounterVec
	cdpsLiquidated *prometheus.CounterVec
	reserveHalts   *prometheus.CounterVec
	fcoinsInflated *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the process wide ledger metrics, registering them with the
// default registry on first use.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			txExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdpledger_tx_executed_total",
				Help: "Count of transactions executed successfully by type.",
			}, []string{"type"}),
			txRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdpledger_tx_rejected_total",
				Help: "Count of rejected transactions by type and reject code.",
			}, []string{"type", "code"}),
			blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cdpledger_block_height",
				Help: "Height of the last executed block.",
			}),
			pairsScanned: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdpledger_liquidation_pairs_scanned_total",
				Help: "Count of coin pairs scanned by forced liquidation.",
			}, []string{"pair"}),
			cdpsLiquidated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdpledger_liquidation_cdps_total",
				Help: "Count of positions closed by forced liquidation by path.",
			}, []string{"pair", "path"}),
			reserveHalts: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdpledger_liquidation_reserve_halts_total",
				Help: "Count of pair scans stopped by an insufficient risk reserve.",
			}, []string{"pair"}),
			fcoinsInflated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cdpledger_liquidation_fcoins_inflated_total",
				Help: "Fund coins minted to cover liquidation shortfalls, in base units.",
			}, []string{"pair"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.txExecuted,
			ledgerRegistry.txRejected,
			ledgerRegistry.blockHeight,
			ledgerRegistry.pairsScanned,
			ledgerRegistry.cdpsLiquidated,
			ledgerRegistry.reserveHalts,
			ledgerRegistry.fcoinsInflated,
		)
	})
	return ledgerRegistry
}

func label(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func (m *LedgerMetrics) ObserveTx(kind string) {
	if m == nil {
		return
	}
	m.txExecuted.WithLabelValues(label(kind)).Inc()
}

func (m *LedgerMetrics) ObserveReject(kind, code string) {
	if m == nil {
		return
	}
	m.txRejected.WithLabelValues(label(kind), label(code)).Inc()
}

func (m *LedgerMetrics) SetBlockHeight(height uint64) {
	if m == nil {
		return
	}
	m.blockHeight.Set(float64(height))
}

func (m *LedgerMetrics) ObservePairScanned(pair string) {
	if m == nil {
		return
	}
	m.pairsScanned.WithLabelValues(label(pair)).Inc()
}

func (m *LedgerMetrics) ObserveLiquidated(pair, path string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.cdpsLiquidated.WithLabelValues(label(pair), label(path)).Add(float64(count))
}

func (m *LedgerMetrics) ObserveReserveHalt(pair string) {
	if m == nil {
		return
	}
	m.reserveHalts.WithLabelValues(label(pair)).Inc()
}

func (m *LedgerMetrics) AddFcoinsInflated(pair string, amount uint64) {
	if m == nil || amount == 0 {
		return
	}
	m.fcoinsInflated.WithLabelValues(label(pair)).Add(float64(amount))
}

// Liquidated returns the liquidation counter of a pair and path.
func (m *LedgerMetrics) Liquidated(pair, path string) prometheus.Counter {
	return m.cdpsLiquidated.WithLabelValues(label(pair), label(path))
}

// ReserveHalts returns the reserve halt counter of a pair.
func (m *LedgerMetrics) ReserveHalts(pair string) prometheus.Counter {
	return m.reserveHalts.WithLabelValues(label(pair))
}

// FcoinsInflated returns the fund coin inflation counter of a pair.
func (m *LedgerMetrics) FcoinsInflated(pair string) prometheus.Counter {
	return m.fcoinsInflated.WithLabelValues(label(pair))
}
