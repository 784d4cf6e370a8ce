package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics tracks ledger throughput and pool health.
type LendingMetrics struct {
	actions      *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations *prometheus.CounterVec
	totalSupply  *prometheus.GaugeVec
	totalBorrow  *prometheus.GaugeVec
	utilization  *prometheus.GaugeVec
	supplyIndex  *prometheus.GaugeVec
	borrowIndex  *prometheus.GaugeVec
	atRisk       prometheus.Gauge
	day          prometheus.Gauge
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the process wide lending metrics registry.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_actions_total",
				Help: "Count of applied ledger actions by type and outcome.",
			}, []string{"action", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "lending_action_duration_seconds",
				Help:    "Time spent applying a ledger action including commit.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
			}, []string{"action"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_liquidations_total",
				Help: "Count of liquidation attempts by terminal state.",
			}, []string{"state"}),
			totalSupply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_total_supply",
				Help: "Liquidity currently held by each pool.",
			}, []string{"asset"}),
			totalBorrow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_total_borrow",
				Help: "Outstanding debt of each pool.",
			}, []string{"asset"}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_utilization",
				Help: "Borrowed share of each pool's funds.",
			}, []string{"asset"}),
			supplyIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_supply_index",
				Help: "Cumulative supply index of each pool.",
			}, []string{"asset"}),
			borrowIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "lending_pool_borrow_index",
				Help: "Cumulative borrow index of each pool.",
			}, []string{"asset"}),
			atRisk: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_accounts_liquidatable",
				Help: "Accounts below the liquidation threshold at the last ranking.",
			}),
			day: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_ledger_day",
				Help: "UTC day number the ledger last applied an action at.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.actions,
			lendingRegistry.latency,
			lendingRegistry.liquidations,
			lendingRegistry.totalSupply,
			lendingRegistry.totalBorrow,
			lendingRegistry.utilization,
			lendingRegistry.supplyIndex,
			lendingRegistry.borrowIndex,
			lendingRegistry.atRisk,
			lendingRegistry.day,
		)
	})
	return lendingRegistry
}

// ObserveAction records one applied action.
func (m *LendingMetrics) ObserveAction(action string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "rejected"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveLiquidation counts a liquidation by its terminal state.
func (m *LendingMetrics) ObserveLiquidation(state string) {
	if m == nil {
		return
	}
	if state == "" {
		state = "unknown"
	}
	m.liquidations.WithLabelValues(strings.ToLower(state)).Inc()
}

// PoolSnapshot carries the float projections of a pool for export.
type PoolSnapshot struct {
	Asset       string
	TotalSupply float64
	TotalBorrow float64
	Utilization float64
	SupplyIndex float64
	BorrowIndex float64
}

// SetPool publishes the latest view of a pool.
func (m *LendingMetrics) SetPool(s PoolSnapshot) {
	if m == nil || s.Asset == "" {
		return
	}
	m.totalSupply.WithLabelValues(s.Asset).Set(s.TotalSupply)
	m.totalBorrow.WithLabelValues(s.Asset).Set(s.TotalBorrow)
	m.utilization.WithLabelValues(s.Asset).Set(s.Utilization)
	m.supplyIndex.WithLabelValues(s.Asset).Set(s.SupplyIndex)
	m.borrowIndex.WithLabelValues(s.Asset).Set(s.BorrowIndex)
}

// SetLiquidatable records how many ranked accounts may be liquidated.
func (m *LendingMetrics) SetLiquidatable(count int) {
	if m == nil {
		return
	}
	m.atRisk.Set(float64(count))
}

// SetDay records the ledger day.
func (m *LendingMetrics) SetDay(day uint64) {
	if m == nil {
		return
	}
	m.day.Set(float64(day))
}
