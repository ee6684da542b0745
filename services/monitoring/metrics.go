// Package monitoring exposes Prometheus metrics for backtest runs.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rsi-martingale-backtest/services/engine"
)

// Metrics holds the collectors for the backtest service. Each instance owns
// its registry so tests and multiple servers do not collide.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal   *prometheus.CounterVec
	TradesTotal *prometheus.CounterVec
	HaltsTotal  prometheus.Counter
	RunDuration *prometheus.HistogramVec
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	ActiveRuns  prometheus.Gauge
	LastProfit  prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_runs_total",
				Help: "Total number of backtest runs by source and result",
			},
			[]string{"source", "result"},
		),
		TradesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backtest_trades_total",
				Help: "Total number of simulated trades by exit reason",
			},
			[]string{"reason"},
		),
		HaltsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backtest_halts_total",
				Help: "Runs stopped by the loss streak cap",
			},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backtest_run_duration_seconds",
				Help:    "Wall time of a backtest run in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"source"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backtest_cache_hits_total",
				Help: "Result cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "backtest_cache_misses_total",
				Help: "Result cache misses",
			},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_active_runs",
				Help: "Backtests currently executing",
			},
		),
		LastProfit: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "backtest_last_total_profit",
				Help: "Total profit of the most recent run",
			},
		),
	}

	m.registry.MustRegister(
		m.RunsTotal,
		m.TradesTotal,
		m.HaltsTotal,
		m.RunDuration,
		m.CacheHits,
		m.CacheMisses,
		m.ActiveRuns,
		m.LastProfit,
	)
	return m
}

// ObserveRun records a finished run. A nil result counts as a failure.
func (m *Metrics) ObserveRun(source string, res *engine.Result, elapsed time.Duration) {
	m.RunDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	if res == nil {
		m.RunsTotal.WithLabelValues(source, "error").Inc()
		return
	}
	m.RunsTotal.WithLabelValues(source, "ok").Inc()
	for _, t := range res.Trades {
		m.TradesTotal.WithLabelValues(string(t.ExitReason)).Inc()
	}
	if res.HaltedEarly {
		m.HaltsTotal.Inc()
	}
	profit, _ := res.TotalProfit.Float64()
	m.LastProfit.Set(profit)
}

func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
