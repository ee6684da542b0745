package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-martingale-backtest/services/engine"
)

func TestObserveRun(t *testing.T) {
	m := NewMetrics()
	res := &engine.Result{
		Trades: []engine.Trade{
			{ExitReason: engine.ExitTakeProfit},
			{ExitReason: engine.ExitStopLoss},
			{ExitReason: engine.ExitStopLoss},
		},
		TotalProfit: decimal.RequireFromString("12.5"),
		HaltedEarly: true,
	}

	m.ObserveRun("csv", res, 20*time.Millisecond)
	m.ObserveRun("csv", nil, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("csv", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("csv", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("stop_loss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TradesTotal.WithLabelValues("take_profit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HaltsTotal))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.LastProfit))
}

func TestCacheCounters(t *testing.T) {
	m := NewMetrics()
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMisses))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObserveCache(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "backtest_cache_hits_total 1")
}
