package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-martingale-backtest/services/config"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func kline(i int) []interface{} {
	open := base.Add(time.Duration(i) * time.Minute).UnixMilli()
	px := strconv.Itoa(100 + i)
	return []interface{}{open, px, px + ".5", strconv.Itoa(99 + i), px + ".25", "10",
		open + 59999, "1000", 5, "5", "500", "0"}
}

// klineServer serves total klines starting at base, honouring startTime and limit.
func klineServer(t *testing.T, total int, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		require.Equal(t, "/api/v3/klines", r.URL.Path)
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		first := 0
		if st := q.Get("startTime"); st != "" {
			ms, _ := strconv.ParseInt(st, 10, 64)
			first = int((ms - base.UnixMilli() + 59999) / 60000)
		}
		rows := [][]interface{}{}
		for i := first; i < total && len(rows) < limit; i++ {
			rows = append(rows, kline(i))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}))
}

func TestFetchPages(t *testing.T) {
	var calls int32
	srv := klineServer(t, 5, &calls)
	defer srv.Close()

	src := NewKlineSource(config.BinanceConfig{BaseURL: srv.URL, PageLimit: 2, RequestsPerSecond: 1000}, nil)
	bars, err := src.Fetch(context.Background(), "BTCUSDT", "1m", base, base.Add(time.Hour), 0)
	require.NoError(t, err)

	require.Len(t, bars, 5)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.NoError(t, bars.Validate())
	assert.Equal(t, base, bars[0].Time)
	assert.True(t, bars[4].Close.Equal(decimal.RequireFromString("104.25")))
	assert.True(t, bars[4].High.Equal(decimal.RequireFromString("104.5")))
	assert.False(t, bars[0].HasIndicator())
}

func TestFetchHonoursMax(t *testing.T) {
	var calls int32
	srv := klineServer(t, 50, &calls)
	defer srv.Close()

	src := NewKlineSource(config.BinanceConfig{BaseURL: srv.URL, PageLimit: 4, RequestsPerSecond: 1000}, nil)
	bars, err := src.Fetch(context.Background(), "BTCUSDT", "1m", base, base.Add(time.Hour), 6)
	require.NoError(t, err)
	assert.Len(t, bars, 6)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFetchRejectsInvertedRange(t *testing.T) {
	src := NewKlineSource(config.BinanceConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := src.Fetch(context.Background(), "BTCUSDT", "1m", base, base.Add(-time.Hour), 0)
	assert.Error(t, err)
}

func TestFetchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	src := NewKlineSource(config.BinanceConfig{BaseURL: srv.URL, RequestsPerSecond: 1000}, nil)
	_, err := src.Fetch(context.Background(), "NOPE", "1m", base, base.Add(time.Hour), 0)
	assert.Error(t, err)
}
