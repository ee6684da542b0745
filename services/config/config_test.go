package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-martingale-backtest/services/engine"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backtest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	sc, err := cfg.Strategy.StrategyConfig()
	require.NoError(t, err)
	assert.True(t, sc.SLDistance.Equal(decimal.RequireFromString("0.001")))
	assert.True(t, sc.TPDistance.Equal(decimal.RequireFromString("0.003")))
	assert.True(t, sc.TrailingStopDistance.Equal(decimal.RequireFromString("0.0005")))
	assert.True(t, sc.InitialLot.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, 7, sc.MaxLossStreak)
	assert.Equal(t, engine.TieBreakTakeProfitFirst, sc.TieBreak)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "ewm", cfg.Strategy.RSISmoothing)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeFile(t, `
environment: test
strategy:
  initial_lot: "1"
  sl_distance: "10"
  tp_distance: "30"
  trailing_stop_distance: "0"
  buy_threshold: "30"
  tie_break: sl_first
data:
  source: clickhouse
  symbol: BTCUSDT
clickhouse:
  dial_timeout: 3s
redis:
  enabled: true
  ttl: 1h
`)
	t.Setenv("BACKTEST_STRATEGY_MAX_LOSS_STREAK", "4")
	t.Setenv("BACKTEST_DATA_SYMBOL", "ETHUSDT")
	t.Setenv("BACKTEST_SERVER_GRPC_PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "clickhouse", cfg.Data.Source)
	assert.Equal(t, "ETHUSDT", cfg.Data.Symbol)
	assert.Equal(t, 7070, cfg.Server.GRPCPort)
	assert.Equal(t, 3*time.Second, cfg.ClickHouse.DialTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, time.Hour, cfg.Redis.TTL)
	// untouched defaults survive a partial file
	assert.Equal(t, "trades", cfg.ClickHouse.TradesTable)

	sc, err := cfg.Strategy.StrategyConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, sc.MaxLossStreak)
	assert.True(t, sc.SLDistance.Equal(decimal.NewFromInt(10)))
	assert.True(t, sc.TrailingStopDistance.IsZero())
	assert.Equal(t, engine.TieBreakStopLossFirst, sc.TieBreak)
}

func TestStrategyFromPips(t *testing.T) {
	s := Default().Strategy
	s.SLPips = "20"
	s.TPPips = "15"
	s.PipSize = "0.01"

	sc, err := s.StrategyConfig()
	require.NoError(t, err)
	assert.True(t, sc.SLDistance.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, sc.TPDistance.Equal(decimal.RequireFromString("0.15")))
}

func TestStrategyRejectsBadInput(t *testing.T) {
	s := Default().Strategy
	s.InitialLot = "lots"
	_, err := s.StrategyConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strategy.initial_lot")

	s = Default().Strategy
	s.BuyThreshold = "80"
	_, err = s.StrategyConfig()
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "strategy: [not, a, map]"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "strategy:\n  sell_threshold: \"10\"\n"))
	assert.ErrorIs(t, err, engine.ErrInvalidConfig)
}
