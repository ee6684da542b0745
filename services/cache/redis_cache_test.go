package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-martingale-backtest/services/engine"
)

func sampleResult() *engine.Result {
	return &engine.Result{
		Trades: []engine.Trade{{
			EntryIndex:     2,
			EntryTime:      time.Date(2024, 1, 2, 9, 2, 0, 0, time.UTC),
			EntryPrice:     decimal.NewFromInt(100),
			Direction:      engine.SideSell,
			LotSize:        decimal.RequireFromString("0.17"),
			ExitIndex:      4,
			ExitReason:     engine.ExitStopLoss,
			RealizedProfit: decimal.RequireFromString("-1.7"),
		}},
		TotalProfit: decimal.RequireFromString("-1.7"),
		TotalTrades: 1,
	}
}

func TestResultCacheGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewResultCacheWithClient(db, time.Hour, nil)
	ctx := context.Background()

	t.Run("hit decodes the result", func(t *testing.T) {
		payload, err := json.Marshal(sampleResult())
		require.NoError(t, err)
		mock.ExpectGet("k1").SetVal(string(payload))

		res, found, err := cache.Get(ctx, "k1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, engine.SideSell, res.Trades[0].Direction)
		assert.True(t, res.TotalProfit.Equal(decimal.RequireFromString("-1.7")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("k2").RedisNil()

		res, found, err := cache.Get(ctx, "k2")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, res)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		mock.ExpectGet("k3").SetErr(redis.TxFailedErr)

		_, _, err := cache.Get(ctx, "k3")
		assert.Error(t, err)
	})

	t.Run("corrupt entry is a miss", func(t *testing.T) {
		mock.ExpectGet("k4").SetVal("{not json")

		_, found, err := cache.Get(ctx, "k4")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestResultCacheSet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewResultCacheWithClient(db, 30*time.Minute, nil)

	res := sampleResult()
	payload, err := json.Marshal(res)
	require.NoError(t, err)
	mock.ExpectSet("k1", string(payload), 30*time.Minute).SetVal("OK")

	require.NoError(t, cache.Set(context.Background(), "k1", res))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKey(t *testing.T) {
	m := engine.RunManifest{ConfigHash: "abc", DataChecksum: "def", EngineVersion: engine.EngineVersion}
	assert.Equal(t, "backtest:result:"+engine.EngineVersion+":abc:def", Key(m))
}
