package clickhouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-martingale-backtest/services/config"
	"rsi-martingale-backtest/services/engine"
)

// fakeConn implements the parts of driver.Conn the client uses.
type fakeConn struct {
	driver.Conn
	execs    []string
	queries  []string
	rows     [][]any
	queryErr error
	batch    *fakeBatch
}

func (c *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	c.execs = append(c.execs, query)
	return nil
}

func (c *fakeConn) Query(_ context.Context, query string, _ ...any) (driver.Rows, error) {
	c.queries = append(c.queries, query)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return &fakeRows{data: c.rows, pos: -1}, nil
}

func (c *fakeConn) PrepareBatch(_ context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	c.batch = &fakeBatch{query: query}
	return c.batch, nil
}

func (c *fakeConn) Close() error { return nil }

type fakeRows struct {
	driver.Rows
	data [][]any
	pos  int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos]
	*(dest[0].(*uint64)) = row[0].(uint64)
	for i := 1; i < len(dest); i++ {
		*(dest[i].(*string)) = row[i].(string)
	}
	return nil
}

func (r *fakeRows) Err() error   { return nil }
func (r *fakeRows) Close() error { return nil }

type fakeBatch struct {
	driver.Batch
	query string
	rows  [][]any
	sent  bool
}

func (b *fakeBatch) Append(v ...any) error {
	b.rows = append(b.rows, v)
	return nil
}

func (b *fakeBatch) Send() error {
	b.sent = true
	return nil
}

func testClient(conn *fakeConn) *Client {
	return NewClientWithConn(conn, config.Default().ClickHouse, nil)
}

func TestLoadBars(t *testing.T) {
	conn := &fakeConn{rows: [][]any{
		{uint64(1704186000000), "1.1", "1.2", "1.0", "1.15"},
		{uint64(1704186060000), "1.15", "1.3", "1.1", "1.25"},
	}}
	bars, err := testClient(conn).LoadBars(context.Background(), BarQuery{Symbol: "EURUSD", Interval: "1m", Limit: 10})
	require.NoError(t, err)

	require.Len(t, bars, 2)
	assert.Equal(t, time.UnixMilli(1704186060000).UTC(), bars[1].Time)
	assert.True(t, bars[1].Close.Equal(decimal.RequireFromString("1.25")))
	assert.False(t, bars[0].HasIndicator())
	require.Len(t, conn.queries, 1)
	assert.Contains(t, conn.queries[0], "FROM backtest.data FINAL")
	assert.Contains(t, conn.queries[0], "LIMIT 10")
}

func TestLoadBarsBadPrice(t *testing.T) {
	conn := &fakeConn{rows: [][]any{{uint64(1), "x", "1", "1", "1"}}}
	_, err := testClient(conn).LoadBars(context.Background(), BarQuery{Symbol: "EURUSD", Interval: "1m"})
	assert.Error(t, err)
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	conn := &fakeConn{queryErr: errors.New("connection refused")}
	c := testClient(conn)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.LoadBars(ctx, BarQuery{Symbol: "EURUSD", Interval: "1m"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	_, err := c.LoadBars(ctx, BarQuery{Symbol: "EURUSD", Interval: "1m"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Len(t, conn.queries, 3, "open breaker must not reach the server")
}

func TestSaveTrades(t *testing.T) {
	conn := &fakeConn{}
	trades := []engine.Trade{{
		Direction:      engine.SideSell,
		LotSize:        decimal.RequireFromString("0.17"),
		EntryPrice:     decimal.NewFromInt(100),
		ExitPrice:      decimal.NewFromInt(95),
		ExitReason:     engine.ExitTakeProfit,
		RealizedProfit: decimal.RequireFromString("0.85"),
	}}
	require.NoError(t, testClient(conn).SaveTrades(context.Background(), "run-1", "EURUSD", trades))

	require.NotNil(t, conn.batch)
	assert.True(t, conn.batch.sent)
	assert.Equal(t, "INSERT INTO backtest.trades", conn.batch.query)
	require.Len(t, conn.batch.rows, 1)
	row := conn.batch.rows[0]
	assert.Equal(t, "run-1", row[0])
	assert.Equal(t, "sell", row[3])
	assert.Equal(t, "take_profit", row[11])
}

func TestSaveTradesEmpty(t *testing.T) {
	conn := &fakeConn{}
	require.NoError(t, testClient(conn).SaveTrades(context.Background(), "run-1", "EURUSD", nil))
	assert.Nil(t, conn.batch)
}

func TestInsertBarsAndSchema(t *testing.T) {
	conn := &fakeConn{}
	c := testClient(conn)
	ctx := context.Background()

	require.NoError(t, c.EnsureSchema(ctx))
	require.Len(t, conn.execs, 3)
	assert.Contains(t, conn.execs[1], "backtest.data")
	assert.Contains(t, conn.execs[2], "backtest.trades")

	bars := []engine.Bar{{Time: time.UnixMilli(60000), Open: decimal.NewFromInt(1), High: decimal.NewFromInt(2), Low: decimal.NewFromInt(1), Close: decimal.NewFromInt(2)}}
	require.NoError(t, c.InsertBars(ctx, "BTCUSDT", "1m", bars))
	require.Len(t, conn.batch.rows, 1)
	assert.Equal(t, uint64(60000), conn.batch.rows[0][2])
	assert.Equal(t, 2.0, conn.batch.rows[0][6])
}
