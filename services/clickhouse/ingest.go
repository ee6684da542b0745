package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/engine"
)

const barsDDL = `
	CREATE TABLE IF NOT EXISTS %s (
		symbol String,
		interval LowCardinality(String),
		open_time_ms UInt64,
		open Float64,
		high Float64,
		low Float64,
		close Float64,
		volume Float64,
		quote_volume Float64,
		trades UInt64,
		taker_base Float64,
		taker_quote Float64,
		close_time_ms UInt64,
		ingested_at DateTime64(3),
		version UInt64
	)
	ENGINE = ReplacingMergeTree(version)
	ORDER BY (symbol, interval, open_time_ms)
	SETTINGS index_granularity = 8192
`

// BarQuery selects one symbol and interval; zero times leave that side
// of the range open.
type BarQuery struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
	Limit    int
}

// LoadBars returns the bars in open-time order. Prices are read as text
// so they convert to decimals without float formatting noise.
func (c *Client) LoadBars(ctx context.Context, q BarQuery) ([]engine.Bar, error) {
	query := fmt.Sprintf(`
		SELECT open_time_ms, toString(open), toString(high), toString(low), toString(close)
		FROM %s FINAL
		WHERE symbol = ? AND interval = ? AND open_time_ms >= ? AND open_time_ms < ?
		ORDER BY open_time_ms`, c.table(c.cfg.BarsTable))
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	start, end := uint64(0), uint64(1<<63-1)
	if !q.Start.IsZero() {
		start = uint64(q.Start.UnixMilli())
	}
	if !q.End.IsZero() {
		end = uint64(q.End.UnixMilli())
	}

	var bars []engine.Bar
	err := c.guard(func() error {
		bars = bars[:0]
		rows, err := c.conn.Query(ctx, query, q.Symbol, q.Interval, start, end)
		if err != nil {
			return fmt.Errorf("failed to query bars: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				openMs                 uint64
				open, high, low, close string
			)
			if err := rows.Scan(&openMs, &open, &high, &low, &close); err != nil {
				return fmt.Errorf("failed to scan bar: %w", err)
			}
			bar, err := parseBar(openMs, open, high, low, close)
			if err != nil {
				return err
			}
			bars = append(bars, bar)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("loaded bars",
		zap.String("symbol", q.Symbol),
		zap.String("interval", q.Interval),
		zap.Int("bars", len(bars)),
	)
	return bars, nil
}

func parseBar(openMs uint64, fields ...string) (engine.Bar, error) {
	var px [4]decimal.Decimal
	for i, f := range fields {
		d, err := decimal.NewFromString(f)
		if err != nil {
			return engine.Bar{}, fmt.Errorf("bar at %d: bad price %q: %w", openMs, f, err)
		}
		px[i] = d
	}
	return engine.Bar{
		Time:  time.UnixMilli(int64(openMs)).UTC(),
		Open:  px[0],
		High:  px[1],
		Low:   px[2],
		Close: px[3],
	}, nil
}

// InsertBars appends bars for symbol and interval. Re-inserting the same
// open times is deduplicated by the table engine.
func (c *Client) InsertBars(ctx context.Context, symbol, interval string, bars []engine.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (symbol, interval, open_time_ms, open, high, low, close, ingested_at, version) SETTINGS insert_deduplicate=1`,
		c.table(c.cfg.BarsTable))

	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	return c.guard(func() error {
		batch, err := c.conn.PrepareBatch(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}
		for _, b := range bars {
			if err := batch.Append(
				symbol, interval,
				uint64(b.Time.UnixMilli()),
				b.Open.InexactFloat64(), b.High.InexactFloat64(), b.Low.InexactFloat64(), b.Close.InexactFloat64(),
				now, ver,
			); err != nil {
				return fmt.Errorf("batch append: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("batch send: %w", err)
		}
		c.logger.Info("inserted bars", zap.String("symbol", symbol), zap.Int("rows", len(bars)))
		return nil
	})
}
