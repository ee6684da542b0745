package clickhouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"rsi-martingale-backtest/services/engine"
)

const tradesDDL = `
	CREATE TABLE IF NOT EXISTS %s (
		run_id String,
		symbol String,
		seq UInt32,
		direction LowCardinality(String),
		lot_size Decimal(38, 10),
		entry_time DateTime64(3, 'UTC'),
		entry_price Decimal(38, 10),
		stop_loss_price Decimal(38, 10),
		take_profit_price Decimal(38, 10),
		exit_time DateTime64(3, 'UTC'),
		exit_price Decimal(38, 10),
		exit_reason LowCardinality(String),
		realized_profit Decimal(38, 10)
	)
	ENGINE = MergeTree
	ORDER BY (run_id, seq)
`

// SaveTrades writes one run's trade log in a single batch.
func (c *Client) SaveTrades(ctx context.Context, runID, symbol string, trades []engine.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	query := fmt.Sprintf("INSERT INTO %s", c.table(c.cfg.TradesTable))

	return c.guard(func() error {
		batch, err := c.conn.PrepareBatch(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare batch: %w", err)
		}
		for i, t := range trades {
			if err := batch.Append(
				runID, symbol, uint32(i),
				t.Direction.String(),
				t.LotSize,
				t.EntryTime, t.EntryPrice,
				t.StopLossPrice, t.TakeProfitPrice,
				t.ExitTime, t.ExitPrice,
				string(t.ExitReason),
				t.RealizedProfit,
			); err != nil {
				return fmt.Errorf("batch append: %w", err)
			}
		}
		if err := batch.Send(); err != nil {
			return fmt.Errorf("batch send: %w", err)
		}
		c.logger.Info("saved trades", zap.String("run_id", runID), zap.Int("trades", len(trades)))
		return nil
	})
}
