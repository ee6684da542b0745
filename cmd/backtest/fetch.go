package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/binance"
	"rsi-martingale-backtest/services/clickhouse"
	"rsi-martingale-backtest/strategies"
)

func fetchCmd(root *rootOptions) *cobra.Command {
	var (
		src          sourceFlags
		csvOut       string
		arrowOut     string
		toClickHouse bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download Binance klines to CSV, Arrow or ClickHouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			src.apply(&cfg.Data)
			if cfg.Data.Symbol == "" || cfg.Data.Interval == "" {
				return fmt.Errorf("fetch needs --symbol and --interval")
			}
			if csvOut == "" && arrowOut == "" && !toClickHouse {
				return fmt.Errorf("nothing to do: set --csv, --arrow or --clickhouse")
			}

			start, err := strategies.ParseTime(cfg.Data.Start)
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}
			end, err := strategies.ParseTime(cfg.Data.End)
			if err != nil {
				return fmt.Errorf("end: %w", err)
			}

			bars, err := binance.NewKlineSource(cfg.Binance, logger).
				Fetch(cmd.Context(), cfg.Data.Symbol, cfg.Data.Interval, start, end, cfg.Data.Limit)
			if err != nil {
				return err
			}
			if err := bars.Validate(); err != nil {
				return err
			}
			if err := writeBars(cfg, logger, bars, csvOut, arrowOut); err != nil {
				return err
			}

			if toClickHouse {
				client, err := clickhouse.NewClient(cmd.Context(), cfg.ClickHouse, logger)
				if err != nil {
					return err
				}
				defer client.Close()
				if err := client.EnsureSchema(cmd.Context()); err != nil {
					return err
				}
				if err := client.InsertBars(cmd.Context(), cfg.Data.Symbol, cfg.Data.Interval, bars); err != nil {
					return err
				}
			}

			logger.Info("fetch complete",
				zap.String("symbol", cfg.Data.Symbol),
				zap.Int("bars", len(bars)))
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d bars for %s %s\n", len(bars), cfg.Data.Symbol, cfg.Data.Interval)
			return nil
		},
	}
	cmd.Flags().StringVar(&src.symbol, "symbol", "", "instrument symbol, e.g. BTCUSDT")
	cmd.Flags().StringVar(&src.interval, "interval", "", "kline interval, e.g. 1m")
	cmd.Flags().StringVar(&src.start, "start", "", "first bar time (epoch or RFC3339)")
	cmd.Flags().StringVar(&src.end, "end", "", "last bar time (epoch or RFC3339)")
	cmd.Flags().IntVar(&src.limit, "limit", 0, "maximum number of bars")
	cmd.Flags().StringVar(&csvOut, "csv", "", "write bars as CSV")
	cmd.Flags().StringVar(&arrowOut, "arrow", "", "write bars as an Arrow IPC stream")
	cmd.Flags().BoolVar(&toClickHouse, "clickhouse", false, "insert bars into ClickHouse")
	return cmd
}

func createFile(path string) (*os.File, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return file, nil
}
