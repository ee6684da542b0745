package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/arrowpipeline"
	"rsi-martingale-backtest/services/binance"
	"rsi-martingale-backtest/services/clickhouse"
	"rsi-martingale-backtest/services/config"
	"rsi-martingale-backtest/services/engine"
	"rsi-martingale-backtest/strategies"
)

// sourceFlags select where bars come from. Unset values fall back to the
// data section of the config.
type sourceFlags struct {
	source   string
	input    string
	symbol   string
	interval string
	start    string
	end      string
	limit    int
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "source", "", "bar source: csv, clickhouse, binance or arrow")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "input file for csv and arrow sources")
	cmd.Flags().StringVar(&f.symbol, "symbol", "", "instrument symbol")
	cmd.Flags().StringVar(&f.interval, "interval", "", "bar interval, e.g. 1m")
	cmd.Flags().StringVar(&f.start, "start", "", "first bar time (epoch or RFC3339)")
	cmd.Flags().StringVar(&f.end, "end", "", "last bar time (epoch or RFC3339)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of bars")
}

func (f *sourceFlags) apply(d *config.DataSection) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&d.Source, f.source)
	set(&d.Path, f.input)
	set(&d.Symbol, f.symbol)
	set(&d.Interval, f.interval)
	set(&d.Start, f.start)
	set(&d.End, f.end)
	if f.limit > 0 {
		d.Limit = f.limit
	}
}

func loadSeries(ctx context.Context, cfg *config.Config, logger *zap.Logger) (engine.Series, error) {
	d := cfg.Data
	start, err := strategies.ParseTime(d.Start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, err := strategies.ParseTime(d.End)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}

	switch strings.ToLower(d.Source) {
	case "", "csv":
		if d.Path == "" {
			return nil, fmt.Errorf("csv source needs --input")
		}
		file, err := os.Open(d.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer file.Close()
		return strategies.ReadBarsCSV(file)

	case "arrow":
		if d.Path == "" {
			return nil, fmt.Errorf("arrow source needs --input")
		}
		file, err := os.Open(d.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		defer file.Close()
		bars, err := arrowpipeline.NewPipeline(&arrowpipeline.Config{BatchSize: cfg.Arrow.BatchSize}, logger).ReadBars(file)
		return engine.Series(bars), err

	case "clickhouse":
		client, err := clickhouse.NewClient(ctx, cfg.ClickHouse, logger)
		if err != nil {
			return nil, err
		}
		defer client.Close()
		bars, err := client.LoadBars(ctx, clickhouse.BarQuery{
			Symbol: d.Symbol, Interval: d.Interval, Start: start, End: end, Limit: d.Limit,
		})
		return engine.Series(bars), err

	case "binance":
		return binance.NewKlineSource(cfg.Binance, logger).Fetch(ctx, d.Symbol, d.Interval, start, end, d.Limit)
	}
	return nil, fmt.Errorf("unknown source %q", d.Source)
}
