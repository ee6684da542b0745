package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/arrowpipeline"
	"rsi-martingale-backtest/services/config"
	"rsi-martingale-backtest/services/engine"
	"rsi-martingale-backtest/services/indicators"
	"rsi-martingale-backtest/strategies"
)

func exportCmd(root *rootOptions) *cobra.Command {
	var (
		src        sourceFlags
		csvOut     string
		arrowOut   string
		withRSI    bool
		gapStepSec int
		resample   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write bars from any source to CSV or Arrow, optionally with RSI attached",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			src.apply(&cfg.Data)
			if csvOut == "" && arrowOut == "" {
				return fmt.Errorf("nothing to do: set --csv or --arrow")
			}

			bars, err := loadSeries(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if err := bars.Validate(); err != nil {
				return err
			}
			if resample != "" {
				if bars, err = engine.Resample(bars, engine.Timeframe(resample)); err != nil {
					return err
				}
			}
			if gapStepSec > 0 {
				if gaps := bars.DetectGaps(time.Duration(gapStepSec)*time.Second); len(gaps) > 0 {
					logger.Warn("series has gaps", zap.Int("count", len(gaps)), zap.Ints("bars", gaps))
				}
			}
			if withRSI {
				period := cfg.Strategy.RSIPeriod
				if period <= 0 {
					period = indicators.DefaultPeriod
				}
				if err := indicators.Attach(bars, period, indicators.Smoothing(cfg.Strategy.RSISmoothing)); err != nil {
					return err
				}
			}
			if err := writeBars(cfg, logger, bars, csvOut, arrowOut); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d bars (checksum %s)\n", len(bars), bars.Checksum())
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().StringVar(&csvOut, "csv", "", "write bars as CSV")
	cmd.Flags().StringVar(&arrowOut, "arrow", "", "write bars as an Arrow IPC stream")
	cmd.Flags().BoolVar(&withRSI, "rsi", false, "attach RSI before writing")
	cmd.Flags().IntVar(&gapStepSec, "gap-step", 0, "warn about gaps larger than this many seconds")
	cmd.Flags().StringVar(&resample, "resample", "", "aggregate to a higher timeframe, e.g. 15m")
	return cmd
}

func writeBars(cfg *config.Config, logger *zap.Logger, bars engine.Series, csvOut, arrowOut string) error {
	if csvOut != "" {
		file, err := createFile(csvOut)
		if err != nil {
			return err
		}
		defer file.Close()
		if err := strategies.WriteBarsCSV(file, bars); err != nil {
			return err
		}
	}
	if arrowOut != "" {
		file, err := createFile(arrowOut)
		if err != nil {
			return err
		}
		defer file.Close()
		p := arrowpipeline.NewPipeline(&arrowpipeline.Config{BatchSize: cfg.Arrow.BatchSize}, logger)
		if err := p.WriteBars(file, bars); err != nil {
			return err
		}
	}
	return nil
}
