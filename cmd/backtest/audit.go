package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/engine"
	"rsi-martingale-backtest/services/indicators"
)

// auditCmd checks the first-touch golden cases and, when bars are given,
// that two runs over them produce the same fingerprint.
func auditCmd(root *rootOptions) *cobra.Command {
	var (
		src     sourceFlags
		gapStep string
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify intrabar parity cases and run determinism over a series",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			out := cmd.OutOrStdout()

			if failures := engine.RunParitySuite(); len(failures) > 0 {
				return fmt.Errorf("parity cases failed: %s", strings.Join(failures, ", "))
			}
			fmt.Fprintf(out, "parity: %d cases ok\n", len(engine.GoldenCases))

			src.apply(&cfg.Data)
			if cfg.Data.Path == "" && src.source == "" {
				return nil
			}

			sc, err := cfg.Strategy.StrategyConfig()
			if err != nil {
				return err
			}
			bars, err := loadSeries(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			if err := bars.Validate(); err != nil {
				return err
			}
			if gapStep != "" {
				step, err := engine.Timeframe(gapStep).Duration()
				if err != nil {
					return err
				}
				gaps := bars.DetectGaps(step)
				fmt.Fprintf(out, "gaps: %d\n", len(gaps))
			}

			period := cfg.Strategy.RSIPeriod
			if period <= 0 {
				period = indicators.DefaultPeriod
			}
			if err := indicators.Attach(bars, period, indicators.Smoothing(cfg.Strategy.RSISmoothing)); err != nil {
				return err
			}

			runner, err := engine.NewRunner(sc, engine.WithLogger(logger))
			if err != nil {
				return err
			}
			started := time.Now()
			first, err := runner.Run(bars)
			if err != nil {
				return err
			}
			second, err := runner.Run(bars)
			if err != nil {
				return err
			}
			a, b := engine.Fingerprint(first), engine.Fingerprint(second)
			if a != b {
				return fmt.Errorf("non-deterministic run: %s != %s", a, b)
			}
			logger.Info("determinism verified",
				zap.Int("bars", len(bars)),
				zap.Duration("elapsed", time.Since(started)))
			fmt.Fprintf(out, "determinism: ok (%d trades, fingerprint %s)\n", first.TotalTrades, a)

			for _, t := range first.Trades {
				if t.ExitReason != engine.ExitStopLoss || t.Points.IsNegative() {
					continue
				}
				replay, err := runner.ReplayTrade(bars, t)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "trailed stop at entry %d: %s\n", t.EntryIndex, engine.ExplainExit(replay))
			}
			return nil
		},
	}
	src.register(cmd)
	cmd.Flags().StringVar(&gapStep, "gap-step", "", "report gaps larger than this timeframe, e.g. 1m")
	return cmd
}
