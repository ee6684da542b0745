package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/arrowpipeline"
	"rsi-martingale-backtest/services/clickhouse"
	"rsi-martingale-backtest/services/config"
	"rsi-martingale-backtest/services/indicators"
	"rsi-martingale-backtest/strategies"
)

type strategyFlags struct {
	initialLot   string
	multiplier   string
	maxStreak    int
	sl           string
	tp           string
	trailing     string
	slPips       string
	tpPips       string
	trailingPips string
	buy          string
	sell         string
	tieBreak     string
	priceBasis   string
	entryPolicy  string
	rsiPeriod    int
	rsiSmoothing string
}

func (f *strategyFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.initialLot, "lot", "", "initial lot size")
	fs.StringVar(&f.multiplier, "multiplier", "", "lot multiplier after a loss")
	fs.IntVar(&f.maxStreak, "max-loss-streak", 0, "consecutive losses that halt the run")
	fs.StringVar(&f.sl, "sl", "", "stop-loss distance in price units")
	fs.StringVar(&f.tp, "tp", "", "take-profit distance in price units")
	fs.StringVar(&f.trailing, "trailing", "", "trailing distance in price units (0 disables)")
	fs.StringVar(&f.slPips, "sl-pips", "", "stop-loss distance in pips")
	fs.StringVar(&f.tpPips, "tp-pips", "", "take-profit distance in pips")
	fs.StringVar(&f.trailingPips, "trailing-pips", "", "trailing distance in pips")
	fs.StringVar(&f.buy, "buy-threshold", "", "buy when RSI is at or below this value")
	fs.StringVar(&f.sell, "sell-threshold", "", "sell when RSI is at or above this value")
	fs.StringVar(&f.tieBreak, "tie-break", "", "tp_first, sl_first or chart")
	fs.StringVar(&f.priceBasis, "price-basis", "", "range or close")
	fs.StringVar(&f.entryPolicy, "entry-policy", "", "independent or skip_overlap")
	fs.IntVar(&f.rsiPeriod, "rsi-period", 0, "RSI lookback")
	fs.StringVar(&f.rsiSmoothing, "rsi-smoothing", "", "wilder or ewm")
}

func (f *strategyFlags) apply(s *config.StrategySection) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&s.InitialLot, f.initialLot)
	set(&s.LotMultiplier, f.multiplier)
	set(&s.SLDistance, f.sl)
	set(&s.TPDistance, f.tp)
	set(&s.TrailingStopDistance, f.trailing)
	// pip flags only apply when no direct distance was given for the leg
	if f.slPips != "" && f.sl == "" {
		s.SLDistance, s.SLPips = "", f.slPips
	}
	if f.tpPips != "" && f.tp == "" {
		s.TPDistance, s.TPPips = "", f.tpPips
	}
	if f.trailingPips != "" && f.trailing == "" {
		s.TrailingStopDistance, s.TrailingPips = "", f.trailingPips
	}
	set(&s.BuyThreshold, f.buy)
	set(&s.SellThreshold, f.sell)
	set(&s.TieBreak, f.tieBreak)
	set(&s.PriceBasis, f.priceBasis)
	set(&s.EntryPolicy, f.entryPolicy)
	set(&s.RSISmoothing, f.rsiSmoothing)
	if f.maxStreak > 0 {
		s.MaxLossStreak = f.maxStreak
	}
	if f.rsiPeriod > 0 {
		s.RSIPeriod = f.rsiPeriod
	}
}

func runCmd(root *rootOptions) *cobra.Command {
	var (
		src       sourceFlags
		strat     strategyFlags
		tradesCSV string
		report    string
		arrowOut  string
		persist   bool
		quiet     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest over a bar series",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			src.apply(&cfg.Data)
			strat.apply(&cfg.Strategy)

			sc, err := cfg.Strategy.StrategyConfig()
			if err != nil {
				return err
			}

			bars, err := loadSeries(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			s := strategies.NewRSIMartingaleStrategy(sc, logger)
			s.Symbol = cfg.Data.Symbol
			if cfg.Strategy.RSIPeriod > 0 {
				s.RSIPeriod = cfg.Strategy.RSIPeriod
			}
			if cfg.Strategy.RSISmoothing != "" {
				s.Smoothing = indicators.Smoothing(cfg.Strategy.RSISmoothing)
			}
			s.SetBars(bars)
			if err := s.Run(); err != nil {
				return err
			}

			if tradesCSV != "" {
				if err := s.ExportCSV(tradesCSV); err != nil {
					return err
				}
			}
			if report != "" {
				if err := s.ExportReport(report); err != nil {
					return err
				}
			}
			if arrowOut != "" {
				file, err := os.Create(arrowOut)
				if err != nil {
					return fmt.Errorf("failed to create file: %w", err)
				}
				defer file.Close()
				p := arrowpipeline.NewPipeline(&arrowpipeline.Config{BatchSize: cfg.Arrow.BatchSize}, logger)
				if err := p.WriteTrades(file, s.Result.Trades); err != nil {
					return err
				}
			}
			if persist {
				client, err := clickhouse.NewClient(cmd.Context(), cfg.ClickHouse, logger)
				if err != nil {
					return err
				}
				defer client.Close()
				if err := client.EnsureSchema(cmd.Context()); err != nil {
					return err
				}
				runID := s.Manifest.JobID
				if err := client.SaveTrades(cmd.Context(), runID, s.Symbol, s.Result.Trades); err != nil {
					return err
				}
				logger.Info("trades persisted", zap.String("run_id", runID), zap.Int("trades", len(s.Result.Trades)))
			}

			if !quiet {
				s.PrintSummary(cmd.OutOrStdout())
			}
			return nil
		},
	}
	src.register(cmd)
	strat.register(cmd)
	cmd.Flags().StringVar(&tradesCSV, "trades-csv", "", "write the trade log as CSV")
	cmd.Flags().StringVar(&report, "report", "", "write the JSON report")
	cmd.Flags().StringVar(&arrowOut, "arrow-out", "", "write the trade log as an Arrow IPC stream")
	cmd.Flags().BoolVar(&persist, "persist", false, "store trades in ClickHouse")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the summary")
	return cmd
}
