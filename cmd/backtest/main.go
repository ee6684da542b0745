// Command backtest runs the RSI martingale strategy from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/config"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "backtest",
		Short:         "RSI martingale backtester",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "development logging with per-trade detail")

	root.AddCommand(runCmd(opts), fetchCmd(opts), exportCmd(opts), generateCmd(opts), auditCmd(opts))
	return root
}

// setup loads the config and builds the logger every subcommand shares.
func (o *rootOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	var logger *zap.Logger
	if o.verbose {
		logger, err = zap.NewDevelopment()
	} else {
		zc := zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		logger, err = zc.Build()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
