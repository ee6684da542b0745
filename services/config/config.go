// Package config loads backtest settings from a YAML file, a .env file and
// BACKTEST_* environment variables, in increasing order of precedence.
// Variable names follow the field path, e.g. BACKTEST_STRATEGY_SL_PIPS.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"rsi-martingale-backtest/services/engine"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "BACKTEST"

// DefaultPipSize converts pip inputs to price distances for 4-digit FX
// quotes.
const DefaultPipSize = "0.0001"

type Config struct {
	Environment string           `yaml:"environment" split_words:"true"`
	Strategy    StrategySection  `yaml:"strategy"`
	Data        DataSection      `yaml:"data"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Binance     BinanceConfig    `yaml:"binance"`
	Redis       RedisConfig      `yaml:"redis"`
	Server      ServerConfig     `yaml:"server"`
	Arrow       ArrowConfig      `yaml:"arrow"`
}

// StrategySection holds strategy inputs as text so that decimal values
// survive YAML and the environment without float rounding. Distances may
// be given directly or as pips times pip_size; a direct distance wins.
type StrategySection struct {
	InitialLot           string `yaml:"initial_lot" split_words:"true"`
	LotMultiplier        string `yaml:"lot_multiplier" split_words:"true"`
	MaxLossStreak        int    `yaml:"max_loss_streak" split_words:"true"`
	SLDistance           string `yaml:"sl_distance" split_words:"true"`
	TPDistance           string `yaml:"tp_distance" split_words:"true"`
	TrailingStopDistance string `yaml:"trailing_stop_distance" split_words:"true"`
	SLPips               string `yaml:"sl_pips" split_words:"true"`
	TPPips               string `yaml:"tp_pips" split_words:"true"`
	TrailingPips         string `yaml:"trailing_pips" split_words:"true"`
	PipSize              string `yaml:"pip_size" split_words:"true"`
	BuyThreshold         string `yaml:"buy_threshold" split_words:"true"`
	SellThreshold        string `yaml:"sell_threshold" split_words:"true"`
	RSIPeriod            int    `yaml:"rsi_period" split_words:"true"`
	RSISmoothing         string `yaml:"rsi_smoothing" split_words:"true"`
	TieBreak             string `yaml:"tie_break" split_words:"true"`
	PriceBasis           string `yaml:"price_basis" split_words:"true"`
	EntryPolicy          string `yaml:"entry_policy" split_words:"true"`
}

type DataSection struct {
	Source   string `yaml:"source" split_words:"true"` // csv, clickhouse, binance, arrow
	Path     string `yaml:"path" split_words:"true"`
	Symbol   string `yaml:"symbol" split_words:"true"`
	Interval string `yaml:"interval" split_words:"true"`
	Start    string `yaml:"start" split_words:"true"`
	End      string `yaml:"end" split_words:"true"`
	Limit    int    `yaml:"limit" split_words:"true"`
}

type ClickHouseConfig struct {
	Addr            string        `yaml:"addr" split_words:"true"`
	Database        string        `yaml:"database" split_words:"true"`
	Username        string        `yaml:"username" split_words:"true"`
	Password        string        `yaml:"password" split_words:"true"`
	BarsTable       string        `yaml:"bars_table" split_words:"true"`
	TradesTable     string        `yaml:"trades_table" split_words:"true"`
	DialTimeout     time.Duration `yaml:"dial_timeout" split_words:"true"`
	BreakerFailures uint32        `yaml:"breaker_failures" split_words:"true"`
}

type BinanceConfig struct {
	APIKey            string  `yaml:"api_key" split_words:"true"`
	SecretKey         string  `yaml:"secret_key" split_words:"true"`
	BaseURL           string  `yaml:"base_url" split_words:"true"`
	RequestsPerSecond float64 `yaml:"requests_per_second" split_words:"true"`
	PageLimit         int     `yaml:"page_limit" split_words:"true"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" split_words:"true"`
	Addr     string        `yaml:"addr" split_words:"true"`
	Password string        `yaml:"password" split_words:"true"`
	DB       int           `yaml:"db" split_words:"true"`
	TTL      time.Duration `yaml:"ttl" split_words:"true"`
}

type ServerConfig struct {
	HTTPPort   int `yaml:"http_port" split_words:"true"`
	GRPCPort   int `yaml:"grpc_port" split_words:"true"`
	MaxWorkers int `yaml:"max_workers" split_words:"true"`
}

type ArrowConfig struct {
	BatchSize int `yaml:"batch_size" split_words:"true"`
}

// Default returns the built-in settings every source overrides.
func Default() *Config {
	return &Config{
		Environment: "development",
		Strategy: StrategySection{
			InitialLot:           "0.10",
			LotMultiplier:        "1.7",
			MaxLossStreak:        7,
			SLDistance:           "",
			TPDistance:           "",
			TrailingStopDistance: "",
			SLPips:               "10",
			TPPips:               "30",
			TrailingPips:         "5",
			PipSize:              DefaultPipSize,
			BuyThreshold:         "35",
			SellThreshold:        "70",
			RSIPeriod:            14,
			RSISmoothing:         "ewm",
			TieBreak:             string(engine.TieBreakTakeProfitFirst),
			PriceBasis:           string(engine.PriceBasisRange),
			EntryPolicy:          string(engine.EntryIndependent),
		},
		Data: DataSection{
			Source:   "csv",
			Symbol:   "EURUSD",
			Interval: "1m",
		},
		ClickHouse: ClickHouseConfig{
			Addr:            "localhost:9000",
			Database:        "backtest",
			Username:        "default",
			BarsTable:       "data",
			TradesTable:     "trades",
			DialTimeout:     10 * time.Second,
			BreakerFailures: 3,
		},
		Binance: BinanceConfig{
			RequestsPerSecond: 10,
			PageLimit:         1000,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  24 * time.Hour,
		},
		Server: ServerConfig{
			HTTPPort: 8080,
			GRPCPort: 9090,
		},
		Arrow: ArrowConfig{BatchSize: 10_000},
	}
}

// Load reads path (optional), then .env, then BACKTEST_* variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env is optional; a missing file is not an error
	_ = godotenv.Load()

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if _, err := cfg.Strategy.StrategyConfig(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// StrategyConfig converts the section to a validated engine config.
func (s StrategySection) StrategyConfig() (engine.StrategyConfig, error) {
	var errs []error
	parse := func(field, v string) decimal.Decimal {
		if v == "" {
			return decimal.Zero
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("strategy.%s: %q is not a number", field, v))
		}
		return d
	}

	pip := parse("pip_size", s.PipSize)
	if s.PipSize == "" {
		pip = decimal.RequireFromString(DefaultPipSize)
	}
	distance := func(field, direct, pipsField, pips string) decimal.Decimal {
		if direct != "" {
			return parse(field, direct)
		}
		return parse(pipsField, pips).Mul(pip)
	}

	cfg := engine.StrategyConfig{
		InitialLot:           parse("initial_lot", s.InitialLot),
		LotMultiplier:        parse("lot_multiplier", s.LotMultiplier),
		MaxLossStreak:        s.MaxLossStreak,
		SLDistance:           distance("sl_distance", s.SLDistance, "sl_pips", s.SLPips),
		TPDistance:           distance("tp_distance", s.TPDistance, "tp_pips", s.TPPips),
		TrailingStopDistance: distance("trailing_stop_distance", s.TrailingStopDistance, "trailing_pips", s.TrailingPips),
		BuyThreshold:         parse("buy_threshold", s.BuyThreshold),
		SellThreshold:        parse("sell_threshold", s.SellThreshold),
		TieBreak:             engine.TieBreakPolicy(s.TieBreak),
		PriceBasis:           engine.PriceBasis(s.PriceBasis),
		EntryPolicy:          engine.EntryPolicy(s.EntryPolicy),
	}
	if len(errs) > 0 {
		return engine.StrategyConfig{}, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return engine.StrategyConfig{}, err
	}
	return cfg.WithDefaults(), nil
}
