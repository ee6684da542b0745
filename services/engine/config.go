package engine

// Strategy configuration and run reproducibility

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// TieBreakPolicy decides which level wins when one bar touches both.
type TieBreakPolicy string

const (
	TieBreakTakeProfitFirst TieBreakPolicy = "tp_first"
	TieBreakStopLossFirst   TieBreakPolicy = "sl_first"
	// TieBreakChart assumes the extremum closer to the open traded first.
	TieBreakChart TieBreakPolicy = "chart"
)

// PriceBasis selects which prices are tested against the exit levels.
type PriceBasis string

const (
	PriceBasisRange PriceBasis = "range" // high/low
	PriceBasisClose PriceBasis = "close"
)

// EntryPolicy controls where the scan resumes after a trade is opened.
type EntryPolicy string

const (
	// EntryIndependent resumes at the bar after the signal, so entries
	// can fire while an earlier trade is still unresolved.
	EntryIndependent EntryPolicy = "independent"
	// EntrySkipOverlap resumes at the bar after the previous exit.
	EntrySkipOverlap EntryPolicy = "skip_overlap"
)

// StrategyConfig is the immutable configuration of one run.
type StrategyConfig struct {
	InitialLot           decimal.Decimal `json:"initial_lot"`
	SLDistance           decimal.Decimal `json:"sl_distance"`
	TPDistance           decimal.Decimal `json:"tp_distance"`
	TrailingStopDistance decimal.Decimal `json:"trailing_stop_distance"`
	LotMultiplier        decimal.Decimal `json:"lot_multiplier"`
	MaxLossStreak        int             `json:"max_loss_streak"`
	BuyThreshold         decimal.Decimal `json:"buy_threshold"`
	SellThreshold        decimal.Decimal `json:"sell_threshold"`

	TieBreak    TieBreakPolicy `json:"tie_break,omitempty"`
	PriceBasis  PriceBasis     `json:"price_basis,omitempty"`
	EntryPolicy EntryPolicy    `json:"entry_policy,omitempty"`
}

// DefaultStrategyConfig mirrors the reference parameters: 0.10 lots,
// x1.7 after a loss, seven losses to halt, 10/30/5 price distances and
// RSI bands at 35 and 70.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		InitialLot:           decimal.RequireFromString("0.10"),
		SLDistance:           decimal.NewFromInt(10),
		TPDistance:           decimal.NewFromInt(30),
		TrailingStopDistance: decimal.NewFromInt(5),
		LotMultiplier:        decimal.RequireFromString("1.7"),
		MaxLossStreak:        7,
		BuyThreshold:         decimal.NewFromInt(35),
		SellThreshold:        decimal.NewFromInt(70),
		TieBreak:             TieBreakTakeProfitFirst,
		PriceBasis:           PriceBasisRange,
		EntryPolicy:          EntryIndependent,
	}
}

// WithDefaults fills unset policy fields.
func (c StrategyConfig) WithDefaults() StrategyConfig {
	if c.TieBreak == "" {
		c.TieBreak = TieBreakTakeProfitFirst
	}
	if c.PriceBasis == "" {
		c.PriceBasis = PriceBasisRange
	}
	if c.EntryPolicy == "" {
		c.EntryPolicy = EntryIndependent
	}
	return c
}

// Hash is a SHA-256 of the canonical JSON form of the config.
func (c StrategyConfig) Hash() string {
	b, _ := json.Marshal(c.WithDefaults())
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

// RunManifest identifies a run well enough to reproduce it.
type RunManifest struct {
	JobID         string `json:"job_id"`
	Symbol        string `json:"symbol,omitempty"`
	ConfigHash    string `json:"config_hash"`
	DataChecksum  string `json:"data_checksum"`
	EngineVersion string `json:"engine_version"`
	CreatedAt     int64  `json:"created_at"`
}

// EngineVersion is bumped whenever trade semantics change.
const EngineVersion = "1.2.0"

// CacheKey is stable across runs with identical inputs.
func (m RunManifest) CacheKey() string {
	return fmt.Sprintf("%s:%s:%s", m.EngineVersion, m.ConfigHash, m.DataChecksum)
}
