package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidConfig is matched by every ConfigError.
var ErrInvalidConfig = errors.New("invalid strategy config")

// ConfigError describes one rejected field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid strategy config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate reports every problem in the config at once.
func (c StrategyConfig) Validate() error {
	var errs []error
	bad := func(field, reason string) {
		errs = append(errs, &ConfigError{Field: field, Reason: reason})
	}

	if !c.InitialLot.IsPositive() {
		bad("initial_lot", "must be > 0")
	}
	if !c.SLDistance.IsPositive() {
		bad("sl_distance", "must be > 0")
	}
	if !c.TPDistance.IsPositive() {
		bad("tp_distance", "must be > 0")
	}
	if c.TrailingStopDistance.IsNegative() {
		bad("trailing_stop_distance", "must be >= 0")
	}
	if !c.LotMultiplier.GreaterThan(decimal.NewFromInt(1)) {
		bad("lot_multiplier", "must be > 1")
	}
	if c.MaxLossStreak < 1 {
		bad("max_loss_streak", "must be >= 1")
	}
	if c.BuyThreshold.GreaterThanOrEqual(c.SellThreshold) {
		bad("buy_threshold", fmt.Sprintf("(%s) must be below sell_threshold (%s)", c.BuyThreshold, c.SellThreshold))
	}

	c = c.WithDefaults()
	switch c.TieBreak {
	case TieBreakTakeProfitFirst, TieBreakStopLossFirst, TieBreakChart:
	default:
		bad("tie_break", fmt.Sprintf("unknown policy %q", c.TieBreak))
	}
	switch c.PriceBasis {
	case PriceBasisRange, PriceBasisClose:
	default:
		bad("price_basis", fmt.Sprintf("unknown basis %q", c.PriceBasis))
	}
	switch c.EntryPolicy {
	case EntryIndependent, EntrySkipOverlap:
	default:
		bad("entry_policy", fmt.Sprintf("unknown policy %q", c.EntryPolicy))
	}

	return errors.Join(errs...)
}
