package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is both the evaluator's decision and a trade's direction.
type Side int

const (
	SideNone Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "none"
	}
}

// MarshalText lets Side travel as "buy"/"sell" in JSON and CSV.
func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "buy":
		*s = SideBuy
	case "sell":
		*s = SideSell
	case "none", "":
		*s = SideNone
	default:
		return fmt.Errorf("unknown side %q", text)
	}
	return nil
}

// SignalEvaluator maps one bar's indicator value to an entry decision.
type SignalEvaluator struct {
	BuyThreshold  decimal.Decimal
	SellThreshold decimal.Decimal
}

func NewSignalEvaluator(cfg StrategyConfig) SignalEvaluator {
	return SignalEvaluator{BuyThreshold: cfg.BuyThreshold, SellThreshold: cfg.SellThreshold}
}

// Evaluate returns SideBuy at or below the buy threshold, SideSell at or
// above the sell threshold and SideNone otherwise. Buy is checked first, so
// it wins if a misconfigured pair of thresholds lets both fire.
func (e SignalEvaluator) Evaluate(bar Bar) Side {
	if !bar.Indicator.Valid {
		return SideNone
	}
	v := bar.Indicator.Decimal
	if v.LessThanOrEqual(e.BuyThreshold) {
		return SideBuy
	}
	if v.GreaterThanOrEqual(e.SellThreshold) {
		return SideSell
	}
	return SideNone
}
