package engine

// Forward-scanning exit resolution with a trailing anchor

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ExitReason says why a position closed.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "take_profit"
	ExitStopLoss   ExitReason = "stop_loss"
	ExitEndOfData  ExitReason = "end_of_data"
)

// ErrNoForwardBars is returned when an entry has no bar after it to scan.
var ErrNoForwardBars = errors.New("no bars after entry")

// ExitEvent is the resolved close of one position.
type ExitEvent struct {
	Index  int
	Price  decimal.Decimal
	Reason ExitReason
	// Anchor and the levels are those in force on the exit bar.
	Anchor     decimal.Decimal
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal
	TrailMoves int
}

// ScanStep records the simulator's view of one scanned bar.
type ScanStep struct {
	Index      int             `json:"index"`
	Close      decimal.Decimal `json:"close"`
	Anchor     decimal.Decimal `json:"anchor"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Touch      string          `json:"touch"`
	Trailed    bool            `json:"trailed"`
}

// ExitSimulator resolves an open position by scanning later bars.
type ExitSimulator struct {
	SLDistance       decimal.Decimal
	TPDistance       decimal.Decimal
	TrailingDistance decimal.Decimal
	TieBreak         TieBreakPolicy
	Basis            PriceBasis
}

func NewExitSimulator(cfg StrategyConfig) ExitSimulator {
	cfg = cfg.WithDefaults()
	return ExitSimulator{
		SLDistance:       cfg.SLDistance,
		TPDistance:       cfg.TPDistance,
		TrailingDistance: cfg.TrailingStopDistance,
		TieBreak:         cfg.TieBreak,
		Basis:            cfg.PriceBasis,
	}
}

// Resolve scans from entryIndex+1. Each bar is checked for take-profit,
// then stop-loss, then a favourable close of at least the trailing
// distance past the anchor, which moves the anchor to that close. Running
// out of bars closes at the final close with ExitEndOfData.
func (s ExitSimulator) Resolve(bars Series, entryIndex int, entryPrice decimal.Decimal, side Side) (ExitEvent, error) {
	return s.scan(bars, entryIndex, entryPrice, side, nil)
}

// Trace is Resolve with a per-bar record of the scan.
func (s ExitSimulator) Trace(bars Series, entryIndex int, entryPrice decimal.Decimal, side Side) (ExitEvent, []ScanStep, error) {
	var steps []ScanStep
	ev, err := s.scan(bars, entryIndex, entryPrice, side, func(st ScanStep) { steps = append(steps, st) })
	return ev, steps, err
}

func (s ExitSimulator) scan(bars Series, entryIndex int, entryPrice decimal.Decimal, side Side, record func(ScanStep)) (ExitEvent, error) {
	if side != SideBuy && side != SideSell {
		return ExitEvent{}, fmt.Errorf("resolve exit: invalid side %s", side)
	}
	if _, ok := bars.At(entryIndex + 1); !ok || entryIndex < 0 {
		return ExitEvent{}, fmt.Errorf("resolve exit from bar %d of %d: %w", entryIndex, len(bars), ErrNoForwardBars)
	}

	anchor := entryPrice
	moves := 0
	for j := entryIndex + 1; ; j++ {
		bar, ok := bars.At(j)
		if !ok {
			break
		}
		lv := LevelsFrom(anchor, side, s.SLDistance, s.TPDistance)
		touch := ResolveFirstTouch(bar, side, lv, s.TieBreak, s.Basis)

		step := ScanStep{Index: j, Close: bar.Close, Anchor: anchor, StopLoss: lv.StopLoss, TakeProfit: lv.TakeProfit}
		switch touch {
		case TouchTP, TouchSL:
			ev := ExitEvent{Index: j, Price: lv.TakeProfit, Reason: ExitTakeProfit, Anchor: anchor,
				StopLoss: lv.StopLoss, TakeProfit: lv.TakeProfit, TrailMoves: moves}
			step.Touch = string(ExitTakeProfit)
			if touch == TouchSL {
				ev.Price, ev.Reason = lv.StopLoss, ExitStopLoss
				step.Touch = string(ExitStopLoss)
			}
			if record != nil {
				record(step)
			}
			return ev, nil
		}

		if s.TrailingDistance.IsPositive() && favourable(side, anchor, bar.Close).GreaterThanOrEqual(s.TrailingDistance) {
			anchor = bar.Close
			moves++
			step.Trailed = true
		}
		if record != nil {
			record(step)
		}
	}

	last, _ := bars.Last()
	lv := LevelsFrom(anchor, side, s.SLDistance, s.TPDistance)
	return ExitEvent{
		Index:      len(bars) - 1,
		Price:      last.Close,
		Reason:     ExitEndOfData,
		Anchor:     anchor,
		StopLoss:   lv.StopLoss,
		TakeProfit: lv.TakeProfit,
		TrailMoves: moves,
	}, nil
}

// favourable is how far price moved in the position's favour from ref.
func favourable(side Side, ref, price decimal.Decimal) decimal.Decimal {
	if side == SideSell {
		return ref.Sub(price)
	}
	return price.Sub(ref)
}
