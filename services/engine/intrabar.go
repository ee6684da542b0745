package engine

import "github.com/shopspring/decimal"

// FirstTouchResult indicates which level a bar hit
type FirstTouchResult int

const (
	TouchNone FirstTouchResult = iota
	TouchTP
	TouchSL
)

// Levels are the exit prices in force for one bar.
type Levels struct {
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// LevelsFrom derives the exit prices from the trail anchor.
func LevelsFrom(anchor decimal.Decimal, side Side, sl, tp decimal.Decimal) Levels {
	if side == SideSell {
		return Levels{TakeProfit: anchor.Sub(tp), StopLoss: anchor.Add(sl)}
	}
	return Levels{TakeProfit: anchor.Add(tp), StopLoss: anchor.Sub(sl)}
}

// ResolveFirstTouch decides whether bar closes the position at either level.
func ResolveFirstTouch(bar Bar, side Side, lv Levels, policy TieBreakPolicy, basis PriceBasis) FirstTouchResult {
	high, low := bar.High, bar.Low
	if basis == PriceBasisClose {
		high, low = bar.Close, bar.Close
	}

	var hitTP, hitSL bool
	if side == SideSell {
		hitTP = low.LessThanOrEqual(lv.TakeProfit)
		hitSL = high.GreaterThanOrEqual(lv.StopLoss)
	} else {
		hitTP = high.GreaterThanOrEqual(lv.TakeProfit)
		hitSL = low.LessThanOrEqual(lv.StopLoss)
	}

	switch {
	case hitTP && hitSL:
		return breakTie(bar, side, policy)
	case hitTP:
		return TouchTP
	case hitSL:
		return TouchSL
	}
	return TouchNone
}

func breakTie(bar Bar, side Side, policy TieBreakPolicy) FirstTouchResult {
	switch policy {
	case TieBreakStopLossFirst:
		return TouchSL
	case TieBreakChart:
		// Synthetic path: open, nearer extremum, farther extremum, close.
		distHigh := bar.High.Sub(bar.Open).Abs()
		distLow := bar.Open.Sub(bar.Low).Abs()
		if side == SideSell {
			if distHigh.LessThan(distLow) {
				return TouchSL
			}
			return TouchTP
		}
		if distLow.LessThan(distHigh) {
			return TouchSL
		}
		return TouchTP
	default:
		return TouchTP
	}
}
