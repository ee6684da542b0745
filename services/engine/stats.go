package engine

import "github.com/shopspring/decimal"

// Stats summarises a trade log.
type Stats struct {
	Wins                 int             `json:"wins"`
	Losses               int             `json:"losses"`
	Flats                int             `json:"flats"`
	WinRate              decimal.Decimal `json:"win_rate"`
	GrossProfit          decimal.Decimal `json:"gross_profit"`
	GrossLoss            decimal.Decimal `json:"gross_loss"`
	ProfitFactor         decimal.Decimal `json:"profit_factor"`
	MaxDrawdown          decimal.Decimal `json:"max_drawdown"`
	MaxConsecutiveLosses int             `json:"max_consecutive_losses"`
	MaxLotSize           decimal.Decimal `json:"max_lot_size"`
	AvgBarsHeld          decimal.Decimal `json:"avg_bars_held"`
}

// ComputeStats classifies trades the same way the sizer does. WinRate is
// wins over all trades; ProfitFactor is zero when nothing was lost.
// MaxDrawdown is the largest peak-to-trough fall of cumulative profit.
func ComputeStats(trades []Trade) Stats {
	st := Stats{
		WinRate:      decimal.Zero,
		GrossProfit:  decimal.Zero,
		GrossLoss:    decimal.Zero,
		ProfitFactor: decimal.Zero,
		MaxDrawdown:  decimal.Zero,
		MaxLotSize:   decimal.Zero,
		AvgBarsHeld:  decimal.Zero,
	}
	if len(trades) == 0 {
		return st
	}

	equity, peak := decimal.Zero, decimal.Zero
	streak, held := 0, 0
	for _, t := range trades {
		switch OutcomeOf(t.ExitReason, t.Points) {
		case OutcomeWin:
			st.Wins++
			streak = 0
		case OutcomeLoss:
			st.Losses++
			streak++
			if streak > st.MaxConsecutiveLosses {
				st.MaxConsecutiveLosses = streak
			}
		default:
			st.Flats++
		}

		if t.RealizedProfit.IsPositive() {
			st.GrossProfit = st.GrossProfit.Add(t.RealizedProfit)
		} else {
			st.GrossLoss = st.GrossLoss.Add(t.RealizedProfit.Abs())
		}

		equity = equity.Add(t.RealizedProfit)
		peak = decimal.Max(peak, equity)
		st.MaxDrawdown = decimal.Max(st.MaxDrawdown, peak.Sub(equity))
		st.MaxLotSize = decimal.Max(st.MaxLotSize, t.LotSize)
		held += t.BarsHeld()
	}

	n := decimal.NewFromInt(int64(len(trades)))
	st.WinRate = decimal.NewFromInt(int64(st.Wins)).Div(n)
	st.AvgBarsHeld = decimal.NewFromInt(int64(held)).Div(n)
	if st.GrossLoss.IsPositive() {
		st.ProfitFactor = st.GrossProfit.Div(st.GrossLoss)
	}
	return st
}
