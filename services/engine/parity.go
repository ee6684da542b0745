package engine

// Golden first-touch cases and run fingerprints

import (
	"crypto/sha256"
	"fmt"

	"github.com/shopspring/decimal"
)

type ParityTestCase struct {
	Name     string
	Bar      Bar
	Side     Side
	Levels   Levels
	Policy   TieBreakPolicy
	Expected FirstTouchResult
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ohlc(o, h, l, c string) Bar { return Bar{Open: dec(o), High: dec(h), Low: dec(l), Close: dec(c)} }

var GoldenCases = []ParityTestCase{
	{
		Name:     "TP_first_long",
		Bar:      ohlc("100", "110", "90", "105"),
		Side:     SideBuy,
		Levels:   Levels{TakeProfit: dec("108"), StopLoss: dec("95")},
		Policy:   TieBreakTakeProfitFirst,
		Expected: TouchTP,
	},
	{
		Name:     "TP_first_short",
		Bar:      ohlc("100", "110", "90", "95"),
		Side:     SideSell,
		Levels:   Levels{TakeProfit: dec("92"), StopLoss: dec("105")},
		Policy:   TieBreakTakeProfitFirst,
		Expected: TouchTP,
	},
	{
		Name:     "SL_first_long",
		Bar:      ohlc("100", "110", "90", "105"),
		Side:     SideBuy,
		Levels:   Levels{TakeProfit: dec("108"), StopLoss: dec("95")},
		Policy:   TieBreakStopLossFirst,
		Expected: TouchSL,
	},
	{
		Name:     "chart_low_nearer_long",
		Bar:      ohlc("100", "110", "97", "105"),
		Side:     SideBuy,
		Levels:   Levels{TakeProfit: dec("108"), StopLoss: dec("98")},
		Policy:   TieBreakChart,
		Expected: TouchSL,
	},
	{
		Name:     "chart_low_nearer_short",
		Bar:      ohlc("100", "110", "97", "105"),
		Side:     SideSell,
		Levels:   Levels{TakeProfit: dec("98"), StopLoss: dec("108")},
		Policy:   TieBreakChart,
		Expected: TouchTP,
	},
	{
		Name:     "no_touch",
		Bar:      ohlc("100", "101", "99", "100"),
		Side:     SideBuy,
		Levels:   Levels{TakeProfit: dec("108"), StopLoss: dec("95")},
		Policy:   TieBreakTakeProfitFirst,
		Expected: TouchNone,
	},
}

// RunParitySuite returns the names of golden cases that no longer hold.
func RunParitySuite() []string {
	var failures []string
	for _, tc := range GoldenCases {
		if ResolveFirstTouch(tc.Bar, tc.Side, tc.Levels, tc.Policy, PriceBasisRange) != tc.Expected {
			failures = append(failures, tc.Name)
		}
	}
	return failures
}

// Fingerprint hashes the trade log and totals of a result. Equal inputs
// must always give equal fingerprints.
func Fingerprint(res Result) string {
	h := sha256.New()
	for _, t := range res.Trades {
		fmt.Fprintf(h, "%d|%d|%s|%s|%s|%s|%s|%d|%d|%s|%s|%s\n",
			t.EntryIndex, t.EntryTime.UnixMilli(), t.EntryPrice, t.Direction, t.LotSize,
			t.StopLossPrice, t.TakeProfitPrice, t.ExitIndex, t.ExitTime.UnixMilli(),
			t.ExitPrice, t.ExitReason, t.RealizedProfit)
	}
	fmt.Fprintf(h, "total=%s|n=%d|halted=%t\n", res.TotalProfit, res.TotalTrades, res.HaltedEarly)
	return fmt.Sprintf("%x", h.Sum(nil))
}
