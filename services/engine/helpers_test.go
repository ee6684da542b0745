package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)

func num(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// mkBar builds the i-th bar of a one-minute series; an empty indicator
// string leaves the indicator undefined.
func mkBar(i int, open, high, low, close, indicator string) Bar {
	b := Bar{
		Time:  t0.Add(time.Duration(i) * time.Minute),
		Open:  num(open),
		High:  num(high),
		Low:   num(low),
		Close: num(close),
	}
	if indicator != "" {
		b.Indicator = decimal.NewNullDecimal(num(indicator))
	}
	return b
}

// flat is a bar whose four prices are equal.
func flat(i int, price, indicator string) Bar {
	return mkBar(i, price, price, price, price, indicator)
}

func testConfig() StrategyConfig {
	return StrategyConfig{
		InitialLot:           num("1"),
		SLDistance:           num("10"),
		TPDistance:           num("5"),
		TrailingStopDistance: decimal.Zero,
		LotMultiplier:        num("2"),
		MaxLossStreak:        3,
		BuyThreshold:         num("30"),
		SellThreshold:        num("70"),
	}
}

func num20() decimal.NullDecimal { return decimal.NewNullDecimal(num("20")) }
