// Package indicators computes the momentum oscillator the engine trades on.
package indicators

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"rsi-martingale-backtest/services/engine"
)

// Smoothing selects how average gains and losses are carried forward.
type Smoothing string

const (
	// SmoothingWilder seeds with a simple mean of the first period changes.
	SmoothingWilder Smoothing = "wilder"
	// SmoothingEWM is an exponential mean with alpha 1/period seeded from
	// the first bar, the convention of common charting libraries. It is the
	// default; the first value lands on bar period-1.
	SmoothingEWM Smoothing = "ewm"
)

// DefaultPeriod is the classic 14-bar RSI window.
const DefaultPeriod = 14

// Precision is the number of decimal places kept on each RSI value.
const Precision = 8

// RSI returns one value per close; NaN marks the warm-up bars.
func RSI(closes []float64, period int, smoothing Smoothing) []float64 {
	n := len(closes)
	values := make([]float64, n)
	for i := range values {
		values[i] = math.NaN()
	}
	if period <= 0 {
		return values
	}
	if smoothing != SmoothingWilder {
		return ewmRSI(closes, period, values)
	}
	if n <= period {
		return values
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change >= 0 {
			gainSum += change
		} else {
			lossSum += -change
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	values[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		gain, loss := split(closes[i] - closes[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		values[i] = rsiFrom(avgGain, avgLoss)
	}
	return values
}

func ewmRSI(closes []float64, period int, values []float64) []float64 {
	alpha := 1.0 / float64(period)
	var avgGain, avgLoss float64
	for i := range closes {
		var gain, loss float64
		if i > 0 {
			gain, loss = split(closes[i] - closes[i-1])
		}
		if i == 0 {
			avgGain, avgLoss = gain, loss
		} else {
			avgGain = (1-alpha)*avgGain + alpha*gain
			avgLoss = (1-alpha)*avgLoss + alpha*loss
		}
		if i >= period-1 {
			values[i] = rsiFrom(avgGain, avgLoss)
		}
	}
	return values
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// Attach computes RSI over the closes of bars and stores it on each bar.
// Warm-up bars keep an undefined indicator.
func Attach(bars []engine.Bar, period int, smoothing Smoothing) error {
	if period <= 0 {
		return fmt.Errorf("rsi period must be positive, got %d", period)
	}
	switch smoothing {
	case "", SmoothingWilder, SmoothingEWM:
	default:
		return fmt.Errorf("unknown rsi smoothing %q", smoothing)
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close.InexactFloat64()
	}
	for i, v := range RSI(closes, period, smoothing) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			bars[i].Indicator = decimal.NullDecimal{}
			continue
		}
		bars[i].Indicator = decimal.NewNullDecimal(decimal.NewFromFloat(v).Round(Precision))
	}
	return nil
}
