package engine

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one fixed-interval price observation plus its precomputed indicator
// value. An invalid Indicator means the value is still warming up.
type Bar struct {
	Time      time.Time           `json:"time"`
	Open      decimal.Decimal     `json:"open"`
	High      decimal.Decimal     `json:"high"`
	Low       decimal.Decimal     `json:"low"`
	Close     decimal.Decimal     `json:"close"`
	Indicator decimal.NullDecimal `json:"indicator"`
}

// HasIndicator reports whether the bar carries a defined indicator value.
func (b Bar) HasIndicator() bool { return b.Indicator.Valid }

var (
	ErrUnorderedBars = errors.New("bars are not in strictly increasing time order")
	ErrInvalidBar    = errors.New("bar has inconsistent prices")
)

// Series is a read-only, index-addressed bar sequence.
type Series []Bar

// At returns the bar at i, or false when i is outside the series.
func (s Series) At(i int) (Bar, bool) {
	if i < 0 || i >= len(s) {
		return Bar{}, false
	}
	return s[i], true
}

// Last returns the final bar of the series.
func (s Series) Last() (Bar, bool) { return s.At(len(s) - 1) }

// Validate checks ordering and OHLC consistency. Bars without a timestamp
// are only checked for price consistency.
func (s Series) Validate() error {
	for i, b := range s {
		if b.High.LessThan(b.Low) {
			return fmt.Errorf("bar %d: high %s below low %s: %w", i, b.High, b.Low, ErrInvalidBar)
		}
		if i == 0 || b.Time.IsZero() || s[i-1].Time.IsZero() {
			continue
		}
		if !b.Time.After(s[i-1].Time) {
			return fmt.Errorf("bar %d at %s does not follow %s: %w",
				i, b.Time.Format(time.RFC3339), s[i-1].Time.Format(time.RFC3339), ErrUnorderedBars)
		}
	}
	return nil
}

// DetectGaps returns the indices of bars that are followed by a gap larger
// than the expected step.
func (s Series) DetectGaps(step time.Duration) (gaps []int) {
	if step <= 0 {
		return nil
	}
	for i := 1; i < len(s); i++ {
		if s[i].Time.Sub(s[i-1].Time) > step {
			gaps = append(gaps, i-1)
		}
	}
	return gaps
}

// Checksum is a SHA-256 over the series in a canonical text form.
func (s Series) Checksum() string {
	h := sha256.New()
	for _, b := range s {
		ind := "na"
		if b.Indicator.Valid {
			ind = b.Indicator.Decimal.String()
		}
		fmt.Fprintf(h, "%d|%s|%s|%s|%s|%s\n",
			b.Time.UnixMilli(), b.Open, b.High, b.Low, b.Close, ind)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
