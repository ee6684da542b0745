package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timeframe is a bar cadence such as "1m" or "4h".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Duration parses the cadence. A bare number means minutes.
func (tf Timeframe) Duration() (time.Duration, error) {
	s := strings.TrimSpace(strings.ToLower(string(tf)))
	if s == "" {
		return 0, fmt.Errorf("empty timeframe")
	}
	unit := time.Minute
	switch s[len(s)-1] {
	case 's':
		unit, s = time.Second, s[:len(s)-1]
	case 'm':
		s = s[:len(s)-1]
	case 'h':
		unit, s = time.Hour, s[:len(s)-1]
	case 'd':
		unit, s = 24*time.Hour, s[:len(s)-1]
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unsupported timeframe %q", string(tf))
	}
	return time.Duration(n) * unit, nil
}

// Resample aggregates bars into epoch-aligned buckets of the target
// timeframe: first open, max high, min low, last close. Only buckets whose
// right edge is covered by the input are emitted, so a trailing partial
// bucket is dropped. Indicators are not carried over.
func Resample(bars Series, target Timeframe) (Series, error) {
	step, err := target.Duration()
	if err != nil {
		return nil, err
	}
	if err := bars.Validate(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return Series{}, nil
	}
	base := step
	if len(bars) > 1 {
		base = bars[1].Time.Sub(bars[0].Time)
	}

	var (
		out    Series
		cur    Bar
		bucket time.Time
		open   bool
	)
	for _, b := range bars {
		if b.Time.IsZero() {
			return nil, fmt.Errorf("resample needs bar times")
		}
		start := b.Time.Truncate(step)
		if open && !start.Equal(bucket) {
			out = append(out, cur)
			open = false
		}
		if !open {
			cur = Bar{Time: start, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close}
			bucket, open = start, true
			continue
		}
		if b.High.GreaterThan(cur.High) {
			cur.High = b.High
		}
		if b.Low.LessThan(cur.Low) {
			cur.Low = b.Low
		}
		cur.Close = b.Close
	}

	last := bars[len(bars)-1].Time
	if open && !last.Add(base).Before(bucket.Add(step)) {
		out = append(out, cur)
	}
	return out, nil
}
