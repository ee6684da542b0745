package arrowpipeline

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsi-martingale-backtest/services/engine"
)

func sampleBars(n int) []engine.Bar {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]engine.Bar, n)
	for i := range bars {
		c := decimal.RequireFromString("1.0850").Add(decimal.New(int64(i), -4))
		bars[i] = engine.Bar{
			Time:  t0.Add(time.Duration(i) * time.Minute),
			Open:  c,
			High:  c.Add(decimal.RequireFromString("0.0003")),
			Low:   c.Sub(decimal.RequireFromString("0.0002")),
			Close: c,
		}
		if i >= 2 {
			bars[i].Indicator = decimal.NewNullDecimal(decimal.RequireFromString("41.25"))
		}
	}
	return bars
}

func TestBarsRoundTrip(t *testing.T) {
	p := NewPipeline(&Config{BatchSize: 2}, nil)
	bars := sampleBars(5)

	data, err := p.EncodeBars(bars)
	require.NoError(t, err)

	got, err := p.ReadBars(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, got, len(bars))
	for i := range bars {
		assert.True(t, bars[i].Time.Equal(got[i].Time), "bar %d time", i)
		assert.True(t, bars[i].High.Equal(got[i].High), "bar %d high %s != %s", i, bars[i].High, got[i].High)
		assert.True(t, bars[i].Close.Equal(got[i].Close), "bar %d close", i)
		assert.Equal(t, bars[i].Indicator.Valid, got[i].Indicator.Valid, "bar %d indicator", i)
	}
	assert.True(t, got[4].Indicator.Decimal.Equal(decimal.RequireFromString("41.25")))
}

func TestEmptyStream(t *testing.T) {
	p := NewPipeline(nil, nil)
	data, err := p.EncodeBars(nil)
	require.NoError(t, err)

	got, err := p.ReadBars(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTradesStream(t *testing.T) {
	p := NewPipeline(&Config{BatchSize: 1}, nil)
	trades := []engine.Trade{
		{EntryIndex: 0, Direction: engine.SideBuy, ExitReason: engine.ExitTakeProfit, LotSize: decimal.RequireFromString("0.1")},
		{EntryIndex: 3, Direction: engine.SideSell, ExitReason: engine.ExitStopLoss, LotSize: decimal.RequireFromString("0.17")},
	}
	var buf bytes.Buffer
	require.NoError(t, p.WriteTrades(&buf, trades))

	n, err := p.ReadTradeCount(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// a trade stream is not a bar stream
	_, err = p.ReadBars(bytes.NewReader(buf.Bytes()))
	assert.Error(t, err)
}

func TestReadGarbage(t *testing.T) {
	_, err := NewPipeline(nil, nil).ReadBars(bytes.NewReader([]byte("not arrow")))
	assert.Error(t, err)
}
