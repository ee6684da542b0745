package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitSimulatorTakeProfitLong(t *testing.T) {
	bars := Series{
		flat(0, "100", "20"),
		mkBar(1, "100", "103", "99", "102", ""),
		mkBar(2, "102", "106", "101", "105.5", ""),
	}
	ev, err := NewExitSimulator(testConfig()).Resolve(bars, 0, num("100"), SideBuy)
	require.NoError(t, err)

	assert.Equal(t, 2, ev.Index)
	assert.Equal(t, ExitTakeProfit, ev.Reason)
	assert.True(t, ev.Price.Equal(num("105")))
	assert.True(t, ev.StopLoss.Equal(num("90")))
}

func TestExitSimulatorTakeProfitShort(t *testing.T) {
	bars := Series{
		flat(0, "100", "80"),
		mkBar(1, "100", "100", "94", "96", ""),
	}
	ev, err := NewExitSimulator(testConfig()).Resolve(bars, 0, num("100"), SideSell)
	require.NoError(t, err)

	assert.Equal(t, ExitTakeProfit, ev.Reason)
	assert.True(t, ev.Price.Equal(num("95")))
	assert.True(t, ev.StopLoss.Equal(num("110")))
}

func TestExitSimulatorStopLossShort(t *testing.T) {
	bars := Series{
		flat(0, "100", "80"),
		mkBar(1, "100", "111", "99", "109", ""),
	}
	ev, err := NewExitSimulator(testConfig()).Resolve(bars, 0, num("100"), SideSell)
	require.NoError(t, err)

	assert.Equal(t, ExitStopLoss, ev.Reason)
	assert.True(t, ev.Price.Equal(num("110")))
}

func TestExitSimulatorTrailingAnchor(t *testing.T) {
	cfg := testConfig()
	cfg.TPDistance = num("10")
	cfg.SLDistance = num("5")
	cfg.TrailingStopDistance = num("3")

	bars := Series{
		flat(0, "100", "20"),
		mkBar(1, "100", "108", "100", "108", ""), // anchor -> 108
		mkBar(2, "108", "108", "102", "102", ""), // stop now at 103
	}
	ev, steps, err := NewExitSimulator(cfg).Trace(bars, 0, num("100"), SideBuy)
	require.NoError(t, err)

	assert.Equal(t, ExitStopLoss, ev.Reason)
	assert.Equal(t, 2, ev.Index)
	assert.True(t, ev.Price.Equal(num("103")))
	assert.True(t, ev.Anchor.Equal(num("108")))
	assert.Equal(t, 1, ev.TrailMoves)

	require.Len(t, steps, 2)
	assert.True(t, steps[0].Trailed)
	assert.Equal(t, "stop_loss", steps[1].Touch)
}

func TestExitSimulatorTrailingAnchorShort(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStopDistance = num("2")

	bars := Series{
		flat(0, "100", "80"),
		flat(1, "97", ""), // anchor -> 97
		flat(2, "99", ""),
		flat(3, "101", ""),
	}
	ev, steps, err := NewExitSimulator(cfg).Trace(bars, 0, num("100"), SideSell)
	require.NoError(t, err)

	assert.Equal(t, ExitEndOfData, ev.Reason)
	assert.Equal(t, 3, ev.Index)
	assert.True(t, ev.Price.Equal(num("101")))
	assert.True(t, ev.Anchor.Equal(num("97")))
	assert.True(t, ev.StopLoss.Equal(num("107")))
	assert.True(t, ev.TakeProfit.Equal(num("92")))
	assert.Equal(t, 1, ev.TrailMoves)

	require.Len(t, steps, 3)
	assert.True(t, steps[0].Trailed)
	assert.False(t, steps[1].Trailed)
	assert.False(t, steps[2].Trailed)
}

func TestExitSimulatorTrailingNeedsFullDistance(t *testing.T) {
	cfg := testConfig()
	cfg.TrailingStopDistance = num("3")

	bars := Series{
		flat(0, "100", "20"),
		flat(1, "102.9", ""),
		flat(2, "101", ""),
	}
	ev, err := NewExitSimulator(cfg).Resolve(bars, 0, num("100"), SideBuy)
	require.NoError(t, err)
	assert.Equal(t, 0, ev.TrailMoves)
	assert.True(t, ev.Anchor.Equal(num("100")))
}

func TestExitSimulatorEndOfData(t *testing.T) {
	bars := Series{
		flat(0, "100", "20"),
		flat(1, "101", ""),
		flat(2, "98", ""),
	}
	ev, err := NewExitSimulator(testConfig()).Resolve(bars, 0, num("100"), SideBuy)
	require.NoError(t, err)

	assert.Equal(t, ExitEndOfData, ev.Reason)
	assert.Equal(t, 2, ev.Index)
	assert.True(t, ev.Price.Equal(num("98")))
}

func TestExitSimulatorNoForwardBars(t *testing.T) {
	bars := Series{flat(0, "100", "20"), flat(1, "100", "20")}
	sim := NewExitSimulator(testConfig())

	_, err := sim.Resolve(bars, 1, num("100"), SideBuy)
	assert.ErrorIs(t, err, ErrNoForwardBars)

	_, err = sim.Resolve(bars, -1, num("100"), SideBuy)
	assert.ErrorIs(t, err, ErrNoForwardBars)

	_, err = sim.Resolve(bars, 0, num("100"), SideNone)
	assert.Error(t, err)
}

func TestExitSimulatorTieBreak(t *testing.T) {
	bars := Series{
		flat(0, "100", "20"),
		mkBar(1, "100", "106", "89", "100", ""), // touches 105 and 90
	}
	tests := []struct {
		policy TieBreakPolicy
		want   ExitReason
	}{
		{"", ExitTakeProfit},
		{TieBreakTakeProfitFirst, ExitTakeProfit},
		{TieBreakStopLossFirst, ExitStopLoss},
		{TieBreakChart, ExitTakeProfit}, // high is nearer the open
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := testConfig()
			cfg.TieBreak = tt.policy
			ev, err := NewExitSimulator(cfg).Resolve(bars, 0, num("100"), SideBuy)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev.Reason)
		})
	}
}

func TestExitSimulatorCloseBasis(t *testing.T) {
	cfg := testConfig()
	cfg.PriceBasis = PriceBasisClose

	bars := Series{
		flat(0, "100", "20"),
		mkBar(1, "100", "107", "99", "103", ""), // wick through TP, close below
		mkBar(2, "103", "106", "102", "105", ""),
	}
	ev, err := NewExitSimulator(cfg).Resolve(bars, 0, num("100"), SideBuy)
	require.NoError(t, err)
	assert.Equal(t, 2, ev.Index)
	assert.Equal(t, ExitTakeProfit, ev.Reason)
	assert.True(t, ev.Price.Equal(num("105")))

	ev, err = NewExitSimulator(testConfig()).Resolve(bars, 0, num("100"), SideBuy)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Index)
}

func TestParitySuite(t *testing.T) {
	assert.Empty(t, RunParitySuite())
}
