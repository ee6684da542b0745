package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func closed(reason ExitReason, points, lot string, held int) Trade {
	p := num(points)
	return Trade{
		ExitIndex:      held,
		ExitReason:     reason,
		LotSize:        num(lot),
		Points:         p,
		RealizedProfit: p.Mul(num(lot)),
	}
}

func TestComputeStats(t *testing.T) {
	trades := []Trade{
		closed(ExitTakeProfit, "30", "1", 4),
		closed(ExitStopLoss, "-10", "1", 2),
		closed(ExitStopLoss, "-10", "2", 1),
		closed(ExitTakeProfit, "30", "4", 5),
		closed(ExitEndOfData, "0", "1", 8),
	}
	st := ComputeStats(trades)

	assert.Equal(t, 2, st.Wins)
	assert.Equal(t, 2, st.Losses)
	assert.Equal(t, 1, st.Flats)
	assert.True(t, st.WinRate.Equal(num("0.4")))
	assert.True(t, st.GrossProfit.Equal(num("150")))
	assert.True(t, st.GrossLoss.Equal(num("30")))
	assert.True(t, st.ProfitFactor.Equal(num("5")))
	assert.True(t, st.MaxDrawdown.Equal(num("30")))
	assert.Equal(t, 2, st.MaxConsecutiveLosses)
	assert.True(t, st.MaxLotSize.Equal(num("4")))
	assert.True(t, st.AvgBarsHeld.Equal(num("4")))
}

func TestComputeStatsEmpty(t *testing.T) {
	st := ComputeStats(nil)
	assert.Zero(t, st.Wins)
	assert.True(t, st.WinRate.IsZero())
	assert.True(t, st.ProfitFactor.IsZero())
}
