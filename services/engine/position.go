package engine

import "github.com/shopspring/decimal"

// StrategyState is the martingale sizing state of one run.
type StrategyState struct {
	CurrentLot decimal.Decimal `json:"current_lot"`
	LossStreak int             `json:"loss_streak"`
}

// Outcome is how a closed trade counts for sizing.
type Outcome int

const (
	OutcomeFlat Outcome = iota
	OutcomeWin
	OutcomeLoss
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWin:
		return "win"
	case OutcomeLoss:
		return "loss"
	default:
		return "flat"
	}
}

// OutcomeOf classifies an exit. Take-profit is always a win and stop-loss
// always a loss, even when a trailed stop closes in profit; end-of-data
// exits count by the sign of the points captured.
func OutcomeOf(reason ExitReason, points decimal.Decimal) Outcome {
	switch reason {
	case ExitTakeProfit:
		return OutcomeWin
	case ExitStopLoss:
		return OutcomeLoss
	}
	switch points.Sign() {
	case 1:
		return OutcomeWin
	case -1:
		return OutcomeLoss
	default:
		return OutcomeFlat
	}
}

// PositionSizer is the martingale state machine. It holds only the
// immutable parameters; state is passed in and returned.
type PositionSizer struct {
	InitialLot    decimal.Decimal
	Multiplier    decimal.Decimal
	MaxLossStreak int
}

func NewPositionSizer(cfg StrategyConfig) PositionSizer {
	return PositionSizer{
		InitialLot:    cfg.InitialLot,
		Multiplier:    cfg.LotMultiplier,
		MaxLossStreak: cfg.MaxLossStreak,
	}
}

// Initial returns the state a run starts from.
func (p PositionSizer) Initial() StrategyState {
	return StrategyState{CurrentLot: p.InitialLot}
}

// Apply transitions the state on a closed trade. halt is true when the
// loss streak reached the cap; the returned state is then already reset.
func (p PositionSizer) Apply(state StrategyState, outcome Outcome) (next StrategyState, halt bool) {
	switch outcome {
	case OutcomeWin:
		return p.Initial(), false
	case OutcomeLoss:
		streak := state.LossStreak + 1
		if streak >= p.MaxLossStreak {
			return p.Initial(), true
		}
		return StrategyState{
			CurrentLot: state.CurrentLot.Mul(p.Multiplier),
			LossStreak: streak,
		}, false
	default:
		return state, false
	}
}
