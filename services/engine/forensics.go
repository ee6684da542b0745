package engine

// One-trade replay with the anchor and levels seen on every scanned bar

import "fmt"

type TradeReplay struct {
	EntryIndex int        `json:"entry_index"`
	Direction  Side       `json:"direction"`
	Steps      []ScanStep `json:"steps"`
	Outcome    ExitReason `json:"outcome"`
	TrailMoves int        `json:"trail_moves"`
}

// ReplayTrade re-scans the exit of a trade from the log.
func (r *Runner) ReplayTrade(bars Series, t Trade) (*TradeReplay, error) {
	ev, steps, err := r.exits.Trace(bars, t.EntryIndex, t.EntryPrice, t.Direction)
	if err != nil {
		return nil, fmt.Errorf("failed to replay trade at bar %d: %w", t.EntryIndex, err)
	}
	if ev.Index != t.ExitIndex || ev.Reason != t.ExitReason {
		return nil, fmt.Errorf("replay of trade at bar %d diverged: got %s at %d, logged %s at %d",
			t.EntryIndex, ev.Reason, ev.Index, t.ExitReason, t.ExitIndex)
	}
	return &TradeReplay{
		EntryIndex: t.EntryIndex,
		Direction:  t.Direction,
		Steps:      steps,
		Outcome:    ev.Reason,
		TrailMoves: ev.TrailMoves,
	}, nil
}

// ExplainExit is a one-line account of why the replayed trade closed.
func ExplainExit(replay *TradeReplay) string {
	if len(replay.Steps) == 0 {
		return "no bars scanned"
	}
	last := replay.Steps[len(replay.Steps)-1]
	switch replay.Outcome {
	case ExitTakeProfit:
		return fmt.Sprintf("take-profit %s touched on bar %d after %d trail moves", last.TakeProfit, last.Index, replay.TrailMoves)
	case ExitStopLoss:
		return fmt.Sprintf("stop-loss %s touched on bar %d after %d trail moves", last.StopLoss, last.Index, replay.TrailMoves)
	}
	return fmt.Sprintf("no level touched; closed at %s on final bar %d", last.Close, last.Index)
}
