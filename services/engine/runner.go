package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Trade is one closed position.
type Trade struct {
	EntryIndex      int             `json:"entry_index"`
	EntryTime       time.Time       `json:"entry_time"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	Direction       Side            `json:"direction"`
	LotSize         decimal.Decimal `json:"lot_size"`
	StopLossPrice   decimal.Decimal `json:"stop_loss_price"`
	TakeProfitPrice decimal.Decimal `json:"take_profit_price"`
	ExitIndex       int             `json:"exit_index"`
	ExitTime        time.Time       `json:"exit_time"`
	ExitPrice       decimal.Decimal `json:"exit_price"`
	ExitReason      ExitReason      `json:"exit_reason"`
	// Points is the price move captured in the trade's favour.
	Points         decimal.Decimal `json:"points"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
}

func (t Trade) BarsHeld() int { return t.ExitIndex - t.EntryIndex }

// Result is the output of one backtest run.
type Result struct {
	Trades      []Trade         `json:"trades"`
	TotalProfit decimal.Decimal `json:"total_profit"`
	TotalTrades int             `json:"total_trades"`
	HaltedEarly bool            `json:"halted_early"`
	FinalState  StrategyState   `json:"final_state"`
	Stats       Stats           `json:"stats"`
	Events      *EventLog       `json:"-"`
}

// Runner drives the single forward pass over a bar series.
type Runner struct {
	cfg       StrategyConfig
	evaluator SignalEvaluator
	sizer     PositionSizer
	exits     ExitSimulator
	logger    *zap.Logger
}

type Option func(*Runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner validates cfg and builds the components of a run.
func NewRunner(cfg StrategyConfig, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	r := &Runner{
		cfg:       cfg,
		evaluator: NewSignalEvaluator(cfg),
		sizer:     NewPositionSizer(cfg),
		exits:     NewExitSimulator(cfg),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config returns the validated config with defaults applied.
func (r *Runner) Config() StrategyConfig { return r.cfg }

// Run evaluates every bar except the last, which has no bar to exit on.
// Entries are evaluated independently of any unresolved earlier trade
// unless the config asks to skip overlaps. Reaching the loss streak cap
// ends the run with HaltedEarly set.
func (r *Runner) Run(bars Series) (Result, error) {
	if err := bars.Validate(); err != nil {
		return Result{}, fmt.Errorf("failed to validate bars: %w", err)
	}

	state := r.sizer.Initial()
	log := &EventLog{}
	res := Result{Trades: []Trade{}, TotalProfit: decimal.Zero, Events: log}

	for i := 0; i+1 < len(bars); {
		bar := bars[i]
		side := r.evaluator.Evaluate(bar)
		if side == SideNone {
			i++
			continue
		}

		ev, err := r.exits.Resolve(bars, i, bar.Close, side)
		if err != nil {
			return Result{}, fmt.Errorf("failed to resolve trade opened at bar %d: %w", i, err)
		}
		trade := newTrade(bars, i, side, state.CurrentLot, ev)
		res.Trades = append(res.Trades, trade)
		res.TotalProfit = res.TotalProfit.Add(trade.RealizedProfit)

		log.Append(Event{Ts: bar.Time.UnixMilli(), Bar: i, Type: EventEntry, Details: map[string]string{
			"side": side.String(), "price": bar.Close.String(), "lot": state.CurrentLot.String(),
		}})
		log.Append(Event{Ts: trade.ExitTime.UnixMilli(), Bar: ev.Index, Type: exitEventType(ev.Reason), Details: map[string]string{
			"price": ev.Price.String(), "profit": trade.RealizedProfit.String(), "trail_moves": strconv.Itoa(ev.TrailMoves),
		}})

		outcome := OutcomeOf(ev.Reason, trade.Points)
		next, halt := r.sizer.Apply(state, outcome)
		log.Append(Event{Ts: trade.ExitTime.UnixMilli(), Bar: ev.Index, Type: EventSizingUpdate, Details: map[string]string{
			"outcome": outcome.String(), "lot": next.CurrentLot.String(), "loss_streak": strconv.Itoa(next.LossStreak),
		}})

		r.logger.Debug("trade closed",
			zap.Int("entry_index", i),
			zap.Int("exit_index", ev.Index),
			zap.Stringer("side", side),
			zap.String("reason", string(ev.Reason)),
			zap.String("lot", trade.LotSize.String()),
			zap.String("profit", trade.RealizedProfit.String()),
			zap.Int("loss_streak", next.LossStreak),
		)

		state = next
		if halt {
			res.HaltedEarly = true
			log.Append(Event{Ts: trade.ExitTime.UnixMilli(), Bar: ev.Index, Type: EventCircuitBreaker, Details: map[string]string{
				"max_loss_streak": strconv.Itoa(r.cfg.MaxLossStreak),
			}})
			r.logger.Info("loss streak cap reached, halting run",
				zap.Int("max_loss_streak", r.cfg.MaxLossStreak),
				zap.Int("trades", len(res.Trades)),
			)
			break
		}

		if r.cfg.EntryPolicy == EntrySkipOverlap {
			i = ev.Index + 1
		} else {
			i++
		}
	}

	res.TotalTrades = len(res.Trades)
	res.FinalState = state
	res.Stats = ComputeStats(res.Trades)
	return res, nil
}

// Run validates cfg and runs it over bars without logging.
func Run(bars []Bar, cfg StrategyConfig) (Result, error) {
	r, err := NewRunner(cfg)
	if err != nil {
		return Result{}, err
	}
	return r.Run(bars)
}

func newTrade(bars Series, entry int, side Side, lot decimal.Decimal, ev ExitEvent) Trade {
	in, out := bars[entry], bars[ev.Index]
	points := favourable(side, in.Close, ev.Price)
	return Trade{
		EntryIndex:      entry,
		EntryTime:       in.Time,
		EntryPrice:      in.Close,
		Direction:       side,
		LotSize:         lot,
		StopLossPrice:   ev.StopLoss,
		TakeProfitPrice: ev.TakeProfit,
		ExitIndex:       ev.Index,
		ExitTime:        out.Time,
		ExitPrice:       ev.Price,
		ExitReason:      ev.Reason,
		Points:          points,
		RealizedProfit:  points.Mul(lot),
	}
}
