package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "rsi-martingale-backtest/proto"
	"rsi-martingale-backtest/services/cache"
	"rsi-martingale-backtest/services/clickhouse"
	"rsi-martingale-backtest/services/config"
	"rsi-martingale-backtest/services/engine"
	"rsi-martingale-backtest/services/indicators"
	"rsi-martingale-backtest/services/monitoring"
	"rsi-martingale-backtest/strategies"
)

// barStore is the ClickHouse side of the service.
type barStore interface {
	LoadBars(ctx context.Context, q clickhouse.BarQuery) ([]engine.Bar, error)
	SaveTrades(ctx context.Context, runID, symbol string, trades []engine.Trade) error
}

type klineFetcher interface {
	Fetch(ctx context.Context, symbol, interval string, start, end time.Time, maxBars int) (engine.Series, error)
}

type resultCache interface {
	Get(ctx context.Context, key string) (*engine.Result, bool, error)
	Set(ctx context.Context, key string, res *engine.Result) error
}

// BacktestService implements the gRPC and HTTP backtesting API
type BacktestService struct {
	pb.UnimplementedBacktestServiceServer
	store      barStore
	klines     klineFetcher
	cache      resultCache
	monitoring *monitoring.Metrics
	logger     *zap.Logger
	config     *config.Config
	workers    chan struct{}
	jobs       *jobStore
}

// NewBacktestService wires the service. store, klines and cache may be nil
// when the backing system is not configured.
func NewBacktestService(cfg *config.Config, store barStore, klines klineFetcher, rc resultCache, metrics *monitoring.Metrics, logger *zap.Logger) *BacktestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	numWorkers := runtime.NumCPU()
	if cfg.Server.MaxWorkers > 0 {
		numWorkers = cfg.Server.MaxWorkers
	}
	return &BacktestService{
		store:      store,
		klines:     klines,
		cache:      rc,
		monitoring: metrics,
		logger:     logger,
		config:     cfg,
		workers:    make(chan struct{}, numWorkers),
		jobs:       newJobStore(256),
	}
}

// ExecuteBacktest implements the gRPC ExecuteBacktest method
func (s *BacktestService) ExecuteBacktest(ctx context.Context, req *pb.BacktestRequest) (*pb.BacktestResponse, error) {
	startTime := time.Now()
	jobID := uuid.New().String()
	source := s.sourceOf(req)

	s.logger.Info("Starting backtest execution",
		zap.String("job_id", jobID),
		zap.String("symbol", req.Symbol),
		zap.String("source", source),
	)

	select {
	case s.workers <- struct{}{}:
		defer func() { <-s.workers }()
	case <-ctx.Done():
		return nil, status.FromContextError(ctx.Err()).Err()
	}
	s.monitoring.ActiveRuns.Inc()
	defer s.monitoring.ActiveRuns.Dec()

	resp, res, err := s.execute(ctx, jobID, source, req)
	if err != nil {
		s.monitoring.ObserveRun(source, nil, time.Since(startTime))
		s.logger.Error("Backtest execution failed",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return nil, err
	}

	executionTime := time.Since(startTime)
	s.monitoring.ObserveRun(source, res, executionTime)
	resp.ExecutionTime = executionTime.Milliseconds()
	s.jobs.put(resp)

	s.logger.Info("Backtest completed",
		zap.String("job_id", jobID),
		zap.Duration("execution_time", executionTime),
		zap.Int("trades", res.TotalTrades),
		zap.Bool("halted", res.HaltedEarly),
		zap.Bool("cached", resp.Cached),
	)
	return resp, nil
}

func (s *BacktestService) execute(ctx context.Context, jobID, source string, req *pb.BacktestRequest) (*pb.BacktestResponse, *engine.Result, error) {
	cfg, err := s.strategyConfig(req.Strategy)
	if err != nil {
		return nil, nil, status.Error(codes.InvalidArgument, err.Error())
	}

	bars, err := s.loadBars(ctx, source, req)
	if err != nil {
		return nil, nil, err
	}

	strat := strategies.NewRSIMartingaleStrategy(cfg, s.logger)
	strat.Symbol = req.Symbol
	if req.RSIPeriod > 0 {
		strat.RSIPeriod = req.RSIPeriod
	} else if s.config.Strategy.RSIPeriod > 0 {
		strat.RSIPeriod = s.config.Strategy.RSIPeriod
	}
	if s.config.Strategy.RSISmoothing != "" {
		strat.Smoothing = indicators.Smoothing(s.config.Strategy.RSISmoothing)
	}
	strat.SetBars(bars)
	if err := strat.CalculateIndicators(); err != nil {
		return nil, nil, status.Error(codes.InvalidArgument, err.Error())
	}

	manifest := engine.RunManifest{
		JobID:         jobID,
		Symbol:        req.Symbol,
		ConfigHash:    cfg.Hash(),
		DataChecksum:  strat.Bars.Checksum(),
		EngineVersion: engine.EngineVersion,
		CreatedAt:     time.Now().UnixMilli(),
	}
	key := cache.Key(manifest)

	if req.PersistTrades && s.store == nil {
		return nil, nil, status.Error(codes.FailedPrecondition, "trade persistence requires clickhouse")
	}

	res, hit := s.cached(ctx, key, req.SkipCache)
	if !hit {
		if err := strat.Run(); err != nil {
			if errors.Is(err, engine.ErrUnorderedBars) || errors.Is(err, engine.ErrInvalidBar) || errors.Is(err, engine.ErrInvalidConfig) {
				return nil, nil, status.Error(codes.InvalidArgument, err.Error())
			}
			return nil, nil, status.Errorf(codes.Internal, "backtest failed: %v", err)
		}
		res = &strat.Result
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, res); err != nil {
				s.logger.Warn("Failed to cache result", zap.String("job_id", jobID), zap.Error(err))
			}
		}
	}

	if req.PersistTrades {
		if err := s.store.SaveTrades(ctx, jobID, req.Symbol, res.Trades); err != nil {
			return nil, nil, storeError(err)
		}
	}
	resp := convertToGrpcResponse(manifest, res)
	resp.Cached = hit
	return resp, res, nil
}

func (s *BacktestService) cached(ctx context.Context, key string, skip bool) (*engine.Result, bool) {
	if s.cache == nil || skip {
		return nil, false
	}
	res, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Result cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	s.monitoring.ObserveCache(ok)
	return res, ok
}

func (s *BacktestService) sourceOf(req *pb.BacktestRequest) string {
	switch {
	case req.Source != "":
		return strings.ToLower(req.Source)
	case len(req.Bars) > 0:
		return pb.SourceBars
	case s.config.Data.Source == pb.SourceBinance:
		return pb.SourceBinance
	default:
		return pb.SourceClickHouse
	}
}

func (s *BacktestService) loadBars(ctx context.Context, source string, req *pb.BacktestRequest) (engine.Series, error) {
	interval := req.Interval
	if interval == "" {
		interval = s.config.Data.Interval
	}

	switch source {
	case pb.SourceBars:
		bars, err := convertBarsFromGrpc(req.Bars)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return bars, nil

	case pb.SourceClickHouse:
		if s.store == nil {
			return nil, status.Error(codes.FailedPrecondition, "clickhouse source is not configured")
		}
		if req.Symbol == "" {
			return nil, status.Error(codes.InvalidArgument, "symbol is required")
		}
		bars, err := s.store.LoadBars(ctx, clickhouse.BarQuery{
			Symbol:   req.Symbol,
			Interval: interval,
			Start:    msTime(req.StartTime),
			End:      msTime(req.EndTime),
			Limit:    req.Limit,
		})
		if err != nil {
			return nil, storeError(err)
		}
		return bars, nil

	case pb.SourceBinance:
		if s.klines == nil {
			return nil, status.Error(codes.FailedPrecondition, "binance source is not configured")
		}
		if req.Symbol == "" {
			return nil, status.Error(codes.InvalidArgument, "symbol is required")
		}
		bars, err := s.klines.Fetch(ctx, req.Symbol, interval, msTime(req.StartTime), msTime(req.EndTime), req.Limit)
		if err != nil {
			return nil, status.Errorf(codes.Unavailable, "binance: %v", err)
		}
		return bars, nil
	}
	return nil, status.Errorf(codes.InvalidArgument, "unknown source %q", source)
}

// strategyConfig layers request overrides on the configured strategy.
func (s *BacktestService) strategyConfig(o *pb.StrategyOverrides) (engine.StrategyConfig, error) {
	sec := s.config.Strategy
	if o != nil {
		set := func(dst *string, v string) {
			if v != "" {
				*dst = v
			}
		}
		set(&sec.InitialLot, o.InitialLot)
		set(&sec.LotMultiplier, o.LotMultiplier)
		set(&sec.SLDistance, o.SLDistance)
		set(&sec.TPDistance, o.TPDistance)
		set(&sec.TrailingStopDistance, o.TrailingStopDistance)
		set(&sec.BuyThreshold, o.BuyThreshold)
		set(&sec.SellThreshold, o.SellThreshold)
		set(&sec.TieBreak, o.TieBreak)
		set(&sec.PriceBasis, o.PriceBasis)
		set(&sec.EntryPolicy, o.EntryPolicy)
		if o.MaxLossStreak != 0 {
			sec.MaxLossStreak = o.MaxLossStreak
		}
	}
	return sec.StrategyConfig()
}

func storeError(err error) error {
	if errors.Is(err, clickhouse.ErrUnavailable) {
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Errorf(codes.Internal, "clickhouse: %v", err)
}

func msTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func convertBarsFromGrpc(in []*pb.Bar) (engine.Series, error) {
	bars := make(engine.Series, len(in))
	for i, b := range in {
		if b == nil {
			return nil, fmt.Errorf("bar %d is empty", i)
		}
		var err error
		parse := func(name, v string) decimal.Decimal {
			if err != nil {
				return decimal.Zero
			}
			d, perr := decimal.NewFromString(v)
			if perr != nil {
				err = fmt.Errorf("bar %d %s %q: %w", i, name, v, perr)
			}
			return d
		}
		bars[i] = engine.Bar{
			Time:  msTime(b.Time),
			Open:  parse("open", b.Open),
			High:  parse("high", b.High),
			Low:   parse("low", b.Low),
			Close: parse("close", b.Close),
		}
		if b.Indicator != "" {
			bars[i].Indicator = decimal.NewNullDecimal(parse("indicator", b.Indicator))
		}
		if err != nil {
			return nil, err
		}
	}
	return bars, nil
}
