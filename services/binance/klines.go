// Package binance downloads historical klines from the Binance spot API and
// turns them into engine bars.
package binance

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"rsi-martingale-backtest/services/config"
	"rsi-martingale-backtest/services/engine"
)

const maxPageLimit = 1000

// KlineSource pages through /api/v3/klines under a request rate limit.
type KlineSource struct {
	client    *binance.Client
	limiter   *rate.Limiter
	pageLimit int
	logger    *zap.Logger
}

func NewKlineSource(cfg config.BinanceConfig, logger *zap.Logger) *KlineSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	limit := cfg.PageLimit
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}
	return &KlineSource{
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		pageLimit: limit,
		logger:    logger,
	}
}

// Fetch returns bars for [start, end] in open-time order. A zero end means
// now. maxBars caps the number of bars (0 for no cap).
func (s *KlineSource) Fetch(ctx context.Context, symbol, interval string, start, end time.Time, maxBars int) (engine.Series, error) {
	if end.IsZero() {
		end = time.Now().UTC()
	}
	if !start.IsZero() && !start.Before(end) {
		return nil, fmt.Errorf("start %s must be before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	var out engine.Series
	cursor := start.UnixMilli()
	endMs := end.UnixMilli()

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		limit := s.pageLimit
		if maxBars > 0 && maxBars-len(out) < limit {
			limit = maxBars - len(out)
		}

		svc := s.client.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			EndTime(endMs).
			Limit(limit)
		if cursor > 0 {
			svc = svc.StartTime(cursor)
		}
		klines, err := svc.Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, interval, err)
		}

		for _, k := range klines {
			bar, err := toBar(k)
			if err != nil {
				return nil, err
			}
			out = append(out, bar)
		}
		s.logger.Debug("kline page",
			zap.String("symbol", symbol),
			zap.Int("rows", len(klines)),
			zap.Int("total", len(out)))

		if len(klines) < limit || (maxBars > 0 && len(out) >= maxBars) {
			break
		}
		next := klines[len(klines)-1].OpenTime + 1
		if next <= cursor || next > endMs {
			break
		}
		cursor = next
	}
	return out, nil
}

func toBar(k *binance.Kline) (engine.Bar, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("kline %d %s %q: %w", k.OpenTime, name, v, err)
		}
		return d, nil
	}

	var (
		bar engine.Bar
		err error
	)
	bar.Time = time.UnixMilli(k.OpenTime).UTC()
	if bar.Open, err = parse("open", k.Open); err != nil {
		return bar, err
	}
	if bar.High, err = parse("high", k.High); err != nil {
		return bar, err
	}
	if bar.Low, err = parse("low", k.Low); err != nil {
		return bar, err
	}
	if bar.Close, err = parse("close", k.Close); err != nil {
		return bar, err
	}
	return bar, nil
}
