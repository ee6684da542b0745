// Package clickhouse reads bar series from and writes trade logs to
// ClickHouse over the native protocol.
package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/config"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("clickhouse unavailable")

type Client struct {
	conn    driver.Conn
	cfg     config.ClickHouseConfig
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient opens and pings a connection.
func NewClient(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*Client, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: cfg.DialTimeout,
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return NewClientWithConn(conn, cfg, logger), nil
}

// NewClientWithConn wraps an existing connection.
func NewClientWithConn(conn driver.Conn, cfg config.ClickHouseConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 3
	}
	st := gobreaker.Settings{
		Name:     "clickhouse",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Client{
		conn:    conn,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(st),
		logger:  logger,
	}
}

// guard runs fn through the circuit breaker.
func (c *Client) guard(fn func() error) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func (c *Client) table(name string) string {
	return fmt.Sprintf("%s.%s", c.cfg.Database, name)
}

// EnsureSchema creates the database, the bars table and the trades table.
func (c *Client) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.cfg.Database),
		fmt.Sprintf(barsDDL, c.table(c.cfg.BarsTable)),
		fmt.Sprintf(tradesDDL, c.table(c.cfg.TradesTable)),
	}
	for _, stmt := range stmts {
		if err := c.guard(func() error { return c.conn.Exec(ctx, stmt) }); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

func (c *Client) Close() error { return c.conn.Close() }
