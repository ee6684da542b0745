// Package main serves RSI martingale backtests over HTTP and gRPC
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	pb "rsi-martingale-backtest/proto"
	"rsi-martingale-backtest/services/binance"
	"rsi-martingale-backtest/services/cache"
	"rsi-martingale-backtest/services/clickhouse"
	"rsi-martingale-backtest/services/config"
	"rsi-martingale-backtest/services/engine"
	"rsi-martingale-backtest/services/monitoring"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("BACKTEST_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting backtesting service",
		zap.String("version", engine.EngineVersion),
		zap.String("environment", cfg.Environment),
	)

	ctx := context.Background()

	var store barStore
	if cfg.ClickHouse.Addr != "" {
		chClient, err := clickhouse.NewClient(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Warn("ClickHouse unavailable, clickhouse source disabled", zap.Error(err))
		} else {
			defer chClient.Close()
			if err := chClient.EnsureSchema(ctx); err != nil {
				logger.Warn("Failed to ensure ClickHouse schema", zap.Error(err))
			}
			store = chClient
		}
	}

	var rc resultCache
	if cfg.Redis.Enabled {
		redisCache, err := cache.NewResultCache(cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis unavailable, result cache disabled", zap.Error(err))
		} else {
			defer redisCache.Close()
			rc = redisCache
		}
	}

	klines := binance.NewKlineSource(cfg.Binance, logger)
	service := NewBacktestService(cfg, store, klines, rc, monitoring.NewMetrics(), logger)

	// Setup gRPC server
	grpcServer := grpc.NewServer()
	pb.RegisterBacktestServiceServer(grpcServer, service)
	reflection.Register(grpcServer)

	// Setup HTTP server
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	httpRouter := gin.New()
	httpRouter.Use(gin.Recovery())
	service.setupHTTPRoutes(httpRouter)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           httpRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start servers
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.Fatal("Failed to listen on gRPC port", zap.Error(err))
		}

		logger.Info("Starting gRPC server", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("Failed to serve gRPC", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down servers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	grpcServer.GracefulStop()
	logger.Info("Servers stopped")
}
