package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "rsi-martingale-backtest/proto"
	"rsi-martingale-backtest/services/engine"
)

// HTTP handlers for REST API
func (s *BacktestService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktestRequest)
		api.GET("/backtest/:job_id", s.handleGetBacktestResult)
		api.GET("/health", s.handleHealthCheck)
	}
	r.GET("/metrics", gin.WrapH(s.monitoring.Handler()))
}

func (s *BacktestService) handleBacktestRequest(c *gin.Context) {
	var req pb.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := s.ExecuteBacktest(c.Request.Context(), &req)
	if err != nil {
		st := status.Convert(err)
		code := httpStatus(st.Code())
		if code >= http.StatusInternalServerError {
			s.logger.Error("Backtest request failed", zap.Error(err))
		}
		c.JSON(code, gin.H{"error": st.Message(), "code": st.Code().String()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleGetBacktestResult(c *gin.Context) {
	jobID := c.Param("job_id")
	resp, ok := s.jobs.get(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found", "job_id": jobID})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *BacktestService) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().Unix(),
		"version":    engine.EngineVersion,
		"clickhouse": s.store != nil,
		"binance":    s.klines != nil,
		"cache":      s.cache != nil,
	})
}

func httpStatus(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Canceled:
		return 499
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
