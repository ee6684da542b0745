// Package proto defines the wire types of the backtest API and a gRPC
// service descriptor that carries them with a JSON codec.
package proto

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"
)

// Source values for BacktestRequest.Source.
const (
	SourceBars       = "bars"
	SourceClickHouse = "clickhouse"
	SourceBinance    = "binance"
)

type BacktestRequest struct {
	Symbol    string             `json:"symbol"`
	Interval  string             `json:"interval,omitempty"`
	Source    string             `json:"source,omitempty"`
	StartTime int64              `json:"start_time,omitempty"`
	EndTime   int64              `json:"end_time,omitempty"`
	Limit     int                `json:"limit,omitempty"`
	Bars      []*Bar             `json:"bars,omitempty"`
	Strategy  *StrategyOverrides `json:"strategy,omitempty"`
	RSIPeriod int                `json:"rsi_period,omitempty"`

	// PersistTrades writes the trade log to ClickHouse when configured.
	PersistTrades bool `json:"persist_trades,omitempty"`
	// SkipCache forces a fresh run.
	SkipCache     bool `json:"skip_cache,omitempty"`
}

// Bar prices are decimal strings; Time is epoch milliseconds.
type Bar struct {
	Time      int64  `json:"time"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Indicator string `json:"indicator,omitempty"`
}

// StrategyOverrides replaces the server's strategy settings field by field.
// Empty values keep the server default.
type StrategyOverrides struct {
	InitialLot           string `json:"initial_lot,omitempty"`
	LotMultiplier        string `json:"lot_multiplier,omitempty"`
	MaxLossStreak        int    `json:"max_loss_streak,omitempty"`
	SLDistance           string `json:"sl_distance,omitempty"`
	TPDistance           string `json:"tp_distance,omitempty"`
	TrailingStopDistance string `json:"trailing_stop_distance,omitempty"`
	BuyThreshold         string `json:"buy_threshold,omitempty"`
	SellThreshold        string `json:"sell_threshold,omitempty"`
	TieBreak             string `json:"tie_break,omitempty"`
	PriceBasis           string `json:"price_basis,omitempty"`
	EntryPolicy          string `json:"entry_policy,omitempty"`
}

type ExecutedTrade struct {
	EntryIndex     int    `json:"entry_index"`
	EntryTime      int64  `json:"entry_time"`
	Direction      string `json:"direction"`
	EntryPrice     string `json:"entry_price"`
	LotSize        string `json:"lot_size"`
	StopLoss       string `json:"stop_loss"`
	TakeProfit     string `json:"take_profit"`
	ExitIndex      int    `json:"exit_index"`
	ExitTime       int64  `json:"exit_time"`
	ExitPrice      string `json:"exit_price"`
	ExitReason     string `json:"exit_reason"`
	Points         string `json:"points"`
	RealizedProfit string `json:"realized_profit"`
}

type Summary struct {
	TotalProfit     string `json:"total_profit"`
	TotalTrades     int    `json:"total_trades"`
	WinRate         string `json:"win_rate"`
	HaltedEarly     bool   `json:"halted_early"`
	FinalLot        string `json:"final_lot"`
	FinalLossStreak int    `json:"final_loss_streak"`
	MaxDrawdown     string `json:"max_drawdown"`
	ProfitFactor    string `json:"profit_factor"`
}

type RunManifest struct {
	JobId         string `json:"job_id"`
	Symbol        string `json:"symbol,omitempty"`
	ConfigHash    string `json:"config_hash"`
	DataChecksum  string `json:"data_checksum"`
	EngineVersion string `json:"engine_version"`
	CreatedAt     int64  `json:"created_at"`
}

type BacktestResponse struct {
	JobId         string           `json:"job_id"`
	ExecutionTime int64            `json:"execution_time_ms"`
	Cached        bool             `json:"cached"`
	Summary       *Summary         `json:"summary"`
	Trades        []*ExecutedTrade `json:"trades"`
	Manifest      *RunManifest     `json:"manifest"`
	Fingerprint   string           `json:"fingerprint"`
}

// Codec name negotiated as the gRPC content-subtype.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// BacktestServiceServer is the server API for BacktestService.
type BacktestServiceServer interface {
	ExecuteBacktest(context.Context, *BacktestRequest) (*BacktestResponse, error)
}

// UnimplementedBacktestServiceServer can be embedded for forward compatibility.
type UnimplementedBacktestServiceServer struct{}

func (UnimplementedBacktestServiceServer) ExecuteBacktest(context.Context, *BacktestRequest) (*BacktestResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ExecuteBacktest not implemented")
}

const executeBacktestMethod = "/backtest.v1.BacktestService/ExecuteBacktest"

func executeBacktestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BacktestRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BacktestServiceServer).ExecuteBacktest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: executeBacktestMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BacktestServiceServer).ExecuteBacktest(ctx, req.(*BacktestRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// BacktestServiceDesc describes backtest.v1.BacktestService.
var BacktestServiceDesc = grpc.ServiceDesc{
	ServiceName: "backtest.v1.BacktestService",
	HandlerType: (*BacktestServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ExecuteBacktest",
			Handler:    executeBacktestHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "backtest/v1/backtest.proto",
}

func RegisterBacktestServiceServer(s grpc.ServiceRegistrar, srv BacktestServiceServer) {
	s.RegisterService(&BacktestServiceDesc, srv)
}

// BacktestServiceClient calls BacktestService using the JSON codec.
type BacktestServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBacktestServiceClient(cc grpc.ClientConnInterface) *BacktestServiceClient {
	return &BacktestServiceClient{cc: cc}
}

func (c *BacktestServiceClient) ExecuteBacktest(ctx context.Context, in *BacktestRequest, opts ...grpc.CallOption) (*BacktestResponse, error) {
	out := new(BacktestResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, executeBacktestMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
