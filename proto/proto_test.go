package proto

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type echoServer struct {
	UnimplementedBacktestServiceServer
}

func (echoServer) ExecuteBacktest(_ context.Context, req *BacktestRequest) (*BacktestResponse, error) {
	if req.Symbol == "" {
		return nil, status.Error(codes.InvalidArgument, "symbol is required")
	}
	return &BacktestResponse{
		JobId:   "job-1",
		Summary: &Summary{TotalTrades: len(req.Bars), TotalProfit: "0"},
		Manifest: &RunManifest{
			Symbol: req.Symbol,
		},
	}, nil
}

func dial(t *testing.T, srv BacktestServiceServer) *BacktestServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterBacktestServiceServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewBacktestServiceClient(conn)
}

func TestExecuteBacktestOverJSONCodec(t *testing.T) {
	client := dial(t, echoServer{})

	resp, err := client.ExecuteBacktest(context.Background(), &BacktestRequest{
		Symbol: "EURUSD",
		Bars:   []*Bar{{Time: 1, Open: "1", High: "1", Low: "1", Close: "1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-1", resp.JobId)
	assert.Equal(t, 1, resp.Summary.TotalTrades)
	assert.Equal(t, "EURUSD", resp.Manifest.Symbol)
}

func TestExecuteBacktestStatusPropagates(t *testing.T) {
	client := dial(t, echoServer{})

	_, err := client.ExecuteBacktest(context.Background(), &BacktestRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestUnimplemented(t *testing.T) {
	client := dial(t, UnimplementedBacktestServiceServer{})

	_, err := client.ExecuteBacktest(context.Background(), &BacktestRequest{Symbol: "X"})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}
