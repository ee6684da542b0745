package main

import (
	"time"

	pb "rsi-martingale-backtest/proto"
	"rsi-martingale-backtest/services/engine"
)

func convertToGrpcResponse(manifest engine.RunManifest, res *engine.Result) *pb.BacktestResponse {
	return &pb.BacktestResponse{
		JobId:       manifest.JobID,
		Summary:     convertSummaryToGrpc(res),
		Trades:      convertTradesToGrpc(res.Trades),
		Manifest:    convertManifestToGrpc(manifest),
		Fingerprint: engine.Fingerprint(*res),
	}
}

func convertSummaryToGrpc(res *engine.Result) *pb.Summary {
	return &pb.Summary{
		TotalProfit:     res.TotalProfit.String(),
		TotalTrades:     res.TotalTrades,
		WinRate:         res.Stats.WinRate.String(),
		HaltedEarly:     res.HaltedEarly,
		FinalLot:        res.FinalState.CurrentLot.String(),
		FinalLossStreak: res.FinalState.LossStreak,
		MaxDrawdown:     res.Stats.MaxDrawdown.String(),
		ProfitFactor:    res.Stats.ProfitFactor.String(),
	}
}

func convertTradesToGrpc(trades []engine.Trade) []*pb.ExecutedTrade {
	grpcTrades := make([]*pb.ExecutedTrade, len(trades))
	for i, trade := range trades {
		grpcTrades[i] = &pb.ExecutedTrade{
			EntryIndex:     trade.EntryIndex,
			EntryTime:      unixMilli(trade.EntryTime),
			Direction:      trade.Direction.String(),
			EntryPrice:     trade.EntryPrice.String(),
			LotSize:        trade.LotSize.String(),
			StopLoss:       trade.StopLossPrice.String(),
			TakeProfit:     trade.TakeProfitPrice.String(),
			ExitIndex:      trade.ExitIndex,
			ExitTime:       unixMilli(trade.ExitTime),
			ExitPrice:      trade.ExitPrice.String(),
			ExitReason:     string(trade.ExitReason),
			Points:         trade.Points.String(),
			RealizedProfit: trade.RealizedProfit.String(),
		}
	}
	return grpcTrades
}

func convertManifestToGrpc(manifest engine.RunManifest) *pb.RunManifest {
	return &pb.RunManifest{
		JobId:         manifest.JobID,
		Symbol:        manifest.Symbol,
		ConfigHash:    manifest.ConfigHash,
		DataChecksum:  manifest.DataChecksum,
		EngineVersion: manifest.EngineVersion,
		CreatedAt:     manifest.CreatedAt,
	}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
