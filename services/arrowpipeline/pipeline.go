// Package arrowpipeline moves bar series and trade logs through Apache
// Arrow IPC streams.
package arrowpipeline

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rsi-martingale-backtest/services/engine"
)

// Config holds Arrow pipeline configuration
type Config struct {
	BatchSize int `yaml:"batch_size"`
}

// BarSchema is the column layout of a bar stream. A null indicator marks
// a warm-up bar.
var BarSchema = arrow.NewSchema([]arrow.Field{
	{Name: "time", Type: arrow.FixedWidthTypes.Timestamp_ms},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "indicator", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

// TradeSchema is the column layout of a trade log stream.
var TradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "entry_index", Type: arrow.PrimitiveTypes.Int64},
	{Name: "entry_time", Type: arrow.FixedWidthTypes.Timestamp_ms},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "direction", Type: arrow.BinaryTypes.String},
	{Name: "lot_size", Type: arrow.PrimitiveTypes.Float64},
	{Name: "stop_loss_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "take_profit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_index", Type: arrow.PrimitiveTypes.Int64},
	{Name: "exit_time", Type: arrow.FixedWidthTypes.Timestamp_ms},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_reason", Type: arrow.BinaryTypes.String},
	{Name: "realized_profit", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Pipeline handles Arrow IPC streaming
type Pipeline struct {
	config     *Config
	memoryPool memory.Allocator
	logger     *zap.Logger
}

// NewPipeline creates a new Arrow pipeline
func NewPipeline(config *Config, logger *zap.Logger) *Pipeline {
	if config == nil || config.BatchSize <= 0 {
		config = &Config{BatchSize: 10_000}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		config:     config,
		memoryPool: memory.NewGoAllocator(),
		logger:     logger,
	}
}

// WriteBars streams bars to w, one record batch per BatchSize bars.
func (p *Pipeline) WriteBars(w io.Writer, bars []engine.Bar) error {
	return p.write(w, BarSchema, len(bars), func(b *array.RecordBuilder, i int) {
		bar := bars[i]
		b.Field(0).(*array.TimestampBuilder).Append(arrow.Timestamp(bar.Time.UnixMilli()))
		b.Field(1).(*array.Float64Builder).Append(bar.Open.InexactFloat64())
		b.Field(2).(*array.Float64Builder).Append(bar.High.InexactFloat64())
		b.Field(3).(*array.Float64Builder).Append(bar.Low.InexactFloat64())
		b.Field(4).(*array.Float64Builder).Append(bar.Close.InexactFloat64())
		ind := b.Field(5).(*array.Float64Builder)
		if bar.Indicator.Valid {
			ind.Append(bar.Indicator.Decimal.InexactFloat64())
		} else {
			ind.AppendNull()
		}
	})
}

// WriteTrades streams a trade log to w.
func (p *Pipeline) WriteTrades(w io.Writer, trades []engine.Trade) error {
	return p.write(w, TradeSchema, len(trades), func(b *array.RecordBuilder, i int) {
		t := trades[i]
		b.Field(0).(*array.Int64Builder).Append(int64(t.EntryIndex))
		b.Field(1).(*array.TimestampBuilder).Append(arrow.Timestamp(t.EntryTime.UnixMilli()))
		b.Field(2).(*array.Float64Builder).Append(t.EntryPrice.InexactFloat64())
		b.Field(3).(*array.StringBuilder).Append(t.Direction.String())
		b.Field(4).(*array.Float64Builder).Append(t.LotSize.InexactFloat64())
		b.Field(5).(*array.Float64Builder).Append(t.StopLossPrice.InexactFloat64())
		b.Field(6).(*array.Float64Builder).Append(t.TakeProfitPrice.InexactFloat64())
		b.Field(7).(*array.Int64Builder).Append(int64(t.ExitIndex))
		b.Field(8).(*array.TimestampBuilder).Append(arrow.Timestamp(t.ExitTime.UnixMilli()))
		b.Field(9).(*array.Float64Builder).Append(t.ExitPrice.InexactFloat64())
		b.Field(10).(*array.StringBuilder).Append(string(t.ExitReason))
		b.Field(11).(*array.Float64Builder).Append(t.RealizedProfit.InexactFloat64())
	})
}

func (p *Pipeline) write(w io.Writer, schema *arrow.Schema, n int, appendRow func(*array.RecordBuilder, int)) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(p.memoryPool))

	builder := array.NewRecordBuilder(p.memoryPool, schema)
	defer builder.Release()

	batches := 0
	for start := 0; start < n; start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, n)
		for i := start; i < end; i++ {
			appendRow(builder, i)
		}
		record := builder.NewRecord()
		err := writer.Write(record)
		record.Release()
		if err != nil {
			writer.Close()
			return fmt.Errorf("failed to write Arrow record: %w", err)
		}
		batches++
	}

	// Close writes the end-of-stream marker
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow stream: %w", err)
	}
	p.logger.Debug("wrote Arrow stream", zap.Int("rows", n), zap.Int("batches", batches))
	return nil
}

// EncodeBars is WriteBars into a byte slice.
func (p *Pipeline) EncodeBars(bars []engine.Bar) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.WriteBars(&buf, bars); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadBars decodes a bar stream written by WriteBars.
func (p *Pipeline) ReadBars(r io.Reader) ([]engine.Bar, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(p.memoryPool), ipc.WithSchema(BarSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to open Arrow stream: %w", err)
	}
	defer reader.Release()

	var bars []engine.Bar
	for reader.Next() {
		rec := reader.Record()
		times := rec.Column(0).(*array.Timestamp)
		cols := make([]*array.Float64, 5)
		for c := range cols {
			cols[c] = rec.Column(c + 1).(*array.Float64)
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			bar := engine.Bar{
				Time:  time.UnixMilli(int64(times.Value(i))).UTC(),
				Open:  decimal.NewFromFloat(cols[0].Value(i)),
				High:  decimal.NewFromFloat(cols[1].Value(i)),
				Low:   decimal.NewFromFloat(cols[2].Value(i)),
				Close: decimal.NewFromFloat(cols[3].Value(i)),
			}
			if cols[4].IsValid(i) {
				bar.Indicator = decimal.NewNullDecimal(decimal.NewFromFloat(cols[4].Value(i)))
			}
			bars = append(bars, bar)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, fmt.Errorf("failed to read Arrow stream: %w", err)
	}
	return bars, nil
}

// ReadTradeCount reads a trade stream and returns its row count.
func (p *Pipeline) ReadTradeCount(r io.Reader) (int, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(p.memoryPool), ipc.WithSchema(TradeSchema))
	if err != nil {
		return 0, fmt.Errorf("failed to open Arrow stream: %w", err)
	}
	defer reader.Release()

	n := 0
	for reader.Next() {
		n += int(reader.Record().NumRows())
	}
	return n, reader.Err()
}
