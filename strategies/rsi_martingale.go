package strategies

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"rsi-martingale-backtest/services/engine"
	"rsi-martingale-backtest/services/indicators"
)

// ErrMissingColumn is returned when a CSV header lacks a price column.
var ErrMissingColumn = errors.New("missing required column")

// RSIMartingaleStrategy trades RSI band crossings with martingale lot sizing
// on top of the engine's exit simulator.
type RSIMartingaleStrategy struct {
	Config    engine.StrategyConfig
	RSIPeriod int
	Smoothing indicators.Smoothing
	Symbol    string

	// State
	Bars     engine.Series
	Result   engine.Result
	Manifest engine.RunManifest

	// precomputed is set once the bars carry indicator values.
	precomputed bool
	logger      *zap.Logger
}

func NewRSIMartingaleStrategy(cfg engine.StrategyConfig, logger *zap.Logger) *RSIMartingaleStrategy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RSIMartingaleStrategy{
		Config:    cfg,
		RSIPeriod: indicators.DefaultPeriod,
		Smoothing: indicators.SmoothingEWM,
		logger:    logger,
	}
}

// SetBars replaces the loaded series. Bars that already carry indicator
// values are used as-is.
func (s *RSIMartingaleStrategy) SetBars(bars engine.Series) {
	s.Bars = bars
	s.precomputed = false
	for _, b := range bars {
		if b.HasIndicator() {
			s.precomputed = true
			break
		}
	}
}

// LoadCSV loads OHLC data from a CSV file
func (s *RSIMartingaleStrategy) LoadCSV(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	bars, err := ReadBarsCSV(file)
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	s.SetBars(bars)
	s.logger.Info("loaded bars",
		zap.String("file", filename),
		zap.Int("bars", len(bars)),
		zap.Bool("precomputed_indicator", s.precomputed))
	return nil
}

type csvColumns struct {
	time, open, high, low, close, indicator int
}

var headerAliases = map[string]string{
	"time": "time", "timestamp": "time", "timestamp_ms": "time", "date": "time", "datetime": "time", "open_time": "time",
	"open": "open", "o": "open",
	"high": "high", "h": "high",
	"low": "low", "l": "low",
	"close": "close", "c": "close",
	"rsi": "indicator", "indicator": "indicator",
}

// ReadBarsCSV parses bars from r. The input may be UTF-8 or UTF-16 with a
// byte order mark. Without a header the columns are time,open,high,low,close
// with an optional sixth indicator column.
func ReadBarsCSV(r io.Reader) (engine.Series, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	cols := csvColumns{time: 0, open: 1, high: 2, low: 3, close: 4, indicator: -1}
	bars := make(engine.Series, 0, 1_000)
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}

		if line == 1 {
			if hdr, ok, err := parseHeader(rec); err != nil {
				return nil, err
			} else if ok {
				cols = hdr
				continue
			}
			if len(rec) >= 6 {
				cols.indicator = 5
			}
		}

		bar, err := parseRecord(rec, cols)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseHeader reports whether rec is a header row and maps its columns.
func parseHeader(rec []string) (csvColumns, bool, error) {
	cols := csvColumns{time: -1, open: -1, high: -1, low: -1, close: -1, indicator: -1}
	known := 0
	for i, name := range rec {
		switch headerAliases[strings.ToLower(strings.TrimSpace(name))] {
		case "time":
			cols.time = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		case "indicator":
			cols.indicator = i
		default:
			continue
		}
		known++
	}
	if known == 0 {
		return cols, false, nil
	}
	for name, idx := range map[string]int{"open": cols.open, "high": cols.high, "low": cols.low, "close": cols.close} {
		if idx < 0 {
			return cols, false, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return cols, true, nil
}

func parseRecord(rec []string, cols csvColumns) (engine.Bar, error) {
	field := func(idx int) string {
		if idx < 0 || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}
	price := func(name string, idx int) (decimal.Decimal, error) {
		v := field(idx)
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s %q: %w", name, v, err)
		}
		return d, nil
	}

	var (
		bar engine.Bar
		err error
	)
	if bar.Time, err = ParseTime(field(cols.time)); err != nil {
		return bar, err
	}
	if bar.Open, err = price("open", cols.open); err != nil {
		return bar, err
	}
	if bar.High, err = price("high", cols.high); err != nil {
		return bar, err
	}
	if bar.Low, err = price("low", cols.low); err != nil {
		return bar, err
	}
	if bar.Close, err = price("close", cols.close); err != nil {
		return bar, err
	}
	if v := field(cols.indicator); v != "" && !strings.EqualFold(v, "nan") {
		ind, err := decimal.NewFromString(v)
		if err != nil {
			return bar, fmt.Errorf("indicator %q: %w", v, err)
		}
		bar.Indicator = decimal.NewNullDecimal(ind)
	}
	return bar, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04",
	"2006-01-02",
}

// ParseTime accepts epoch seconds, epoch milliseconds or a calendar layout.
// An empty value yields the zero time.
func ParseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n > 1e11 || n < -1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", v)
}

// CalculateIndicators attaches RSI unless the input supplied its own values.
func (s *RSIMartingaleStrategy) CalculateIndicators() error {
	if s.precomputed {
		return nil
	}
	if err := indicators.Attach(s.Bars, s.RSIPeriod, s.Smoothing); err != nil {
		return err
	}
	s.precomputed = true
	return nil
}

// Run computes indicators, executes the engine and fills Result and Manifest.
func (s *RSIMartingaleStrategy) Run() error {
	if err := s.CalculateIndicators(); err != nil {
		return err
	}

	runner, err := engine.NewRunner(s.Config, engine.WithLogger(s.logger))
	if err != nil {
		return err
	}
	res, err := runner.Run(s.Bars)
	if err != nil {
		return err
	}

	s.Result = res
	s.Manifest = engine.RunManifest{
		JobID:         uuid.New().String(),
		Symbol:        s.Symbol,
		ConfigHash:    runner.Config().Hash(),
		DataChecksum:  s.Bars.Checksum(),
		EngineVersion: engine.EngineVersion,
		CreatedAt:     time.Now().UnixMilli(),
	}

	s.logger.Info("backtest finished",
		zap.String("job_id", s.Manifest.JobID),
		zap.String("symbol", s.Symbol),
		zap.Int("trades", res.TotalTrades),
		zap.String("total_profit", res.TotalProfit.String()),
		zap.Bool("halted", res.HaltedEarly))
	return nil
}

var tradeHeader = []string{
	"entry_index", "entry_time", "direction", "entry_price", "lot_size",
	"stop_loss", "take_profit", "exit_index", "exit_time", "exit_price",
	"exit_reason", "points", "realized_profit",
}

// WriteTradesCSV writes one row per trade.
func WriteTradesCSV(w io.Writer, trades []engine.Trade) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tradeHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, t := range trades {
		record := []string{
			strconv.Itoa(t.EntryIndex),
			formatTime(t.EntryTime),
			t.Direction.String(),
			t.EntryPrice.String(),
			t.LotSize.String(),
			t.StopLossPrice.String(),
			t.TakeProfitPrice.String(),
			strconv.Itoa(t.ExitIndex),
			formatTime(t.ExitTime),
			t.ExitPrice.String(),
			string(t.ExitReason),
			t.Points.String(),
			t.RealizedProfit.String(),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteBarsCSV writes bars in the layout ReadBarsCSV reads back. Times are
// epoch milliseconds; undefined indicators are left empty.
func WriteBarsCSV(w io.Writer, bars []engine.Bar) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"timestamp", "open", "high", "low", "close", "rsi"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, b := range bars {
		ind := ""
		if b.HasIndicator() {
			ind = b.Indicator.Decimal.String()
		}
		ts := ""
		if !b.Time.IsZero() {
			ts = strconv.FormatInt(b.Time.UnixMilli(), 10)
		}
		if err := writer.Write([]string{ts, b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), ind}); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ExportCSV writes the trade log to filename.
func (s *RSIMartingaleStrategy) ExportCSV(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()
	return WriteTradesCSV(file, s.Result.Trades)
}

// Report is the JSON summary of a run.
type Report struct {
	TotalProfit decimal.Decimal       `json:"total_profit"`
	TotalTrades int                   `json:"total_trades"`
	WinRate     decimal.Decimal       `json:"win_rate"`
	HaltedEarly bool                  `json:"halted_early"`
	FinalState  engine.StrategyState  `json:"final_state"`
	Stats       engine.Stats          `json:"stats"`
	Config      engine.StrategyConfig `json:"config"`
	Manifest    engine.RunManifest    `json:"manifest"`
	Fingerprint string                `json:"fingerprint"`
}

func (s *RSIMartingaleStrategy) GenerateReport() Report {
	return Report{
		TotalProfit: s.Result.TotalProfit,
		TotalTrades: s.Result.TotalTrades,
		WinRate:     s.Result.Stats.WinRate,
		HaltedEarly: s.Result.HaltedEarly,
		FinalState:  s.Result.FinalState,
		Stats:       s.Result.Stats,
		Config:      s.Config.WithDefaults(),
		Manifest:    s.Manifest,
		Fingerprint: engine.Fingerprint(s.Result),
	}
}

// ExportReport writes the indented JSON report to filename.
func (s *RSIMartingaleStrategy) ExportReport(filename string) error {
	data, err := json.MarshalIndent(s.GenerateReport(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// PrintSummary writes a human readable digest of the run.
func (s *RSIMartingaleStrategy) PrintSummary(w io.Writer) {
	st := s.Result.Stats
	fmt.Fprintf(w, "=== RSI MARTINGALE BACKTEST ===\n")
	if s.Symbol != "" {
		fmt.Fprintf(w, "Symbol:            %s\n", s.Symbol)
	}
	fmt.Fprintf(w, "Bars:              %d\n", len(s.Bars))
	fmt.Fprintf(w, "Trades:            %d (wins %d, losses %d, flat %d)\n", s.Result.TotalTrades, st.Wins, st.Losses, st.Flats)
	fmt.Fprintf(w, "Win rate:          %s%%\n", st.WinRate.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(w, "Total profit:      %s\n", s.Result.TotalProfit.String())
	fmt.Fprintf(w, "Profit factor:     %s\n", st.ProfitFactor.StringFixed(2))
	fmt.Fprintf(w, "Max drawdown:      %s\n", st.MaxDrawdown.String())
	fmt.Fprintf(w, "Max loss streak:   %d\n", st.MaxConsecutiveLosses)
	fmt.Fprintf(w, "Max lot:           %s\n", st.MaxLotSize.String())
	fmt.Fprintf(w, "Halted early:      %t\n", s.Result.HaltedEarly)
}
