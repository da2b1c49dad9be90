package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"

	"github.com/shopspring/decimal"
)

// TradeCSVHeader is the column layout shared by backtest and live logs.
var TradeCSVHeader = []string{
	"sequence", "timestamp", "symbol", "side",
	"entry_time", "entry_price", "exit_time", "exit_price",
	"quantity", "pnl", "return_pct", "source", "order_id",
}

// csvTimeLayout keeps sub-second fill times; whole seconds print without a
// fraction.
const csvTimeLayout = "2006-01-02 15:04:05.999999999"

// CSVTradeLog appends trade records to one CSV file.
type CSVTradeLog struct {
	path string
	mu   sync.Mutex
	f    *os.File
	w    *csv.Writer
}

var _ domrepo.TradeLog = (*CSVTradeLog)(nil)

// NewCSVTradeLog opens path for appending. With truncate the file starts
// empty; the header is written whenever the file is empty.
func NewCSVTradeLog(path string, truncate bool) (*CSVTradeLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dir: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trade log: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	l := &CSVTradeLog{path: path, f: f, w: csv.NewWriter(f)}
	if st.Size() == 0 {
		if err := l.w.Write(TradeCSVHeader); err != nil {
			f.Close()
			return nil, err
		}
		l.w.Flush()
	}
	return l, nil
}

func (l *CSVTradeLog) Path() string { return l.path }

// Append writes and flushes one record.
func (l *CSVTradeLog) Append(_ context.Context, t models.TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return errors.New("trade log closed")
	}
	if err := l.w.Write(tradeRow(t)); err != nil {
		return fmt.Errorf("write trade: %w", err)
	}
	l.w.Flush()
	return l.w.Error()
}

// Load reads every record of source back from the file.
func (l *CSVTradeLog) Load(_ context.Context, source models.TradeSource) ([]models.TradeRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LoadTradeCSV(l.path, source)
}

func (l *CSVTradeLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	l.w.Flush()
	l.w = nil
	return l.f.Close()
}

// LoadTradeCSV reads a trade log file. An empty source keeps every row.
func LoadTradeCSV(path string, source models.TradeSource) ([]models.TradeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	all, err := ReadTradeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if source == "" {
		return all, nil
	}
	out := all[:0]
	for _, t := range all {
		if t.Source == "" || t.Source == source {
			out = append(out, t)
		}
	}
	return out, nil
}

// ReadTradeCSV parses rows by header name, so column order may vary and
// unknown columns are ignored.
func ReadTradeCSV(r io.Reader) ([]models.TradeRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, required := range []string{"side", "entry_time", "entry_price"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var out []models.TradeRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(name string) string {
			if i, ok := col[name]; ok && i < len(row) {
				return row[i]
			}
			return ""
		}
		t, err := parseTradeRow(get, len(out)+1)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// WriteTradeCSV writes records with the standard header.
func WriteTradeCSV(w io.Writer, trades []models.TradeRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TradeCSVHeader); err != nil {
		return err
	}
	for _, t := range trades {
		if err := cw.Write(tradeRow(t)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func tradeRow(t models.TradeRecord) []string {
	exitTime := ""
	if t.ExitTime != nil {
		exitTime = formatTime(*t.ExitTime)
	}
	return []string{
		strconv.Itoa(t.Sequence),
		formatTime(t.ExecutedAt()),
		t.Symbol,
		string(t.Side),
		formatTime(t.EntryTime),
		t.EntryPrice.String(),
		exitTime,
		nullString(t.ExitPrice),
		t.Quantity.String(),
		nullString(t.PnL),
		nullString(t.ReturnPct),
		string(t.Source),
		t.OrderID,
	}
}

func parseTradeRow(get func(string) string, fallbackSeq int) (models.TradeRecord, error) {
	var t models.TradeRecord
	side, ok := models.ParseSide(get("side"))
	if !ok {
		return t, fmt.Errorf("bad side %q", get("side"))
	}
	t.Side = side
	t.Symbol = get("symbol")
	t.Source = models.TradeSource(get("source"))
	t.OrderID = get("order_id")

	t.Sequence = fallbackSeq
	if s := get("sequence"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return t, fmt.Errorf("bad sequence %q", s)
		}
		t.Sequence = n
	}

	var err error
	if t.EntryTime, err = parseTime(get("entry_time")); err != nil {
		return t, fmt.Errorf("entry_time: %w", err)
	}
	if t.EntryPrice, err = decimal.NewFromString(get("entry_price")); err != nil {
		return t, fmt.Errorf("entry_price: %w", err)
	}
	if s := get("exit_time"); s != "" {
		et, err := parseTime(s)
		if err != nil {
			return t, fmt.Errorf("exit_time: %w", err)
		}
		t.ExitTime = &et
	}
	if t.ExitPrice, err = parseNull(get("exit_price")); err != nil {
		return t, fmt.Errorf("exit_price: %w", err)
	}
	if t.PnL, err = parseNull(get("pnl")); err != nil {
		return t, fmt.Errorf("pnl: %w", err)
	}
	if t.ReturnPct, err = parseNull(get("return_pct")); err != nil {
		return t, fmt.Errorf("return_pct: %w", err)
	}
	if s := get("quantity"); s != "" {
		if t.Quantity, err = decimal.NewFromString(s); err != nil {
			return t, fmt.Errorf("quantity: %w", err)
		}
	}
	return t, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(csvTimeLayout) }

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{csvTimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func parseNull(s string) (decimal.NullDecimal, error) {
	if s == "" || s == "None" || s == "nan" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
