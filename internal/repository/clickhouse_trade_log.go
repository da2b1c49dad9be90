package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	pkgch "ParityBot/pkg/clickhouse"
	applogger "ParityBot/pkg/logger"

	"github.com/shopspring/decimal"
)

// CHTradeLog stores trade records in the trades table. One table holds
// both sources.
type CHTradeLog struct {
	ch    *pkgch.Client
	table string
	l     *applogger.Logger
}

var _ domrepo.TradeLog = (*CHTradeLog)(nil)

func NewCHTradeLog(ch *pkgch.Client, l *applogger.Logger) *CHTradeLog {
	return &CHTradeLog{ch: ch, table: ch.Database() + "." + pkgch.TradesTable, l: l}
}

func (s *CHTradeLog) Append(ctx context.Context, t models.TradeRecord) error {
	return s.AppendBatch(ctx, []models.TradeRecord{t})
}

// AppendBatch inserts trades in one block.
func (s *CHTradeLog) AppendBatch(ctx context.Context, trades []models.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s (source, sequence, symbol, side, entry_time, entry_price,
	exit_time, exit_price, quantity, pnl, return_pct, order_id)`, s.table)
	rows := make([][]any, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, []any{
			string(t.Source), uint32(t.Sequence), t.Symbol, string(t.Side),
			t.EntryTime, t.EntryPrice,
			t.ExitTime, nullPtr(t.ExitPrice),
			t.Quantity, nullPtr(t.PnL), nullPtr(t.ReturnPct), t.OrderID,
		})
	}
	start := time.Now()
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		s.l.Error("clickhouse insert trades failed", applogger.Int("rows", len(rows)), applogger.Error(err))
		return fmt.Errorf("insert trades: %w", err)
	}
	s.l.Debug("clickhouse insert trades ok",
		applogger.Int("rows", len(rows)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// Load returns the trades of source ordered by sequence.
func (s *CHTradeLog) Load(ctx context.Context, source models.TradeSource) ([]models.TradeRecord, error) {
	q := fmt.Sprintf(`SELECT sequence, symbol, side, entry_time, entry_price, exit_time, exit_price,
	quantity, pnl, return_pct, order_id
FROM %s FINAL WHERE source = ? ORDER BY sequence`, s.table)
	rows, err := s.ch.DB().QueryContext(ctx, q, string(source))
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var (
			t                      models.TradeRecord
			seq                    uint32
			side                   string
			exitTime               sql.NullTime
			exitPrice, pnl, retPct *decimal.Decimal
		)
		if err := rows.Scan(&seq, &t.Symbol, &side, &t.EntryTime, &t.EntryPrice, &exitTime, &exitPrice,
			&t.Quantity, &pnl, &retPct, &t.OrderID); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Sequence = int(seq)
		t.Side = models.Side(side)
		t.Source = source
		t.EntryTime = t.EntryTime.UTC()
		if exitTime.Valid {
			et := exitTime.Time.UTC()
			t.ExitTime = &et
		}
		t.ExitPrice = fromPtr(exitPrice)
		t.PnL = fromPtr(pnl)
		t.ReturnPct = fromPtr(retPct)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *CHTradeLog) Close() error { return nil }

func nullPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func fromPtr(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}
