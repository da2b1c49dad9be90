package clickhouse

import "fmt"

// Table names.
const (
	CandlesTable = "candles"
	TradesTable  = "trades"
)

// Schema returns the DDL for the candle cache and the trade log.
// ReplacingMergeTree collapses re-fetched candles and re-delivered trades on merge;
// readers add FINAL where exact de-duplication matters.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	symbol     LowCardinality(String),
	timeframe  LowCardinality(String),
	open_time  DateTime64(3, 'UTC'),
	close_time DateTime64(3, 'UTC'),
	open       Decimal(38, 8),
	high       Decimal(38, 8),
	low        Decimal(38, 8),
	close      Decimal(38, 8),
	volume     Decimal(38, 8),
	fetched_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(fetched_at)
ORDER BY (symbol, timeframe, open_time)`, database, CandlesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
	source      LowCardinality(String),
	sequence    UInt32,
	symbol      LowCardinality(String),
	side        LowCardinality(String),
	entry_time  DateTime64(3, 'UTC'),
	entry_price Decimal(38, 8),
	exit_time   Nullable(DateTime64(3, 'UTC')),
	exit_price  Nullable(Decimal(38, 8)),
	quantity    Decimal(38, 8),
	pnl         Nullable(Decimal(38, 8)),
	return_pct  Nullable(Decimal(38, 8)),
	order_id    String,
	inserted_at DateTime64(3, 'UTC') DEFAULT now64(3)
) ENGINE = ReplacingMergeTree(inserted_at)
ORDER BY (source, symbol, sequence)`, database, TradesTable),
	}
}
