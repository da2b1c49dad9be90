package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	"ParityBot/internal/domain/service"
	"ParityBot/internal/services/alignment"
	applogger "ParityBot/pkg/logger"

	"github.com/shopspring/decimal"
)

// BacktestConfig bounds one replay.
type BacktestConfig struct {
	Symbol    string
	Primary   domrepo.Timeframe
	Secondary domrepo.Timeframe
	From, To  time.Time
	// Window is how many closed candles per timeframe the engine sees at
	// each step, matching what the live feed holds.
	Window         int
	InitialCapital decimal.Decimal
	Commission     decimal.Decimal
}

// BacktestResult is what a replay produced.
type BacktestResult struct {
	Summary Summary              `json:"summary"`
	Trades  []models.TradeRecord `json:"trades"`
	Final   models.PositionState `json:"final_position"`
}

// BacktestRunner replays history through the same engine the live trader
// uses, one decision per closed primary candle.
type BacktestRunner struct {
	cfg       BacktestConfig
	engine    service.SignalEngine
	loader    *HistoryLoader
	executor  domrepo.OrderExecutor
	trades    domrepo.TradeLog
	publisher domrepo.DecisionPublisher
	metrics   domrepo.Metrics
	log       *applogger.Logger
}

func NewBacktestRunner(
	cfg BacktestConfig,
	engine service.SignalEngine,
	loader *HistoryLoader,
	executor domrepo.OrderExecutor,
	trades domrepo.TradeLog,
	publisher domrepo.DecisionPublisher,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *BacktestRunner {
	if cfg.Window <= 0 {
		cfg.Window = 100
	}
	return &BacktestRunner{
		cfg: cfg, engine: engine, loader: loader, executor: executor,
		trades: trades, publisher: publisher, metrics: metrics, log: log,
	}
}

// Run loads history, with Window candles of warm-up before From, and
// replays it.
func (r *BacktestRunner) Run(ctx context.Context) (BacktestResult, error) {
	if !r.cfg.From.Before(r.cfg.To) {
		return BacktestResult{}, fmt.Errorf("backtest range %s..%s is empty", r.cfg.From, r.cfg.To)
	}
	warm := time.Duration(r.cfg.Window)
	primary, secondary, err := r.loader.Load(ctx, r.cfg.Symbol,
		Window{Timeframe: r.cfg.Primary, From: r.cfg.From.Add(-warm * r.cfg.Primary.Duration()), To: r.cfg.To},
		Window{Timeframe: r.cfg.Secondary, From: r.cfg.From.Add(-warm * r.cfg.Secondary.Duration()), To: r.cfg.To},
	)
	if err != nil {
		return BacktestResult{}, err
	}
	return r.Replay(ctx, primary, secondary)
}

// Replay evaluates every primary candle with OpenTime in [From, To) and
// CloseTime <= To. Zero From/To bounds are open.
func (r *BacktestRunner) Replay(ctx context.Context, primary, secondary []models.Candle) (BacktestResult, error) {
	start := time.Now()
	primary = models.SortCandles(primary)
	secondary = models.SortCandles(secondary)

	state := models.NewFlatPosition(r.cfg.Symbol)
	book := NewTradeBook(r.cfg.Symbol, models.SourceBacktest, r.cfg.Commission, 0)
	var (
		out       []models.TradeRecord
		decisions int
	)

	for i, c := range primary {
		if !r.cfg.From.IsZero() && c.OpenTime.Before(r.cfg.From) {
			continue
		}
		if !r.cfg.To.IsZero() && c.CloseTime.After(r.cfg.To) {
			break
		}
		if err := ctx.Err(); err != nil {
			return BacktestResult{}, err
		}

		at := c.CloseTime
		d := r.engine.Step(state, window(primary[:i+1], r.cfg.Window), window(alignment.Align(secondary, at), r.cfg.Window), at)
		decisions++
		r.metrics.RecordDecision(d.Symbol, d.Action)
		if err := r.publisher.PublishDecision(ctx, d); err != nil {
			r.log.Warn("publish decision failed", applogger.Error(err))
		}
		if !d.IsTrade() {
			continue
		}

		next, rec, err := r.execute(ctx, d, state, book)
		if err != nil {
			r.metrics.RecordError("backtest_execute")
			r.log.Error("backtest execution failed",
				applogger.Time("at", at),
				applogger.String("action", string(d.Action)),
				applogger.Error(err),
			)
			continue
		}
		state = next
		out = append(out, rec)
	}

	sum := book.Summary(r.cfg.InitialCapital)
	sum.Decisions = decisions
	sum.OpenPosition = state.IsLong()
	r.metrics.RecordLatency("backtest_replay", time.Since(start).Seconds())
	r.log.Info("backtest finished",
		applogger.String("symbol", r.cfg.Symbol),
		applogger.Int("decisions", decisions),
		applogger.Int("records", sum.Records),
		applogger.Int("round_trips", sum.RoundTrips),
		applogger.Float64("win_rate", sum.WinRate),
		applogger.String("total_pnl", sum.TotalPnL.String()),
		applogger.Float64("return_pct", sum.ReturnPct),
	)
	return BacktestResult{Summary: sum, Trades: out, Final: state}, nil
}

// execute fills d and applies the fill. The record is persisted before the
// new state is returned.
func (r *BacktestRunner) execute(ctx context.Context, d models.Decision, state models.PositionState, book *TradeBook) (models.PositionState, models.TradeRecord, error) {
	fill, err := r.executor.Execute(ctx, d, state)
	if err != nil {
		return state, models.TradeRecord{}, err
	}
	next, err := r.engine.Transition(state, d, fill)
	if err != nil {
		return state, models.TradeRecord{}, err
	}
	rec, err := book.Record(fill, state)
	if err != nil {
		return state, models.TradeRecord{}, err
	}
	if err := r.trades.Append(ctx, rec); err != nil {
		return state, models.TradeRecord{}, fmt.Errorf("append trade: %w", err)
	}
	r.metrics.RecordTrade(rec.Source, rec.Side)
	if err := r.publisher.PublishTrade(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		r.log.Warn("publish trade failed", applogger.Error(err))
	}
	return next, rec, nil
}

// window keeps the last n candles.
func window(series []models.Candle, n int) []models.Candle {
	if n > 0 && len(series) > n {
		return series[len(series)-n:]
	}
	return series
}
