package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	"ParityBot/internal/domain/service"
	applogger "ParityBot/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DecisionCache keeps the latest decision for status queries.
type DecisionCache interface {
	SaveDecision(ctx context.Context, d models.Decision) error
}

// Locker is a cross-process per-symbol evaluation lock.
type Locker interface {
	Lock(ctx context.Context, symbol, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, symbol, owner string) error
}

// LiveConfig configures LiveTrader.
type LiveConfig struct {
	Symbol string
	// MaxTrades stops the loop once this many BUYs were filled and the
	// position is flat again. Zero means unlimited.
	MaxTrades    int
	LockTTL      time.Duration
	Commission   decimal.Decimal
	ErrorBackoff time.Duration
}

// LiveTrader drives the signal engine from a candle feed. It owns the
// position: the state advances only after a confirmed fill.
type LiveTrader struct {
	cfg       LiveConfig
	engine    service.SignalEngine
	feed      domrepo.CandleFeed
	executor  domrepo.OrderExecutor
	trades    domrepo.TradeLog
	publisher domrepo.DecisionPublisher
	positions domrepo.PositionStore
	decisions DecisionCache
	locker    Locker
	metrics   domrepo.Metrics
	log       *applogger.Logger

	owner string
	book  *TradeBook

	mu            sync.RWMutex
	state         models.PositionState
	last          *models.Decision
	lastEvaluated time.Time
	buys          int
}

// LiveDeps groups optional collaborators; nil fields are skipped.
type LiveDeps struct {
	Positions domrepo.PositionStore
	Decisions DecisionCache
	Locker    Locker
}

func NewLiveTrader(
	cfg LiveConfig,
	engine service.SignalEngine,
	feed domrepo.CandleFeed,
	executor domrepo.OrderExecutor,
	trades domrepo.TradeLog,
	publisher domrepo.DecisionPublisher,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	deps LiveDeps,
) *LiveTrader {
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	return &LiveTrader{
		cfg: cfg, engine: engine, feed: feed, executor: executor, trades: trades,
		publisher: publisher, metrics: metrics, log: log.With(applogger.String("symbol", cfg.Symbol)),
		positions: deps.Positions, decisions: deps.Decisions, locker: deps.Locker,
		owner: uuid.NewString(),
		state: models.NewFlatPosition(cfg.Symbol),
	}
}

// Position returns the current position.
func (t *LiveTrader) Position() models.PositionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// LastDecision returns the most recent decision, if any.
func (t *LiveTrader) LastDecision() (models.Decision, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return models.Decision{}, false
	}
	return *t.last, true
}

// Run loops until ctx ends or the trade limit is reached. Iteration errors
// are logged and counted; the loop keeps going.
func (t *LiveTrader) Run(ctx context.Context) error {
	t.restore(ctx)
	t.log.Info("live trading started",
		applogger.String("position", string(t.Position().Side)),
		applogger.Int("max_trades", t.cfg.MaxTrades),
	)
	defer t.log.Info("live trading stopped", applogger.Int("buys", t.buys))

	for {
		if ctx.Err() != nil {
			return nil
		}
		if t.limitReached() {
			t.log.Info("max trades reached", applogger.Int("max_trades", t.cfg.MaxTrades))
			return nil
		}

		primary, secondary, err := t.feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.metrics.RecordError("feed")
			t.log.Error("fetch candles failed", applogger.Error(err))
			if sleepCtx(ctx, t.cfg.ErrorBackoff) != nil {
				return nil
			}
			continue
		}
		if err := t.Process(ctx, primary, secondary); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.metrics.RecordError("iteration")
			t.log.Error("iteration failed", applogger.Error(err))
		}
	}
}

func (t *LiveTrader) limitReached() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg.MaxTrades > 0 && t.buys >= t.cfg.MaxTrades && !t.state.IsLong()
}

// restore loads the stored position and continues the live log numbering.
func (t *LiveTrader) restore(ctx context.Context) {
	if t.positions != nil {
		p, err := t.positions.Load(ctx, t.cfg.Symbol)
		switch {
		case err == nil:
			t.state = p
		case errors.Is(err, models.ErrNoPosition):
		default:
			t.log.Warn("load position failed", applogger.Error(err))
		}
	}
	seq := 0
	if prev, err := t.trades.Load(ctx, models.SourceLive); err == nil {
		for _, r := range prev {
			seq = max(seq, r.Sequence)
		}
	}
	t.book = NewTradeBook(t.cfg.Symbol, models.SourceLive, t.cfg.Commission, seq)
}

// Process evaluates every primary candle closed since the last evaluation,
// oldest first. On the first call only the latest candle is evaluated.
func (t *LiveTrader) Process(ctx context.Context, primary, secondary []models.Candle) error {
	if len(primary) == 0 {
		return models.ErrInsufficientData
	}
	if t.book == nil {
		t.restore(ctx)
	}
	start := time.Now()

	if t.locker != nil {
		ok, err := t.locker.Lock(ctx, t.cfg.Symbol, t.owner, t.cfg.LockTTL)
		if err != nil {
			return err
		}
		if !ok {
			t.log.Warn("evaluation lock held by another process")
			return nil
		}
		defer func() {
			if err := t.locker.Unlock(context.WithoutCancel(ctx), t.cfg.Symbol, t.owner); err != nil {
				t.log.Warn("unlock failed", applogger.Error(err))
			}
		}()
		if t.positions != nil {
			if p, err := t.positions.Load(ctx, t.cfg.Symbol); err == nil {
				t.setState(p)
			}
		}
	}

	t.mu.RLock()
	lastEvaluated := t.lastEvaluated
	t.mu.RUnlock()

	from := len(primary) - 1
	if !lastEvaluated.IsZero() {
		for from > 0 && primary[from-1].CloseTime.After(lastEvaluated) {
			from--
		}
	}
	for i := from; i < len(primary); i++ {
		at := primary[i].CloseTime
		if !at.After(lastEvaluated) {
			continue
		}
		t.step(ctx, primary[:i+1], secondary, at)
		lastEvaluated = at
	}
	t.mu.Lock()
	t.lastEvaluated = lastEvaluated
	t.mu.Unlock()

	last := primary[len(primary)-1]
	t.metrics.RecordLastPrice(t.cfg.Symbol, last.Close.InexactFloat64())
	t.metrics.RecordLatency("live_iteration", time.Since(start).Seconds())
	return nil
}

func (t *LiveTrader) step(ctx context.Context, primary, secondary []models.Candle, at time.Time) {
	state := t.Position()
	d := t.engine.Step(state, primary, secondary, at)

	t.mu.Lock()
	t.last = &d
	t.mu.Unlock()
	t.metrics.RecordDecision(d.Symbol, d.Action)
	t.log.Info("decision",
		applogger.Time("at", at),
		applogger.String("action", string(d.Action)),
		applogger.String("price", d.PriceReference.String()),
		applogger.Any("reasons", d.Reasons),
	)
	if t.decisions != nil {
		if err := t.decisions.SaveDecision(ctx, d); err != nil {
			t.log.Warn("cache decision failed", applogger.Error(err))
		}
	}
	if err := t.publisher.PublishDecision(ctx, d); err != nil {
		t.log.Warn("publish decision failed", applogger.Error(err))
	}
	if !d.IsTrade() {
		return
	}

	fill, err := t.executor.Execute(ctx, d, state)
	if err != nil {
		t.metrics.RecordError("execution")
		t.log.Error("execution failed; position unchanged",
			applogger.String("action", string(d.Action)),
			applogger.Error(err),
		)
		return
	}
	next, err := t.engine.Transition(state, d, fill)
	if err != nil {
		t.metrics.RecordError("transition")
		t.log.Error("transition rejected", applogger.Error(err))
		return
	}
	rec, recErr := t.book.Record(fill, state)
	if recErr != nil {
		t.metrics.RecordError("record")
		t.log.Error("trade record failed", applogger.Error(recErr))
	}

	if t.positions != nil {
		if err := t.positions.Save(ctx, next); err != nil {
			t.metrics.RecordError("position_save")
			t.log.Error("save position failed", applogger.Error(err))
		}
	}
	t.mu.Lock()
	t.state = next
	if fill.Side == models.SideBuy {
		t.buys++
	}
	t.mu.Unlock()

	if recErr != nil {
		return
	}
	if err := t.trades.Append(ctx, rec); err != nil {
		t.metrics.RecordError("trade_log")
		t.log.Error("append trade failed", applogger.Error(err))
	}
	t.metrics.RecordTrade(rec.Source, rec.Side)
	if err := t.publisher.PublishTrade(ctx, rec); err != nil {
		t.log.Warn("publish trade failed", applogger.Error(err))
	}
	t.log.Info("trade recorded",
		applogger.Int("sequence", rec.Sequence),
		applogger.String("side", string(rec.Side)),
		applogger.String("price", fill.Price.String()),
	)
}

func (t *LiveTrader) setState(p models.PositionState) {
	t.mu.Lock()
	t.state = p
	t.mu.Unlock()
}
