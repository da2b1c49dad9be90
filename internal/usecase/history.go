package usecase

import (
	"context"
	"fmt"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	applogger "ParityBot/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// HistoryLoader fetches primary and secondary history concurrently. With a
// store configured, complete ranges are served from it and fetched ranges
// are written back.
type HistoryLoader struct {
	source domrepo.CandleSource
	store  domrepo.CandleStore
	log    *applogger.Logger
}

// NewHistoryLoader accepts a nil store.
func NewHistoryLoader(source domrepo.CandleSource, store domrepo.CandleStore, log *applogger.Logger) *HistoryLoader {
	return &HistoryLoader{source: source, store: store, log: log}
}

// Window is one timeframe's request.
type Window struct {
	Timeframe domrepo.Timeframe
	From, To  time.Time
}

// Load returns candles for both windows.
func (h *HistoryLoader) Load(ctx context.Context, symbol string, primary, secondary Window) ([]models.Candle, []models.Candle, error) {
	var p, s []models.Candle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p, err = h.load(gctx, symbol, primary)
		return err
	})
	g.Go(func() error {
		var err error
		s, err = h.load(gctx, symbol, secondary)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return p, s, nil
}

func (h *HistoryLoader) load(ctx context.Context, symbol string, w Window) ([]models.Candle, error) {
	expected := int(w.To.Sub(w.From) / w.Timeframe.Duration())
	if h.store != nil {
		cached, err := h.store.GetCandles(ctx, symbol, w.Timeframe, w.From, w.To)
		switch {
		case err != nil:
			h.log.Warn("candle cache read failed", applogger.String("tf", w.Timeframe.String()), applogger.Error(err))
		case len(cached) >= expected && expected > 0:
			h.log.Info("candles served from cache",
				applogger.String("tf", w.Timeframe.String()),
				applogger.Int("count", len(cached)),
			)
			return cached, nil
		}
	}

	candles, err := h.source.GetCandles(ctx, symbol, w.Timeframe, w.From, w.To)
	if err != nil {
		return nil, fmt.Errorf("load %s history: %w", w.Timeframe, err)
	}
	if h.store != nil && len(candles) > 0 {
		if err := h.store.StoreCandles(ctx, w.Timeframe, candles); err != nil {
			h.log.Warn("candle cache write failed", applogger.String("tf", w.Timeframe.String()), applogger.Error(err))
		}
	}
	h.log.Info("history loaded",
		applogger.String("symbol", symbol),
		applogger.String("tf", w.Timeframe.String()),
		applogger.Int("count", len(candles)),
		applogger.Int("expected", expected),
	)
	return candles, nil
}
