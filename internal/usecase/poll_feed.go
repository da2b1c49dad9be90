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

// PollConfig configures PollingFeed.
type PollConfig struct {
	Symbol    string
	Primary   domrepo.Timeframe
	Secondary domrepo.Timeframe
	// History is how many closed candles are requested per timeframe.
	History int
	// SettleDelay is waited after a boundary before polling.
	SettleDelay time.Duration
	// MinLead: when less than this remains to the next poll, the poll moves
	// to the following boundary.
	MinLead time.Duration
	// Retries bounds re-polls while the exchange has not published the
	// candle that just closed.
	Retries    int
	RetryDelay time.Duration
}

// PollingFeed is a CandleFeed that polls a CandleSource once per primary
// candle close. The first call returns immediately.
type PollingFeed struct {
	source domrepo.CandleSource
	cfg    PollConfig
	log    *applogger.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	started  bool
	lastSeen time.Time
}

var _ domrepo.CandleFeed = (*PollingFeed)(nil)

func NewPollingFeed(source domrepo.CandleSource, cfg PollConfig, log *applogger.Logger) *PollingFeed {
	if cfg.History <= 0 {
		cfg.History = 100
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &PollingFeed{source: source, cfg: cfg, log: log, now: time.Now, sleep: sleepCtx}
}

// NextPoll returns when the feed polls after now: the next primary
// boundary plus SettleDelay. A boundary closer than MinLead is skipped; the
// trader catches up on the skipped candle from the returned history.
func (f *PollingFeed) NextPoll(now time.Time) time.Time {
	boundary := f.cfg.Primary.NextBoundary(now)
	if boundary.Sub(now) < f.cfg.MinLead {
		boundary = boundary.Add(f.cfg.Primary.Duration())
	}
	return boundary.Add(f.cfg.SettleDelay)
}

func (f *PollingFeed) Next(ctx context.Context) ([]models.Candle, []models.Candle, error) {
	if f.started {
		now := f.now()
		at := f.NextPoll(now)
		f.log.Debug("waiting for candle close", applogger.Time("poll_at", at))
		if err := f.sleep(ctx, at.Sub(now)); err != nil {
			return nil, nil, err
		}
	}
	f.started = true

	for attempt := 0; ; attempt++ {
		p, s, err := f.fetch(ctx)
		if err != nil {
			return nil, nil, err
		}
		if len(p) == 0 {
			return nil, nil, fmt.Errorf("poll %s: %w", f.cfg.Primary, models.ErrInsufficientData)
		}
		last := p[len(p)-1].CloseTime
		if last.After(f.lastSeen) || attempt >= f.cfg.Retries {
			if !last.After(f.lastSeen) {
				f.log.Warn("no new primary candle", applogger.Time("last_close", last))
			}
			f.lastSeen = last
			return p, s, nil
		}
		if err := f.sleep(ctx, f.cfg.RetryDelay); err != nil {
			return nil, nil, err
		}
	}
}

func (f *PollingFeed) fetch(ctx context.Context) ([]models.Candle, []models.Candle, error) {
	var p, s []models.Candle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p, err = f.source.GetLatestCandles(gctx, f.cfg.Symbol, f.cfg.Primary, f.cfg.History)
		return err
	})
	g.Go(func() error {
		var err error
		s, err = f.source.GetLatestCandles(gctx, f.cfg.Symbol, f.cfg.Secondary, f.cfg.History)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("poll candles: %w", err)
	}
	return p, s, nil
}

func (f *PollingFeed) Close() error { return nil }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
