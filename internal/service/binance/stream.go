package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ParityBot/internal/domain/models"
	drepo "ParityBot/internal/domain/repository"
	applogger "ParityBot/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// StreamConfig configures the kline websocket feed.
type StreamConfig struct {
	URL            string
	Symbol         string
	Primary        drepo.Timeframe
	Secondary      drepo.Timeframe
	History        int
	SettleDelay    time.Duration
	PingInterval   time.Duration
	ReconnectDelay time.Duration
}

// StreamFeed is a CandleFeed over the combined kline stream. History is
// seeded and gap-filled through REST; only closed klines are kept.
type StreamFeed struct {
	cfg    StreamConfig
	source drepo.CandleSource
	log    *applogger.Logger
	dialer *websocket.Dialer

	events chan streamEvent

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
	gen  int

	started   bool
	broken    bool
	primary   []models.Candle
	secondary []models.Candle
}

var _ drepo.CandleFeed = (*StreamFeed)(nil)

type streamEvent struct {
	gen    int
	tf     drepo.Timeframe
	candle models.Candle
	err    error
}

func NewStreamFeed(cfg StreamConfig, source drepo.CandleSource, log *applogger.Logger) *StreamFeed {
	if cfg.History <= 0 {
		cfg.History = 100
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &StreamFeed{
		cfg:    cfg,
		source: source,
		log:    log,
		dialer: websocket.DefaultDialer,
		events: make(chan streamEvent, 64),
	}
}

// Next returns the seeded history on the first call, then blocks until the
// next primary kline closes.
func (f *StreamFeed) Next(ctx context.Context) ([]models.Candle, []models.Candle, error) {
	if !f.started {
		if err := f.connect(ctx); err != nil {
			return nil, nil, err
		}
		if err := f.backfill(ctx); err != nil {
			return nil, nil, err
		}
		f.started = true
		p, s := f.snapshot()
		return p, s, nil
	}

	for {
		if f.broken {
			if err := f.reconnect(ctx); err != nil {
				return nil, nil, err
			}
			if f.broken {
				continue
			}
		}
		ev, err := f.recv(ctx, nil)
		if err != nil {
			return nil, nil, err
		}
		if ev.err != nil {
			f.log.Warn("kline stream dropped", applogger.Error(ev.err))
			f.broken = true
			continue
		}
		f.apply(ev)
		if ev.tf != f.cfg.Primary {
			continue
		}

		at := ev.candle.CloseTime
		if f.cfg.Secondary.Truncate(at).Equal(at) && !f.hasSecondaryClose(at) {
			if err := f.awaitSecondary(ctx, at); err != nil {
				return nil, nil, err
			}
		}
		p, s := f.snapshot()
		return p, s, nil
	}
}

// awaitSecondary gives the secondary kline closing together with the primary
// one up to SettleDelay to arrive.
func (f *StreamFeed) awaitSecondary(ctx context.Context, at time.Time) error {
	timer := time.NewTimer(f.cfg.SettleDelay)
	defer timer.Stop()
	for !f.hasSecondaryClose(at) {
		ev, err := f.recv(ctx, timer.C)
		if err != nil {
			return err
		}
		if ev.tf == "" && ev.err == nil {
			f.log.Debug("secondary kline late", applogger.Time("at", at))
			return nil
		}
		if ev.err != nil {
			f.broken = true
			return nil
		}
		f.apply(ev)
	}
	return nil
}

// recv waits for the next event of the current connection. A fired timeout
// yields the zero event.
func (f *StreamFeed) recv(ctx context.Context, timeout <-chan time.Time) (streamEvent, error) {
	for {
		select {
		case <-ctx.Done():
			return streamEvent{}, ctx.Err()
		case <-timeout:
			return streamEvent{}, nil
		case ev := <-f.events:
			f.mu.Lock()
			stale := ev.gen != f.gen
			f.mu.Unlock()
			if stale {
				continue
			}
			return ev, nil
		}
	}
}

func (f *StreamFeed) hasSecondaryClose(at time.Time) bool {
	n := len(f.secondary)
	return n > 0 && !f.secondary[n-1].CloseTime.Before(at)
}

func (f *StreamFeed) apply(ev streamEvent) {
	switch ev.tf {
	case f.cfg.Primary:
		f.primary = f.merge(f.primary, ev.candle)
	case f.cfg.Secondary:
		f.secondary = f.merge(f.secondary, ev.candle)
	}
}

func (f *StreamFeed) merge(series []models.Candle, c models.Candle) []models.Candle {
	n := len(series)
	switch {
	case n == 0 || series[n-1].OpenTime.Before(c.OpenTime):
		series = append(series, c)
	case series[n-1].OpenTime.Equal(c.OpenTime):
		series[n-1] = c
	default:
		return series
	}
	if len(series) > f.cfg.History {
		series = append(series[:0:0], series[len(series)-f.cfg.History:]...)
	}
	return series
}

func (f *StreamFeed) snapshot() ([]models.Candle, []models.Candle) {
	return append([]models.Candle(nil), f.primary...), append([]models.Candle(nil), f.secondary...)
}

// backfill merges the latest REST candles into the buffers.
func (f *StreamFeed) backfill(ctx context.Context) error {
	for _, tf := range []drepo.Timeframe{f.cfg.Primary, f.cfg.Secondary} {
		candles, err := f.source.GetLatestCandles(ctx, f.cfg.Symbol, tf, f.cfg.History)
		if err != nil {
			return fmt.Errorf("backfill %s: %w", tf, err)
		}
		for _, c := range candles {
			f.apply(streamEvent{tf: tf, candle: c})
		}
	}
	return nil
}

func (f *StreamFeed) reconnect(ctx context.Context) error {
	f.closeConn()
	t := time.NewTimer(f.cfg.ReconnectDelay)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}
	if err := f.connect(ctx); err != nil {
		f.log.Warn("kline stream reconnect failed", applogger.Error(err))
		return nil
	}
	if err := f.backfill(ctx); err != nil {
		f.log.Warn("kline backfill failed", applogger.Error(err))
	}
	f.broken = false
	return nil
}

// streamURL builds the combined stream address for both timeframes.
func (f *StreamFeed) streamURL() string {
	base := strings.TrimSuffix(strings.TrimRight(f.cfg.URL, "/"), "/ws")
	sym := strings.ToLower(f.cfg.Symbol)
	streams := []string{sym + "@kline_" + f.cfg.Primary.String(), sym + "@kline_" + f.cfg.Secondary.String()}
	return base + "/stream?streams=" + strings.Join(streams, "/")
}

func (f *StreamFeed) connect(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("kline stream connect: %w", err)
	}
	f.mu.Lock()
	f.gen++
	gen := f.gen
	f.conn = conn
	f.done = make(chan struct{})
	done := f.done
	f.mu.Unlock()

	f.log.Info("kline stream connected", applogger.String("symbol", f.cfg.Symbol))
	go f.readLoop(conn, gen, done)
	if f.cfg.PingInterval > 0 {
		go f.pingLoop(conn, done)
	}
	return nil
}

type wsEnvelope struct {
	Stream string `json:"stream"`
	Data   struct {
		Event  string `json:"e"`
		Symbol string `json:"s"`
		Kline  struct {
			OpenTime int64           `json:"t"`
			Interval string          `json:"i"`
			Open     decimal.Decimal `json:"o"`
			Close    decimal.Decimal `json:"c"`
			High     decimal.Decimal `json:"h"`
			Low      decimal.Decimal `json:"l"`
			Volume   decimal.Decimal `json:"v"`
			Closed   bool            `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (f *StreamFeed) readLoop(conn *websocket.Conn, gen int, done chan struct{}) {
	send := func(ev streamEvent) bool {
		ev.gen = gen
		select {
		case f.events <- ev:
			return true
		case <-done:
			return false
		}
	}
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				send(streamEvent{err: err})
			}
			return
		}
		var m wsEnvelope
		if err := json.Unmarshal(b, &m); err != nil || m.Data.Event != "kline" || !m.Data.Kline.Closed {
			continue
		}
		tf, err := drepo.ParseTimeframe(m.Data.Kline.Interval)
		if err != nil {
			continue
		}
		k := m.Data.Kline
		open := time.UnixMilli(k.OpenTime).UTC()
		if !send(streamEvent{tf: tf, candle: models.Candle{
			Symbol:    m.Data.Symbol,
			OpenTime:  open,
			CloseTime: open.Add(tf.Duration()),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		}}) {
			return
		}
	}
}

func (f *StreamFeed) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		}
	}
}

func (f *StreamFeed) closeConn() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	close(f.done)
	err := f.conn.Close()
	f.conn = nil
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

// Close tears down the websocket connection.
func (f *StreamFeed) Close() error { return f.closeConn() }
