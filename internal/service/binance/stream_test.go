package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ParityBot/internal/domain/models"
	drepo "ParityBot/internal/domain/repository"
	applogger "ParityBot/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource map[drepo.Timeframe][]models.Candle

func (s staticSource) GetCandles(context.Context, string, drepo.Timeframe, time.Time, time.Time) ([]models.Candle, error) {
	return nil, nil
}

func (s staticSource) GetLatestCandles(_ context.Context, _ string, tf drepo.Timeframe, _ int) ([]models.Candle, error) {
	return s[tf], nil
}

func candleAt(tf drepo.Timeframe, open time.Time, price int64) models.Candle {
	p := decimal.NewFromInt(price)
	return models.Candle{Symbol: "BTCUSDT", OpenTime: open, CloseTime: open.Add(tf.Duration()), Open: p, High: p, Low: p, Close: p}
}

func klineFrame(tf drepo.Timeframe, open time.Time, price int, closed bool) string {
	return fmt.Sprintf(`{"stream":"btcusdt@kline_%s","data":{"e":"kline","s":"BTCUSDT","k":{"t":%d,"i":"%s","o":"%d","c":"%d","h":"%d","l":"%d","v":"1","x":%t}}}`,
		tf, open.UnixMilli(), tf, price, price, price, price, closed)
}

func TestStreamFeedEmitsOnPrimaryClose(t *testing.T) {
	frames := []string{
		klineFrame(drepo.TF1m, t0.Add(3*time.Minute), 103, false),
		klineFrame(drepo.TF1m, t0.Add(3*time.Minute), 104, true),
		klineFrame(drepo.TF1m, t0.Add(4*time.Minute), 105, true),
		klineFrame(drepo.TF1m, t0.Add(5*time.Minute), 106, true),
		klineFrame(drepo.TF3m, t0.Add(3*time.Minute), 106, true),
	}

	var gotPath string
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for _, f := range frames {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(f)))
		}
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	source := staticSource{
		drepo.TF1m: {candleAt(drepo.TF1m, t0, 100), candleAt(drepo.TF1m, t0.Add(time.Minute), 101), candleAt(drepo.TF1m, t0.Add(2*time.Minute), 102)},
		drepo.TF3m: {candleAt(drepo.TF3m, t0, 101)},
	}
	feed := NewStreamFeed(StreamConfig{
		URL:         "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Symbol:      "BTCUSDT",
		Primary:     drepo.TF1m,
		Secondary:   drepo.TF3m,
		History:     4,
		SettleDelay: 500 * time.Millisecond,
	}, source, applogger.Nop())
	defer feed.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, s, err := feed.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, p, 3)
	assert.Len(t, s, 1)
	assert.Equal(t, "/stream?streams=btcusdt@kline_1m/btcusdt@kline_3m", gotPath)

	p, _, err = feed.Next(ctx)
	require.NoError(t, err)
	require.Len(t, p, 4)
	assert.True(t, decimal.NewFromInt(104).Equal(p[3].Close), "forming kline ignored")

	p, _, err = feed.Next(ctx)
	require.NoError(t, err)
	require.Len(t, p, 4, "history trimmed")
	assert.Equal(t, t0.Add(5*time.Minute), p[3].CloseTime)

	// 6m is also a 3m boundary: the feed waits for the secondary kline.
	p, s, err = feed.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(6*time.Minute), p[len(p)-1].CloseTime)
	require.Len(t, s, 2)
	assert.Equal(t, t0.Add(6*time.Minute), s[1].CloseTime)
}

func TestStreamFeedCancel(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	feed := NewStreamFeed(StreamConfig{
		URL:       "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbol:    "BTCUSDT",
		Primary:   drepo.TF1m,
		Secondary: drepo.TF3m,
	}, staticSource{}, applogger.Nop())
	defer feed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := feed.Next(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, _, err = feed.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
