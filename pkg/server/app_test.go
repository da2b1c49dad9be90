package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"ParityBot/internal/domain/models"
	"ParityBot/internal/repository"
	"ParityBot/internal/services/matcher"
	"ParityBot/internal/usecase"
	"ParityBot/pkg/config"
	applogger "ParityBot/pkg/logger"
	"ParityBot/pkg/metrics"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeRecorder struct {
	names *[]string
	name  string
	err   error
}

func (c closeRecorder) Close() error {
	*c.names = append(*c.names, c.name)
	return c.err
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"backtest", "live", "match", "serve"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}
	_, err := ParseMode("paper")
	assert.Error(t, err)
}

func TestRunMatchMode(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)
	paths := map[models.TradeSource]string{
		models.SourceBacktest: filepath.Join(dir, "backtest_trades.csv"),
		models.SourceLive:     filepath.Join(dir, "live_trades.csv"),
	}
	for src, path := range paths {
		l, err := repository.NewCSVTradeLog(path, true)
		require.NoError(t, err)
		require.NoError(t, l.Append(context.Background(), models.TradeRecord{
			Sequence: 1, Symbol: "BTCUSDT", Side: models.SideBuy, EntryTime: at,
			EntryPrice: decimal.NewFromInt(100), Quantity: decimal.RequireFromString("0.001"), Source: src,
		}))
		require.NoError(t, l.Close())
	}

	cfg, err := config.Default()
	require.NoError(t, err)
	var closed []string
	app := New(cfg, ModeMatch, applogger.Nop(), Components{
		Match: usecase.NewMatchUseCase(matcher.DefaultConfig(), 10, metrics.Nop{}, applogger.Nop()),
		Logs: MatchSources{
			ReferencePath: paths[models.SourceBacktest],
			CandidatePath: paths[models.SourceLive],
			Reports:       usecase.ReportPaths{CSV: filepath.Join(dir, "report.csv")},
		},
		Closers: []io.Closer{
			closeRecorder{names: &closed, name: "logs"},
			closeRecorder{names: &closed, name: "cache", err: errors.New("already closed")},
		},
	})
	var out bytes.Buffer
	app.out = &out

	require.NoError(t, app.Run(context.Background()))
	assert.Contains(t, out.String(), "TRADE MATCHING REPORT")
	assert.Contains(t, out.String(), "Match rate         : 100.00%")
	assert.FileExists(t, filepath.Join(dir, "report.csv"))
	assert.Equal(t, []string{"logs", "cache"}, closed)
}

func TestRunMissingComponent(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	for _, mode := range []Mode{ModeBacktest, ModeLive, ModeMatch} {
		app := New(cfg, mode, applogger.Nop(), Components{})
		assert.Error(t, app.Run(context.Background()), mode)
	}
}

func TestRunServeStopsOnCancel(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	app := New(cfg, ModeServe, applogger.Nop(), Components{})

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve mode did not stop")
	}
}
