package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ParityBot/internal/domain/models"
	"ParityBot/internal/repository"
	"ParityBot/internal/services/matcher"
	"ParityBot/internal/usecase"
	"ParityBot/pkg/cache"
	xhttp "ParityBot/pkg/http"
	"ParityBot/pkg/metrics"
	applogger "ParityBot/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestEcho(t *testing.T, dir string) (*echo.Echo, *repository.StateStore) {
	t.Helper()
	store := repository.NewStateStore(cache.NewMemoryCache(), time.Hour)
	uc := usecase.NewMatchUseCase(matcher.DefaultConfig(), 10, metrics.Nop{}, applogger.Nop())
	h := NewParityEchoHandler(applogger.Nop(), "BTCUSDT", store, uc, TradeFiles{
		Dir: dir, Reference: "backtest_trades.csv", Candidate: "live_trades.csv",
	})
	h.AddHealthCheck("cache", func(context.Context) error { return nil })
	srv := xhttp.NewServer([]xhttp.Handler{h}, xhttp.WithMetricsPath(""))
	return srv.Echo(), store
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestHealth(t *testing.T) {
	e, _ := newTestEcho(t, t.TempDir())
	code, env := do(t, e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"cache":"ok"}`, string(env.Data))
}

func TestHealthFailingCheck(t *testing.T) {
	store := repository.NewStateStore(cache.NewMemoryCache(), time.Hour)
	h := NewParityEchoHandler(applogger.Nop(), "BTCUSDT", store, nil, TradeFiles{})
	h.AddHealthCheck("clickhouse", func(context.Context) error { return errors.New("connection refused") })
	e := echo.New()
	h.RegisterRoutes(e)

	code, env := do(t, e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, http.StatusServiceUnavailable, env.Status)
	assert.Contains(t, string(env.Data), "connection refused")
}

func TestPositionAndDecision(t *testing.T) {
	e, store := newTestEcho(t, t.TempDir())

	code, env := do(t, e, http.MethodGet, "/api/position", "")
	require.Equal(t, http.StatusOK, code)
	var pos models.PositionState
	require.NoError(t, json.Unmarshal(env.Data, &pos))
	assert.Equal(t, models.Flat, pos.Side)

	code, _ = do(t, e, http.MethodGet, "/api/decisions/latest", "")
	assert.Equal(t, http.StatusNotFound, code)

	at := time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, models.PositionState{
		Symbol: "BTCUSDT", Side: models.Long, EntryTime: at,
		EntryPrice: decimal.NewFromInt(100), Quantity: decimal.RequireFromString("0.001"),
	}))
	require.NoError(t, store.SaveDecision(ctx, models.Decision{
		Symbol: "BTCUSDT", Timestamp: at, Action: models.ActionBuy, PriceReference: decimal.NewFromInt(100),
	}))

	_, env = do(t, e, http.MethodGet, "/api/position", "")
	require.NoError(t, json.Unmarshal(env.Data, &pos))
	assert.Equal(t, models.Long, pos.Side)
	assert.Equal(t, "100", pos.EntryPrice.String())

	code, env = do(t, e, http.MethodGet, "/api/decisions/latest", "")
	require.Equal(t, http.StatusOK, code)
	var d models.Decision
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, models.ActionBuy, d.Action)
}

func TestMatchEndpoint(t *testing.T) {
	e, _ := newTestEcho(t, t.TempDir())
	body := `{
		"reference": [
			{"side": "BUY", "time": "2024-11-04T09:00:00Z", "price": "100"},
			{"side": "SELL", "time": "2024-11-04T10:00:00Z", "price": "110"}
		],
		"candidate": [
			{"side": "buy", "time": "2024-11-04T09:05:00Z", "price": "102"},
			{"side": "SELL", "time": "2024-11-04T10:05:01Z", "price": "110"}
		]
	}`
	code, env := do(t, e, http.MethodPost, "/api/match", body)
	require.Equal(t, http.StatusOK, code)

	var res models.MatchResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 0.5, res.MatchRate)
	assert.Equal(t, models.StatusMatched, res.Pairs[0].Status)
}

func TestMatchEndpointTolerances(t *testing.T) {
	e, _ := newTestEcho(t, t.TempDir())
	body := `{
		"reference": [{"side": "BUY", "time": "2024-11-04T09:00:00Z", "price": "100"}],
		"candidate": [{"side": "BUY", "time": "2024-11-04T09:09:00Z", "price": "104"}],
		"price_tolerance": 0.05,
		"time_tolerance": "10m"
	}`
	_, env := do(t, e, http.MethodPost, "/api/match", body)
	var res models.MatchResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1.0, res.MatchRate)
}

func TestMatchEndpointZeroLookahead(t *testing.T) {
	e, _ := newTestEcho(t, t.TempDir())
	trades := `
		"reference": [{"side": "BUY", "time": "2024-11-04T10:00:00Z", "price": "45000"}],
		"candidate": [
			{"side": "SELL", "time": "2024-11-04T09:59:00Z", "price": "45000"},
			{"side": "BUY", "time": "2024-11-04T10:01:00Z", "price": "45000"}
		]`

	tests := []struct {
		name    string
		body    string
		matched int
	}{
		{"default skips the leading candidate", `{` + trades + `}`, 1},
		{"explicit zero never skips", `{` + trades + `, "lookahead": 0}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, e, http.MethodPost, "/api/match", tt.body)
			require.Equal(t, http.StatusOK, code)
			var res models.MatchResult
			require.NoError(t, json.Unmarshal(env.Data, &res))
			assert.Equal(t, tt.matched, res.Matched)
		})
	}
}

func TestMatchEndpointRejects(t *testing.T) {
	e, _ := newTestEcho(t, t.TempDir())
	tests := []struct {
		name string
		body string
	}{
		{"bad side", `{"reference":[{"side":"HOLD","time":"2024-11-04T09:00:00Z","price":"1"}]}`},
		{"bad price", `{"reference":[{"side":"BUY","time":"2024-11-04T09:00:00Z","price":"abc"}]}`},
		{"bad tolerance", `{"price_tolerance": 2}`},
		{"bad duration", `{"time_tolerance": "soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := do(t, e, http.MethodPost, "/api/match", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}

func TestMatchFilesEndpoint(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2024, 11, 4, 9, 0, 0, 0, time.UTC)
	for name, src := range map[string]models.TradeSource{
		"backtest_trades.csv": models.SourceBacktest,
		"live_trades.csv":     models.SourceLive,
	} {
		l, err := repository.NewCSVTradeLog(filepath.Join(dir, name), true)
		require.NoError(t, err)
		require.NoError(t, l.Append(context.Background(), models.TradeRecord{
			Sequence: 1, Symbol: "BTCUSDT", Side: models.SideBuy, EntryTime: at,
			EntryPrice: decimal.NewFromInt(100), Quantity: decimal.RequireFromString("0.001"), Source: src,
		}))
		require.NoError(t, l.Close())
	}
	e, _ := newTestEcho(t, dir)

	code, env := do(t, e, http.MethodGet, "/api/match/files", "")
	require.Equal(t, http.StatusOK, code)
	var res models.MatchResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1.0, res.MatchRate)
	assert.Len(t, res.Pairs, 1)

	code, env = do(t, e, http.MethodGet, "/api/match/files?details=0", "")
	require.Equal(t, http.StatusOK, code)
	res = models.MatchResult{}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Matched)
	assert.Empty(t, res.Pairs)

	code, _ = do(t, e, http.MethodGet, "/api/match/files?candidate=missing.csv", "")
	assert.Equal(t, http.StatusNotFound, code)
}
