package api

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"ParityBot/internal/domain/models"
	"ParityBot/internal/service/ratelimit"
	"ParityBot/internal/services/matcher"
	"ParityBot/internal/usecase"
	"ParityBot/pkg/cache"
	xhttp "ParityBot/pkg/http"
	applogger "ParityBot/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// StateReader exposes the persisted live state.
type StateReader interface {
	Load(ctx context.Context, symbol string) (models.PositionState, error)
	LatestDecision(ctx context.Context, symbol string) (models.Decision, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// TradeFiles names the CSV trade logs GET /api/match/files reads by default.
// Other file names are resolved inside Dir only.
type TradeFiles struct {
	Dir       string
	Reference string
	Candidate string
}

// ParityEchoHandler serves the live state and the trade matcher over Echo.
type ParityEchoHandler struct {
	logger *applogger.Logger
	symbol string
	state  StateReader
	match  *usecase.MatchUseCase
	files  TradeFiles
	checks map[string]HealthCheck
	rl     *ratelimit.Limiter
}

func NewParityEchoHandler(logger *applogger.Logger, symbol string, state StateReader, match *usecase.MatchUseCase, files TradeFiles) *ParityEchoHandler {
	return &ParityEchoHandler{
		logger: logger,
		symbol: symbol,
		state:  state,
		match:  match,
		files:  files,
		checks: map[string]HealthCheck{},
		rl:     ratelimit.New(5, 2),
	}
}

// AddHealthCheck registers a dependency probe for GET /health.
func (h *ParityEchoHandler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

func (h *ParityEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)

	g := e.Group("/api")
	g.GET("/position", h.Position)
	g.GET("/decisions/latest", h.LatestDecision)
	g.POST("/match", h.Match)
	g.GET("/match/files", h.MatchFiles)
}

func (h *ParityEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}
	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
	}
	return xhttp.SuccessResponse(c, status)
}

func (h *ParityEchoHandler) Position(c echo.Context) error {
	if h.state == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("state store is not configured"))
	}
	pos, err := h.state.Load(c.Request().Context(), h.symbol)
	if err != nil && !errors.Is(err, models.ErrNoPosition) {
		h.logger.Error("position load error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("position unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, pos)
}

func (h *ParityEchoHandler) LatestDecision(c echo.Context) error {
	if h.state == nil {
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("state store is not configured"))
	}
	d, err := h.state.LatestDecision(c.Request().Context(), h.symbol)
	if errors.Is(err, cache.ErrCacheMiss) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no decision yet"))
	}
	if err != nil {
		h.logger.Error("decision load error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("decision unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, d)
}

func (h *ParityEchoHandler) Match(c echo.Context) error {
	if !h.rl.Allow(c.RealIP() + ":match") {
		h.logger.Warn("match rate limited", applogger.String("remote", c.RealIP()))
		return xhttp.TooManyRequestsResponse(c)
	}
	req := &models.MatchRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	cfg, appErr := matchConfig(req)
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}
	ref, appErr := toTrades(req.Reference, models.SourceBacktest, "reference")
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}
	cand, appErr := toTrades(req.Candidate, models.SourceLive, "candidate")
	if appErr != nil {
		return xhttp.AppErrorResponse(c, appErr)
	}
	return xhttp.SuccessResponse(c, h.match.MatchWith(cfg, ref, cand))
}

func (h *ParityEchoHandler) MatchFiles(c echo.Context) error {
	req := &models.MatchFilesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.match.MatchFiles(h.resolve(req.Reference, h.files.Reference), h.resolve(req.Candidate, h.files.Candidate))
	if err != nil {
		h.logger.Warn("match files error", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("trade log unavailable").WithError(err))
	}
	if req.Details < len(res.Pairs) {
		res.Pairs = res.Pairs[:req.Details]
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ParityEchoHandler) resolve(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	return filepath.Join(h.files.Dir, filepath.Base(name))
}

func matchConfig(req *models.MatchRequest) (matcher.Config, *xhttp.AppError) {
	tol, err := time.ParseDuration(req.TimeTolerance)
	if err != nil || tol <= 0 {
		return matcher.Config{}, xhttp.BadRequestError("time_tolerance", "must be a positive duration such as 5m")
	}
	return matcher.Config{
		PriceTolerance: decimal.NewFromFloat(req.PriceTolerance),
		TimeTolerance:  tol,
		Lookahead:      req.Lookahead,
	}, nil
}

// toTrades numbers trades in request order when no sequence is given.
func toTrades(in []models.MatchTradeInput, source models.TradeSource, field string) ([]models.TradeRecord, *xhttp.AppError) {
	out := make([]models.TradeRecord, 0, len(in))
	for i, t := range in {
		side, ok := models.ParseSide(t.Side)
		if !ok {
			return nil, xhttp.BadRequestError(field, "side must be BUY or SELL").WithParam("index", i)
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			return nil, xhttp.BadRequestError(field, "price is not a number").WithParam("index", i)
		}
		seq := t.Sequence
		if seq <= 0 {
			seq = i + 1
		}
		rec := models.TradeRecord{Sequence: seq, Side: side, Source: source}
		if side == models.SideBuy {
			rec.EntryTime, rec.EntryPrice = t.Time, price
		} else {
			at := t.Time
			rec.ExitTime = &at
			rec.ExitPrice = decimal.NewNullDecimal(price)
			rec.EntryTime = t.EntryTime
			if t.EntryPrice != "" {
				rec.EntryPrice, _ = decimal.NewFromString(t.EntryPrice)
			}
		}
		out = append(out, rec)
	}
	return out, nil
}
