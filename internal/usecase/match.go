package usecase

import (
	"context"
	"fmt"
	"io"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	"ParityBot/internal/repository"
	"ParityBot/internal/services/matcher"
	applogger "ParityBot/pkg/logger"
)

// ReportPaths names the optional report files written after a match.
type ReportPaths struct {
	CSV  string
	XLSX string
}

// MatchUseCase compares a backtest trade log with a live one.
type MatchUseCase struct {
	cfg     matcher.Config
	details int
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewMatchUseCase(cfg matcher.Config, details int, metrics domrepo.Metrics, log *applogger.Logger) *MatchUseCase {
	return &MatchUseCase{cfg: cfg, details: details, metrics: metrics, log: log}
}

func (u *MatchUseCase) Config() matcher.Config { return u.cfg }

// Match runs the matcher with the configured tolerances.
func (u *MatchUseCase) Match(reference, candidate []models.TradeRecord) models.MatchResult {
	return u.MatchWith(u.cfg, reference, candidate)
}

// MatchWith runs the matcher with explicit tolerances.
func (u *MatchUseCase) MatchWith(cfg matcher.Config, reference, candidate []models.TradeRecord) models.MatchResult {
	start := time.Now()
	res := matcher.New(cfg).Match(reference, candidate)
	u.metrics.RecordMatchRate(res.MatchRate)
	u.metrics.RecordLatency("match", time.Since(start).Seconds())
	u.log.Info("trades matched",
		applogger.Int("reference", res.ReferenceCount),
		applogger.Int("candidate", res.CandidateCount),
		applogger.Int("matched", res.Matched),
		applogger.Float64("match_rate", res.MatchRate),
	)
	return res
}

// MatchFiles loads two CSV trade logs and matches them.
func (u *MatchUseCase) MatchFiles(referencePath, candidatePath string) (models.MatchResult, error) {
	ref, err := repository.LoadTradeCSV(referencePath, "")
	if err != nil {
		return models.MatchResult{}, fmt.Errorf("reference log: %w", err)
	}
	cand, err := repository.LoadTradeCSV(candidatePath, "")
	if err != nil {
		return models.MatchResult{}, fmt.Errorf("candidate log: %w", err)
	}
	return u.Match(ref, cand), nil
}

// MatchLogs loads backtest trades from reference and live trades from
// candidate. Both may be the same store.
func (u *MatchUseCase) MatchLogs(ctx context.Context, reference, candidate domrepo.TradeLog) (models.MatchResult, error) {
	ref, err := reference.Load(ctx, models.SourceBacktest)
	if err != nil {
		return models.MatchResult{}, fmt.Errorf("load backtest trades: %w", err)
	}
	cand, err := candidate.Load(ctx, models.SourceLive)
	if err != nil {
		return models.MatchResult{}, fmt.Errorf("load live trades: %w", err)
	}
	return u.Match(ref, cand), nil
}

// Report renders the text report to w and writes the configured files.
func (u *MatchUseCase) Report(w io.Writer, res models.MatchResult, paths ReportPaths) error {
	if err := matcher.WriteReport(w, res, u.cfg, u.details); err != nil {
		return err
	}
	if paths.CSV != "" {
		if err := repository.ExportMatchCSV(paths.CSV, res); err != nil {
			return fmt.Errorf("csv report: %w", err)
		}
	}
	if paths.XLSX != "" {
		tol, _ := u.cfg.PriceTolerance.Float64()
		if err := repository.ExportMatchXLSX(paths.XLSX, res, tol, u.cfg.TimeTolerance.Seconds()); err != nil {
			return fmt.Errorf("xlsx report: %w", err)
		}
	}
	return nil
}
