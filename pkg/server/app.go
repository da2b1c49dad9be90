package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	"ParityBot/internal/middleware"
	"ParityBot/internal/usecase"
	"ParityBot/pkg/config"
	xhttp "ParityBot/pkg/http"
	pkgkafka "ParityBot/pkg/kafka"
	applogger "ParityBot/pkg/logger"
)

// Mode selects what one process run does.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
	ModeMatch    Mode = "match"
	ModeServe    Mode = "serve"
)

// ParseMode validates a -mode flag value.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeBacktest, ModeLive, ModeMatch, ModeServe:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (backtest, live, match or serve)", s)
	}
}

// serves reports whether the mode keeps the HTTP API and trade sink up.
func (m Mode) serves() bool { return m == ModeLive || m == ModeServe }

// Components are the mode-specific parts built by the injector. Nil fields
// are not used by the selected mode.
type Components struct {
	Backtest *usecase.BacktestRunner
	Live     *usecase.LiveTrader
	Match    *usecase.MatchUseCase
	Logs     MatchSources
	Pipeline *middleware.DecisionPipeline
	Consumer *pkgkafka.Consumer
	Sink     pkgkafka.MessageHandler
	HTTP     *xhttp.Server
	// Closers release infrastructure after everything else stopped, in order.
	Closers []io.Closer
}

// MatchSources tells match mode where to read the two trade logs from.
// With Reference/Candidate set the logs are stores; otherwise CSV paths.
type MatchSources struct {
	Reference     domrepo.TradeLog
	Candidate     domrepo.TradeLog
	ReferencePath string
	CandidatePath string
	Reports       usecase.ReportPaths
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg  *config.Config
	mode Mode
	log  *applogger.Logger
	c    Components
	out  io.Writer
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, mode Mode, log *applogger.Logger, c Components) *App {
	return &App{cfg: cfg, mode: mode, log: log, c: c, out: os.Stdout}
}

// Run executes the selected mode and blocks until it finishes or a signal
// arrives, then shuts everything down.
func (a *App) Run(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.c.Pipeline != nil {
		a.c.Pipeline.Start(ctx)
	}

	var httpErr <-chan error
	if a.mode.serves() {
		httpErr = a.startServing()
	}

	a.log.Info("app started", applogger.String("mode", string(a.mode)), applogger.String("env", a.cfg.Environment))
	runErr := a.runMode(ctx, httpErr)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *App) runMode(ctx context.Context, httpErr <-chan error) error {
	switch a.mode {
	case ModeBacktest:
		return a.runBacktest(ctx)
	case ModeLive:
		if a.c.Live == nil {
			return errors.New("live trader is not configured")
		}
		errc := make(chan error, 1)
		go func() { errc <- a.c.Live.Run(ctx) }()
		select {
		case err := <-errc:
			return err
		case err, ok := <-httpErr:
			if ok && err != nil {
				return err
			}
			return <-errc
		}
	case ModeMatch:
		return a.runMatch(ctx)
	case ModeServe:
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			return nil
		case err, ok := <-httpErr:
			if ok {
				return err
			}
			<-ctx.Done()
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", a.mode)
}

func (a *App) runBacktest(ctx context.Context) error {
	if a.c.Backtest == nil {
		return errors.New("backtest runner is not configured")
	}
	res, err := a.c.Backtest.Run(ctx)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}
	s := res.Summary
	fmt.Fprintf(a.out, "Backtest %s: %d decisions, %d trade records, %d round trips, win rate %.2f%%\n",
		a.cfg.Strategy.Symbol, s.Decisions, s.Records, s.RoundTrips, s.WinRate)
	fmt.Fprintf(a.out, "Total PnL %s (%.2f%%), final equity %s\n",
		s.TotalPnL.StringFixed(2), s.ReturnPct, s.FinalEquity.StringFixed(2))
	return nil
}

func (a *App) runMatch(ctx context.Context) error {
	if a.c.Match == nil {
		return errors.New("matcher is not configured")
	}
	src := a.c.Logs
	var (
		res models.MatchResult
		err error
	)
	if src.Reference != nil && src.Candidate != nil {
		res, err = a.c.Match.MatchLogs(ctx, src.Reference, src.Candidate)
	} else {
		res, err = a.c.Match.MatchFiles(src.ReferencePath, src.CandidatePath)
	}
	if err != nil {
		return fmt.Errorf("match: %w", err)
	}
	return a.c.Match.Report(a.out, res, src.Reports)
}

func (a *App) startServing() <-chan error {
	if a.c.Consumer != nil && a.c.Sink != nil {
		if err := a.c.Consumer.RegisterHandler(a.c.Sink); err != nil {
			a.log.Error("kafka handler register error", applogger.Error(err))
		} else if err := a.c.Consumer.Start(); err != nil {
			a.log.Error("kafka consumer error", applogger.Error(err))
		} else {
			a.log.Info("trade sink started", applogger.String("topic", a.c.Sink.Topic()))
		}
	}
	if a.c.HTTP == nil {
		return nil
	}
	return a.c.HTTP.Start()
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")
	start := time.Now()
	var errs []error

	if a.c.HTTP != nil && a.mode.serves() {
		if err := a.c.HTTP.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	if a.c.Consumer != nil && a.mode.serves() && a.c.Sink != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// flushes buffered events and closes the producer behind it
	if a.c.Pipeline != nil {
		if err := a.c.Pipeline.Close(); err != nil {
			a.log.Warn("pipeline close error", applogger.Error(err))
		}
	}

	for _, c := range a.c.Closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete", applogger.Duration("took", time.Since(start)))
	return errors.Join(errs...)
}
