package di

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	domrepo "ParityBot/internal/domain/repository"
	"ParityBot/internal/handler/api"
	mid "ParityBot/internal/middleware"
	internalrepo "ParityBot/internal/repository"
	"ParityBot/internal/service/binance"
	"ParityBot/internal/services/indicators"
	"ParityBot/internal/services/matcher"
	"ParityBot/internal/services/strategy"
	"ParityBot/internal/usecase"
	"ParityBot/pkg/cache"
	pkgch "ParityBot/pkg/clickhouse"
	"ParityBot/pkg/config"
	xhttp "ParityBot/pkg/http"
	pkgkafka "ParityBot/pkg/kafka"
	applogger "ParityBot/pkg/logger"
	"ParityBot/pkg/metrics"
	"ParityBot/pkg/server"
	"ParityBot/pkg/util"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// TradeLogs are the logs the selected mode writes to. A nil log is not
// written by that mode.
type TradeLogs struct {
	Backtest domrepo.TradeLog
	Live     domrepo.TradeLog
}

// Timeframes are the parsed strategy timeframes.
type Timeframes struct {
	Primary   domrepo.Timeframe
	Secondary domrepo.Timeframe
}

// ProvideTimeframes parses strategy.{primary,secondary}_timeframe.
func ProvideTimeframes(cfg *config.Config) (Timeframes, error) {
	p, err := domrepo.ParseTimeframe(cfg.Strategy.PrimaryTimeframe)
	if err != nil {
		return Timeframes{}, fmt.Errorf("primary timeframe: %w", err)
	}
	s, err := domrepo.ParseTimeframe(cfg.Strategy.SecondaryTimeframe)
	if err != nil {
		return Timeframes{}, fmt.Errorf("secondary timeframe: %w", err)
	}
	if s.Duration() < p.Duration() {
		return Timeframes{}, fmt.Errorf("secondary timeframe %s is shorter than primary %s", s, p)
	}
	return Timeframes{Primary: p, Secondary: s}, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithClientID("paritybot"),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the app logger. With log.digest enabled, repeated
// warn/error lines are folded and shipped to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Digest.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Digest.Interval,
			CountThreshold: cfg.Log.Digest.Threshold,
			Topic:          cfg.Log.Digest.Topic,
			Service:        "paritybot",
			Publisher:      producer,
		})
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

func ProvideBinanceClient(cfg *config.Config, log *applogger.Logger) *binance.Client {
	return binance.NewClient(binance.Config{
		BaseURL:    cfg.Exchange.BaseURL,
		APIKey:     cfg.Exchange.APIKey,
		APISecret:  cfg.Exchange.APISecret,
		Timeout:    cfg.Exchange.Timeout,
		RecvWindow: cfg.Exchange.RecvWindow,
		RateLimit:  cfg.Exchange.RateLimit,
	}, log.With(applogger.String("component", "binance")))
}

// ProvideClickHouseClient connects and creates the schema, or returns nil
// when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithEndpoint(cfg.ClickHouse.Host, cfg.ClickHouse.Port, cfg.ClickHouse.UseHTTP),
		pkgch.WithLogin(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, 0, 0),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if err := client.InitSchema(ctx, pkgch.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCache returns Redis when enabled, an in-process cache otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := cache.NewRedisCache(ctx,
		cache.WithRedisServer(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, 0, 0),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

func ProvideStateStore(c cache.Service, cfg *config.Config) *internalrepo.StateStore {
	return internalrepo.NewStateStore(c, cfg.Redis.TTL)
}

// ProvideDecisionPipeline wraps the Kafka publisher, or a no-op publisher
// when Kafka is disabled.
func ProvideDecisionPipeline(producer *pkgkafka.Producer, cfg *config.Config, m *metrics.Recorder, log *applogger.Logger) *mid.DecisionPipeline {
	var next domrepo.DecisionPublisher = internalrepo.NopPublisher{}
	if producer != nil {
		next = internalrepo.NewKafkaPublisher(producer, cfg.Kafka.DecisionsTopic, cfg.Kafka.TradesTopic)
	}
	return mid.NewDecisionPipeline(next, m, log.With(applogger.String("component", "pipeline")),
		mid.WithBufferSize(2000),
		mid.WithBackoff(100*time.Millisecond, 5*time.Second),
		mid.WithSendTimeout(cfg.Kafka.PublishTimeout),
	)
}

// ProvideKafkaConsumer creates the trade sink consumer. It needs both Kafka
// and ClickHouse; otherwise nil.
func ProvideKafkaConsumer(cfg *config.Config, ch *pkgch.Client, m *metrics.Recorder, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || ch == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(log.With(applogger.String("component", "consumer")),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafka.Message, attempt int, err error) {
			m.RecordError("consume_" + topic)
			log.Warn("trade sink retry",
				applogger.String("topic", topic),
				applogger.String("key", string(km.Key)),
				applogger.Int("attempt", attempt),
				applogger.Error(err),
			)
		},
	})
	return consumer, nil
}

// ProvideTradeSink persists the trades topic into ClickHouse.
func ProvideTradeSink(cfg *config.Config, ch *pkgch.Client, m *metrics.Recorder, log *applogger.Logger) pkgkafka.MessageHandler {
	if !cfg.Kafka.Enabled || ch == nil {
		return nil
	}
	return usecase.NewTradeSink(cfg.Kafka.TradesTopic, internalrepo.NewCHTradeLog(ch, log), m)
}

// ProvideEngine builds the signal engine from strategy parameters.
func ProvideEngine(cfg *config.Config) *strategy.Engine {
	s := cfg.Strategy
	return strategy.NewEngine(s.Symbol, strategy.Params{
		Indicators: indicators.Params{
			FastPeriod:  s.FastPeriod,
			SlowPeriod:  s.SlowPeriod,
			TrendPeriod: s.TrendPeriod,
			RSIPeriod:   s.RSIPeriod,
			RSILookback: s.RSILookback,
		},
		RSIOverbought: s.RSIOverbought,
		RSIOversold:   s.RSIOversold,
	})
}

// ProvideHistoryLoader reads history through the ClickHouse candle cache
// when backtest.cache_candles is set.
func ProvideHistoryLoader(cfg *config.Config, client *binance.Client, ch *pkgch.Client, log *applogger.Logger) *usecase.HistoryLoader {
	var store domrepo.CandleStore
	if ch != nil && cfg.Backtest.CacheCandles {
		store = internalrepo.NewCHCandleStore(ch, log)
	}
	return usecase.NewHistoryLoader(client, store, log.With(applogger.String("component", "history")))
}

// ProvideTradeLogs opens the logs the mode writes. The backtest CSV starts
// empty on every run; the live CSV is appended to.
func ProvideTradeLogs(cfg *config.Config, mode server.Mode, ch *pkgch.Client, log *applogger.Logger) (TradeLogs, error) {
	if cfg.Output.TradeLog == "clickhouse" {
		if ch == nil {
			return TradeLogs{}, fmt.Errorf("clickhouse trade log requires clickhouse.enabled")
		}
		l := internalrepo.NewCHTradeLog(ch, log)
		return TradeLogs{Backtest: l, Live: l}, nil
	}

	var logs TradeLogs
	switch mode {
	case server.ModeBacktest:
		l, err := internalrepo.NewCSVTradeLog(filepath.Join(cfg.Output.Dir, cfg.Output.BacktestFile), true)
		if err != nil {
			return TradeLogs{}, err
		}
		logs.Backtest = l
	case server.ModeLive:
		l, err := internalrepo.NewCSVTradeLog(filepath.Join(cfg.Output.Dir, cfg.Output.LiveFile), false)
		if err != nil {
			return TradeLogs{}, err
		}
		logs.Live = l
	}
	return logs, nil
}

func ProvideBacktestRunner(
	cfg *config.Config,
	mode server.Mode,
	tfs Timeframes,
	engine *strategy.Engine,
	loader *usecase.HistoryLoader,
	logs TradeLogs,
	pipeline *mid.DecisionPipeline,
	m *metrics.Recorder,
	log *applogger.Logger,
) (*usecase.BacktestRunner, error) {
	if mode != server.ModeBacktest {
		return nil, nil
	}
	from, to, err := util.ResolveRange(cfg.Backtest.Start, cfg.Backtest.End, cfg.Backtest.Days, time.Now())
	if err != nil {
		return nil, fmt.Errorf("backtest range: %w", err)
	}
	qty, capital, commission, err := amounts(cfg)
	if err != nil {
		return nil, err
	}
	return usecase.NewBacktestRunner(usecase.BacktestConfig{
		Symbol:         cfg.Strategy.Symbol,
		Primary:        tfs.Primary,
		Secondary:      tfs.Secondary,
		From:           from,
		To:             to,
		Window:         cfg.Live.History,
		InitialCapital: capital,
		Commission:     commission,
	}, engine, loader, usecase.NewSimulatedExecutor(qty), logs.Backtest, pipeline, m,
		log.With(applogger.String("component", "backtest"))), nil
}

// ProvideCandleFeed builds the live feed selected by live.feed.
func ProvideCandleFeed(cfg *config.Config, mode server.Mode, tfs Timeframes, client *binance.Client, log *applogger.Logger) domrepo.CandleFeed {
	if mode != server.ModeLive {
		return nil
	}
	if cfg.Live.Feed == "stream" {
		return binance.NewStreamFeed(binance.StreamConfig{
			URL:            cfg.Exchange.StreamURL,
			Symbol:         cfg.Strategy.Symbol,
			Primary:        tfs.Primary,
			Secondary:      tfs.Secondary,
			History:        cfg.Live.History,
			SettleDelay:    cfg.Live.SettleDelay,
			PingInterval:   cfg.Exchange.PingInterval,
			ReconnectDelay: cfg.Live.ReconnectDelay,
		}, client, log.With(applogger.String("component", "stream")))
	}
	return usecase.NewPollingFeed(client, usecase.PollConfig{
		Symbol:      cfg.Strategy.Symbol,
		Primary:     tfs.Primary,
		Secondary:   tfs.Secondary,
		History:     cfg.Live.History,
		SettleDelay: cfg.Live.SettleDelay,
		MinLead:     cfg.Live.MinLead,
		Retries:     cfg.Live.Retries,
		RetryDelay:  cfg.Live.RetryDelay,
	}, log.With(applogger.String("component", "poller")))
}

func ProvideLiveTrader(
	cfg *config.Config,
	engine *strategy.Engine,
	feed domrepo.CandleFeed,
	client *binance.Client,
	logs TradeLogs,
	pipeline *mid.DecisionPipeline,
	store *internalrepo.StateStore,
	m *metrics.Recorder,
	log *applogger.Logger,
) (*usecase.LiveTrader, error) {
	if feed == nil {
		return nil, nil
	}
	if !cfg.Live.DryRun && !cfg.LiveCredentials() {
		return nil, fmt.Errorf("live trading needs exchange.api_key and exchange.api_secret (or set live.dry_run)")
	}
	qty, _, commission, err := amounts(cfg)
	if err != nil {
		return nil, err
	}
	exec := binance.NewExecutor(client, qty, cfg.Live.DryRun, log.With(applogger.String("component", "executor"), applogger.Bool("dry_run", cfg.Live.DryRun)))
	return usecase.NewLiveTrader(usecase.LiveConfig{
		Symbol:       cfg.Strategy.Symbol,
		MaxTrades:    cfg.Live.MaxTrades,
		LockTTL:      cfg.Live.LockTTL,
		Commission:   commission,
		ErrorBackoff: cfg.Live.ErrorBackoff,
	}, engine, feed, exec, logs.Live, pipeline, m, log.With(applogger.String("component", "live")),
		usecase.LiveDeps{Positions: store, Decisions: store, Locker: store}), nil
}

func ProvideMatchUseCase(cfg *config.Config, m *metrics.Recorder, log *applogger.Logger) *usecase.MatchUseCase {
	return usecase.NewMatchUseCase(matcher.Config{
		PriceTolerance: decimal.NewFromFloat(cfg.Matcher.PriceTolerance),
		TimeTolerance:  cfg.Matcher.TimeTolerance,
		Lookahead:      cfg.Matcher.Lookahead,
	}, cfg.Matcher.Details, m, log.With(applogger.String("component", "matcher")))
}

// ProvideMatchSources points match mode at ClickHouse or the CSV files.
func ProvideMatchSources(cfg *config.Config, ch *pkgch.Client, log *applogger.Logger) server.MatchSources {
	src := server.MatchSources{
		ReferencePath: filepath.Join(cfg.Output.Dir, cfg.Output.BacktestFile),
		CandidatePath: filepath.Join(cfg.Output.Dir, cfg.Output.LiveFile),
	}
	if cfg.Output.ReportXLSX != "" {
		src.Reports.XLSX = filepath.Join(cfg.Output.Dir, cfg.Output.ReportXLSX)
	}
	if cfg.Output.ReportCSV != "" {
		src.Reports.CSV = filepath.Join(cfg.Output.Dir, cfg.Output.ReportCSV)
	}
	if cfg.Output.TradeLog == "clickhouse" && ch != nil {
		l := internalrepo.NewCHTradeLog(ch, log)
		src.Reference, src.Candidate = l, l
	}
	return src
}

// ProvideHTTPServer registers the parity API and /metrics.
func ProvideHTTPServer(
	cfg *config.Config,
	store *internalrepo.StateStore,
	match *usecase.MatchUseCase,
	ch *pkgch.Client,
	log *applogger.Logger,
) *xhttp.Server {
	h := api.NewParityEchoHandler(log, cfg.Strategy.Symbol, store, match, api.TradeFiles{
		Dir:       cfg.Output.Dir,
		Reference: cfg.Output.BacktestFile,
		Candidate: cfg.Output.LiveFile,
	})
	if ch != nil {
		h.AddHealthCheck("clickhouse", ch.Health)
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer([]xhttp.Handler{h},
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithLogger(log.With(applogger.String("component", "http"))),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	mode server.Mode,
	log *applogger.Logger,
	backtest *usecase.BacktestRunner,
	live *usecase.LiveTrader,
	match *usecase.MatchUseCase,
	sources server.MatchSources,
	pipeline *mid.DecisionPipeline,
	consumer *pkgkafka.Consumer,
	sink pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
	feed domrepo.CandleFeed,
	logs TradeLogs,
	c cache.Service,
	ch *pkgch.Client,
) *server.App {
	var closers []io.Closer
	if feed != nil {
		closers = append(closers, feed)
	}
	if logs.Backtest != nil {
		closers = append(closers, logs.Backtest)
	}
	if logs.Live != nil && logs.Live != logs.Backtest {
		closers = append(closers, logs.Live)
	}
	closers = append(closers, c)
	if ch != nil {
		closers = append(closers, ch)
	}
	return server.New(cfg, mode, log, server.Components{
		Backtest: backtest,
		Live:     live,
		Match:    match,
		Logs:     sources,
		Pipeline: pipeline,
		Consumer: consumer,
		Sink:     sink,
		HTTP:     httpServer,
		Closers:  closers,
	})
}

// amounts parses the decimal strategy and backtest settings.
func amounts(cfg *config.Config) (qty, capital, commission decimal.Decimal, err error) {
	if qty, err = decimal.NewFromString(cfg.Strategy.Quantity); err != nil || !qty.IsPositive() {
		return qty, capital, commission, fmt.Errorf("strategy.quantity %q must be a positive number", cfg.Strategy.Quantity)
	}
	if capital, err = decimal.NewFromString(cfg.Backtest.InitialCapital); err != nil {
		return qty, capital, commission, fmt.Errorf("backtest.initial_capital: %w", err)
	}
	if commission, err = decimal.NewFromString(cfg.Backtest.Commission); err != nil {
		return qty, capital, commission, fmt.Errorf("backtest.commission: %w", err)
	}
	return qty, capital, commission, nil
}
