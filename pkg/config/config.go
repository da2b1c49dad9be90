package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		// Digest forwards repeated warn/error logs to Kafka.
		Digest struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"parity.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"digest"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		CORS            bool          `yaml:"cors" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Strategy struct {
		Symbol             string  `yaml:"symbol" default:"BTCUSDT" validate:"required,uppercase"`
		PrimaryTimeframe   string  `yaml:"primary_timeframe" default:"1m" validate:"required"`
		SecondaryTimeframe string  `yaml:"secondary_timeframe" default:"3m" validate:"required"`
		FastPeriod         int     `yaml:"fast_period" default:"5" validate:"gt=0"`
		SlowPeriod         int     `yaml:"slow_period" default:"10" validate:"gtfield=FastPeriod"`
		TrendPeriod        int     `yaml:"trend_period" default:"50" validate:"gt=0"`
		RSIPeriod          int     `yaml:"rsi_period" default:"14" validate:"gt=0"`
		RSILookback        int     `yaml:"rsi_lookback" default:"15" validate:"gtfield=RSIPeriod"`
		RSIOverbought      float64 `yaml:"rsi_overbought" default:"80" validate:"gt=0,lte=100"`
		RSIOversold        float64 `yaml:"rsi_oversold" default:"30" validate:"gte=0,ltfield=RSIOverbought"`
		Quantity           string  `yaml:"quantity" default:"0.001" validate:"numeric"`
	} `yaml:"strategy"`
	Matcher struct {
		PriceTolerance float64       `yaml:"price_tolerance" default:"0.02" validate:"gt=0,lte=1"`
		TimeTolerance  time.Duration `yaml:"time_tolerance" default:"5m" validate:"gt=0"`
		Lookahead      int           `yaml:"lookahead" default:"3" validate:"gte=0"`
		Details        int           `yaml:"details" default:"10" validate:"gte=0"`
	} `yaml:"matcher"`
	Live struct {
		Feed        string        `yaml:"feed" default:"poll" validate:"oneof=poll stream"`
		History     int           `yaml:"history" default:"100" validate:"gt=0"`
		SettleDelay time.Duration `yaml:"settle_delay" default:"2s"`
		MinLead     time.Duration `yaml:"min_lead" default:"5s"`
		MaxTrades   int           `yaml:"max_trades" default:"0" validate:"gte=0"`
		DryRun      bool          `yaml:"dry_run" default:"true"`
		LockTTL     time.Duration `yaml:"lock_ttl" default:"1m"`
		// Retries bounds re-polls while the exchange lags behind a boundary.
		Retries        int           `yaml:"retries" default:"5" validate:"gte=0"`
		RetryDelay     time.Duration `yaml:"retry_delay" default:"2s"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"3s"`
		ErrorBackoff   time.Duration `yaml:"error_backoff" default:"5s"`
	} `yaml:"live"`
	Backtest struct {
		Start          string `yaml:"start" default:"2024-11-01"`
		End            string `yaml:"end" default:"2024-12-27"`
		Days           int    `yaml:"days" default:"30" validate:"gte=0"`
		CacheCandles   bool   `yaml:"cache_candles"`
		InitialCapital string `yaml:"initial_capital" default:"10000" validate:"numeric"`
		Commission     string `yaml:"commission" default:"0" validate:"numeric"`
	} `yaml:"backtest"`
	Exchange struct {
		BaseURL      string        `yaml:"base_url" default:"https://testnet.binance.vision" validate:"url"`
		StreamURL    string        `yaml:"stream_url" default:"wss://testnet.binance.vision/ws"`
		APIKey       string        `yaml:"api_key"`
		APISecret    string        `yaml:"api_secret"`
		Timeout      time.Duration `yaml:"timeout" default:"10s"`
		RecvWindow   int           `yaml:"recv_window" default:"5000"`
		RateLimit    int           `yaml:"rate_limit" default:"10" validate:"gt=0"`
		PingInterval time.Duration `yaml:"ping_interval" default:"3m"`
	} `yaml:"exchange"`
	Output struct {
		Dir          string `yaml:"dir" default:"."`
		BacktestFile string `yaml:"backtest_file" default:"backtest_trades.csv"`
		LiveFile     string `yaml:"live_file" default:"live_trades.csv"`
		ReportXLSX   string `yaml:"report_xlsx" default:"match_report.xlsx"`
		ReportCSV    string `yaml:"report_csv"`
		TradeLog     string `yaml:"trade_log" default:"csv" validate:"oneof=csv clickhouse"`
	} `yaml:"output"`
	Kafka struct {
		Enabled        bool          `yaml:"enabled"`
		Brokers        []string      `yaml:"brokers" default:"[\"localhost:9092\"]"`
		DecisionsTopic string        `yaml:"decisions_topic" default:"parity.decisions"`
		TradesTopic    string        `yaml:"trades_topic" default:"parity.trades"`
		RequiredAcks   int           `yaml:"required_acks" default:"-1"`
		Compression    string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		// PublishTimeout bounds how long a trading loop waits on the broker
		// before the event is buffered for retry.
		PublishTimeout time.Duration `yaml:"publish_timeout" default:"2s" validate:"gt=0"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"paritybot-trade-sink"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"parity.trades.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"paritybot"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert" default:"true"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		MaxOpenConns     int           `yaml:"max_open_conns" default:"10" validate:"gte=0"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool          `yaml:"enabled"`
		Addr     string        `yaml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		PoolSize int           `yaml:"pool_size" default:"10" validate:"gte=0"`
		Prefix   string        `yaml:"prefix" default:"paritybot"`
		TTL      time.Duration `yaml:"ttl" default:"720h"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Default returns a config with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (when present), the YAML file, then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		c.Strategy.Symbol = strings.ToUpper(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("LIVE_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Live.DryRun = b
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Output.TradeLog == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("output.trade_log=clickhouse requires clickhouse.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}

// LiveCredentials reports whether signed exchange calls are possible.
func (c *Config) LiveCredentials() bool {
	return c.Exchange.APIKey != "" && c.Exchange.APISecret != ""
}
