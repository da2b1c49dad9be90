package clickhouse

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ClientConfig describes one ClickHouse endpoint and its pool.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	UseHTTP  bool

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout time.Duration
	ReadTimeout time.Duration
	MaxExecTime time.Duration // rounded down to whole seconds

	AsyncInsert  bool
	WaitForAsync bool
}

type ClientOption func(*ClientConfig)

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     30 * time.Second,
	}
}

// WithEndpoint points the client at host:port. useHTTP switches from the
// native protocol to the HTTP interface (port 8123 by convention).
func WithEndpoint(host string, port int, useHTTP bool) ClientOption {
	return func(c *ClientConfig) {
		c.Host, c.Port, c.UseHTTP = host, port, useHTTP
	}
}

// WithLogin selects the database and the credentials used for it.
func WithLogin(database, user, password string) ClientOption {
	return func(c *ClientConfig) {
		if database != "" {
			c.Database = database
		}
		if user != "" {
			c.User = user
		}
		c.Password = password
	}
}

// WithPool sizes the database/sql pool. Zero values keep the defaults.
func WithPool(maxOpen, maxIdle int, lifetime time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if maxOpen > 0 {
			c.MaxOpenConns = maxOpen
		}
		if maxIdle > 0 {
			c.MaxIdleConns = maxIdle
		}
		if lifetime > 0 {
			c.ConnMaxLifetime = lifetime
		}
	}
}

// WithTimeouts sets dial, read and server-side query limits.
func WithTimeouts(dial, read, maxExec time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.DialTimeout, c.ReadTimeout, c.MaxExecTime = dial, read, maxExec
	}
}

// WithAsyncInsert turns on async_insert. With wait set the server acks only
// after the buffered rows are flushed.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert, c.WaitForAsync = enabled, wait
	}
}

func (c ClientConfig) validate() error {
	switch {
	case c.Host == "":
		return errors.New("clickhouse: host is required")
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("clickhouse: invalid port %d", c.Port)
	case c.DialTimeout <= 0:
		return errors.New("clickhouse: dial timeout must be positive")
	}
	return nil
}

// BuildDSN renders cfg as a clickhouse-go DSN.
func BuildDSN(cfg ClientConfig) string {
	u := url.URL{
		Scheme: "clickhouse",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.UseHTTP {
		u.Scheme = "http"
	}

	q := url.Values{}
	if cfg.DialTimeout > 0 {
		q.Set("dial_timeout", cfg.DialTimeout.String())
	}
	if cfg.ReadTimeout > 0 {
		q.Set("read_timeout", cfg.ReadTimeout.String())
	}
	if secs := int(cfg.MaxExecTime / time.Second); secs > 0 {
		q.Set("max_execution_time", strconv.Itoa(secs))
	}
	if cfg.AsyncInsert {
		q.Set("async_insert", "1")
		if cfg.WaitForAsync {
			q.Set("wait_for_async_insert", "1")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
