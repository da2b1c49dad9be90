package clickhouse

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	dsn := BuildDSN(ClientConfig{
		Host:         "ch",
		Port:         9000,
		Database:     "paritybot",
		User:         "default",
		Password:     "p@ss",
		DialTimeout:  5 * time.Second,
		AsyncInsert:  true,
		WaitForAsync: true,
	})
	assert.True(t, strings.HasPrefix(dsn, "clickhouse://default:p%40ss@ch:9000/paritybot?"))
	assert.Contains(t, dsn, "dial_timeout=5s")
	assert.Contains(t, dsn, "async_insert=1")
	assert.Contains(t, dsn, "wait_for_async_insert=1")
	assert.NotContains(t, dsn, "max_execution_time")
}

func TestClientOptions(t *testing.T) {
	cfg := defaultClientConfig()
	for _, opt := range []ClientOption{
		WithEndpoint("ch", 8123, true),
		WithLogin("", "", "secret"),
		WithPool(0, 2, 0),
		WithTimeouts(time.Second, 0, 1500*time.Millisecond),
	} {
		opt(&cfg)
	}
	assert.NoError(t, cfg.validate())
	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)

	dsn := BuildDSN(cfg)
	assert.True(t, strings.HasPrefix(dsn, "http://default:secret@ch:8123/default?"))
	assert.Contains(t, dsn, "max_execution_time=1")
	assert.NotContains(t, dsn, "read_timeout")
}

func TestClientConfigValidate(t *testing.T) {
	cfg := defaultClientConfig()
	assert.ErrorContains(t, cfg.validate(), "host is required")

	WithEndpoint("ch", 0, false)(&cfg)
	assert.ErrorContains(t, cfg.validate(), "invalid port")

	_, err := NewClient(context.Background())
	assert.Error(t, err)
}

func TestSchemaTargetsDatabase(t *testing.T) {
	stmts := Schema("parity")
	assert.Len(t, stmts, 3)
	assert.Contains(t, stmts[1], "parity.candles")
	assert.Contains(t, stmts[2], "parity.trades")
	assert.Contains(t, stmts[2], "Nullable(Decimal(38, 8))")
}
