package cache

import "time"

// RedisConfig is the connection and key space of a RedisCache.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	PoolTimeout  time.Duration
	// Prefix namespaces every key: "paritybot:position:BTCUSDT".
	Prefix string
}

func defaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  30 * time.Second,
		Prefix:       "paritybot",
	}
}

type RedisOption func(*RedisConfig)

// WithRedisServer points the cache at addr and database db.
func WithRedisServer(addr, password string, db int) RedisOption {
	return func(c *RedisConfig) {
		if addr != "" {
			c.Addr = addr
		}
		c.Password = password
		c.DB = db
	}
}

// WithRedisPool sizes the connection pool. Zero values keep the defaults.
func WithRedisPool(size, minIdle int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		if size > 0 {
			c.PoolSize = size
		}
		if minIdle > 0 {
			c.MinIdleConns = minIdle
		}
		if timeout > 0 {
			c.PoolTimeout = timeout
		}
	}
}

func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) { c.Prefix = prefix }
}

// MemoryConfig bounds a MemoryCache.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

type MemoryOption func(*MemoryConfig)

func defaultMemoryConfig() MemoryConfig {
	return MemoryConfig{MaxSize: 1000, CleanupInterval: 5 * time.Minute}
}

// WithMemoryMaxSize caps the number of stored keys.
func WithMemoryMaxSize(size int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = size }
}

// WithMemoryCleanup sets how often expired keys are swept. Non-positive
// intervals keep the default.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		if interval > 0 {
			c.CleanupInterval = interval
		}
	}
}
