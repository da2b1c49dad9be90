package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
	// ErrLockNotHeld is returned by Unlock when the key is missing or owned by someone else.
	ErrLockNotHeld = errors.New("cache: lock not held")
)

// Service is the key/value surface shared by the Redis and in-memory
// backends. Values are JSON encoded; a zero expiration keeps the key forever.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// TryLock acquires key for owner unless someone else holds it.
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	// Unlock releases key only if owner still holds it.
	Unlock(ctx context.Context, key, owner string) error
	Close() error
}

// Key joins parts with ':' into a cache key, e.g. Key("position", "BTCUSDT").
// Empty parts are skipped.
func Key(parts ...interface{}) string {
	var b strings.Builder
	for _, p := range parts {
		s := fmt.Sprint(p)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(':')
		}
		b.WriteString(s)
	}
	return b.String()
}
