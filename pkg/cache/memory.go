package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time // zero means no expiry
}

func (m *memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

// MemoryCache implements Service in process. Used when Redis is disabled
// and in tests.
type MemoryCache struct {
	data    map[string]*memoryItem
	mu      sync.Mutex
	maxSize int
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

var _ Service = (*MemoryCache)(nil)

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := defaultMemoryConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	go mc.cleanupLoop(cfg.CleanupInterval)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.data[key]; !ok && len(mc.data) >= mc.maxSize {
		mc.evictLocked()
	}
	mc.data[key] = &memoryItem{data: data, expireAt: mc.expiry(expiration)}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.data[key]
	if ok && item.expired(mc.now()) {
		delete(mc.data, key)
		ok = false
	}
	mc.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(item.data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.data[key]
	return ok && !item.expired(mc.now()), nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if item, ok := mc.data[key]; ok && !item.expired(mc.now()) {
		return false, nil
	}
	data, _ := json.Marshal(owner)
	mc.data[key] = &memoryItem{data: data, expireAt: mc.expiry(ttl)}
	return true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key, owner string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	item, ok := mc.data[key]
	if !ok || item.expired(mc.now()) {
		return ErrLockNotHeld
	}
	var held string
	if err := json.Unmarshal(item.data, &held); err != nil || held != owner {
		return ErrLockNotHeld
	}
	delete(mc.data, key)
	return nil
}

// Close stops the cleanup loop.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() { close(mc.stop) })
	return nil
}

func (mc *MemoryCache) expiry(d time.Duration) time.Time {
	if d <= 0 {
		return time.Time{}
	}
	return mc.now().Add(d)
}

// evictLocked drops expired items, or the item closest to expiry when none are.
func (mc *MemoryCache) evictLocked() {
	now := mc.now()
	var victim string
	var soonest time.Time
	for key, item := range mc.data {
		if item.expired(now) {
			delete(mc.data, key)
			return
		}
		if !item.expireAt.IsZero() && (soonest.IsZero() || item.expireAt.Before(soonest)) {
			victim, soonest = key, item.expireAt
		}
	}
	if victim == "" {
		for key := range mc.data {
			victim = key
			break
		}
	}
	delete(mc.data, victim)
}

func (mc *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mc.mu.Lock()
			now := mc.now()
			for key, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, key)
				}
			}
			mc.mu.Unlock()
		case <-mc.stop:
			return
		}
	}
}
