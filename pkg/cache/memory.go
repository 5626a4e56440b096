package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const defaultMemoryTTL = time.Hour

// MemoryOption configures the in-process cache.
type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	maxEntries      int
	cleanupInterval time.Duration
}

// WithMemoryMaxSize caps the number of entries before LRU eviction.
func WithMemoryMaxSize(n int) MemoryOption {
	return func(c *memoryConfig) {
		c.maxEntries = n
	}
}

// WithMemoryCleanup sets how often expired entries are swept.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *memoryConfig) {
		c.cleanupInterval = interval
	}
}

type memoryEntry struct {
	payload    []byte
	expiresAt  time.Time
	lastAccess time.Time
}

// MemoryCache is the backend used when Redis is disabled. Values are
// kept JSON-encoded so Get fills typed destinations exactly like the
// Redis backend does.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxEntries int
	done       chan struct{}
}

// NewMemoryCache creates an in-process cache with a background sweeper.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &memoryConfig{
		maxEntries:      1000,
		cleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		maxEntries: cfg.maxEntries,
		done:       make(chan struct{}),
	}
	go mc.sweep(cfg.cleanupInterval)
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := encodeValue(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = defaultMemoryTTL
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, ok := mc.entries[key]; !ok && len(mc.entries) >= mc.maxEntries {
		mc.evictOldest()
	}
	now := time.Now()
	mc.entries[key] = &memoryEntry{
		payload:    payload,
		expiresAt:  now.Add(ttl),
		lastAccess: now,
	}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	entry, ok := mc.entries[key]
	if !ok {
		return ErrCacheMiss
	}
	now := time.Now()
	if now.After(entry.expiresAt) {
		delete(mc.entries, key)
		return ErrCacheMiss
	}
	entry.lastAccess = now

	return decodeValue(entry.payload, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range keys {
		delete(mc.entries, key)
	}
	return nil
}

func (mc *MemoryCache) Exists(_ context.Context, keys ...string) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	for _, key := range keys {
		if entry, ok := mc.entries[key]; ok && now.Before(entry.expiresAt) {
			return true, nil
		}
	}
	return false, nil
}

// Close stops the background sweeper.
func (mc *MemoryCache) Close() error {
	close(mc.done)
	return nil
}

// evictOldest removes the least recently touched entry. Caller holds the
// lock.
func (mc *MemoryCache) evictOldest() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range mc.entries {
		if oldestKey == "" || entry.lastAccess.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.lastAccess
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

func (mc *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-mc.done:
			return
		case <-ticker.C:
			now := time.Now()
			mc.mu.Lock()
			for key, entry := range mc.entries {
				if now.After(entry.expiresAt) {
					delete(mc.entries, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}

func encodeValue(value interface{}) ([]byte, error) {
	if s, ok := value.(string); ok {
		return []byte(s), nil
	}
	return json.Marshal(value)
}

func decodeValue(payload []byte, dest interface{}) error {
	if s, ok := dest.(*string); ok {
		*s = string(payload)
		return nil
	}
	return json.Unmarshal(payload, dest)
}
