package cache

import (
	"context"
	"sync"
	"time"
)

// Producer computes the value for a key on a cache miss.
type Producer func(ctx context.Context) (interface{}, error)

type entry struct {
	v   interface{}
	exp time.Time
}

type inflight struct {
	done chan struct{}
	v    interface{}
	err  error
}

// Coalescer is a key-addressed TTL cache with at-most-one-concurrent-fetch
// per key. All callers attached to the same fetch observe the identical
// settled result or the identical failure; failures are never cached.
type Coalescer struct {
	mu       sync.Mutex
	entries  map[string]entry
	inflight map[string]*inflight
	now      func() time.Time
}

// NewCoalescer creates an empty coalescing cache.
func NewCoalescer() *Coalescer {
	return &Coalescer{
		entries:  make(map[string]entry),
		inflight: make(map[string]*inflight),
		now:      time.Now,
	}
}

// GetOrFetch returns a live cached value, attaches to an in-flight fetch,
// or invokes producer exactly once. TTL is per call so distinct query
// shapes can carry distinct lifetimes.
func (c *Coalescer) GetOrFetch(ctx context.Context, key string, ttl time.Duration, producer Producer) (interface{}, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Before(e.exp) {
			c.mu.Unlock()
			return e.v, nil
		}
		// lazy eviction on access
		delete(c.entries, key)
	}
	if fl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.v, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	fl := &inflight{done: make(chan struct{})}
	c.inflight[key] = fl
	c.mu.Unlock()

	v, err := producer(ctx)

	c.mu.Lock()
	if err == nil && ttl > 0 {
		c.entries[key] = entry{v: v, exp: c.now().Add(ttl)}
	}
	delete(c.inflight, key)
	c.mu.Unlock()

	fl.v, fl.err = v, err
	close(fl.done)
	return v, err
}

// Invalidate drops a key's cached value if present.
func (c *Coalescer) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired or not.
func (c *Coalescer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
