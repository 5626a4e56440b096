package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"BasisPulse/internal/domain/models"
	domrepo "BasisPulse/internal/domain/repository"
)

// Operation is an upstream call executed under a provider's limits.
type Operation func(ctx context.Context) (interface{}, error)

// ProviderConfig describes one provider's reservoir and concurrency limits.
type ProviderConfig struct {
	Provider       string
	Quota          int           // requests per interval
	Interval       time.Duration // reservoir refresh interval
	MaxConcurrent  int           // in-flight cap, independent of quota
	MaxQueueDepth  int           // queued requests beyond this fail fast
	RequestTimeout time.Duration // deadline applied per request if set
}

type waiter struct {
	ready      chan struct{}
	dispatched bool
}

type providerState struct {
	cfg       ProviderConfig
	remaining int
	windowEnd time.Time
	inflight  int
	queue     []*waiter
	timerSet  bool
}

// Gateway throttles and queues calls per provider. Quota replenishes to
// its full amount at interval boundaries (reservoir, not a smooth leak);
// requests beyond quota queue FIFO until replenishment or a concurrency
// slot frees.
type Gateway struct {
	mu        sync.Mutex
	providers map[string]*providerState
	metrics   domrepo.Metrics
	now       func() time.Time
}

// New creates a gateway with the given provider configurations.
func New(metrics domrepo.Metrics, cfgs ...ProviderConfig) *Gateway {
	g := &Gateway{
		providers: make(map[string]*providerState),
		metrics:   metrics,
		now:       time.Now,
	}
	for _, cfg := range cfgs {
		if cfg.Quota <= 0 {
			cfg.Quota = 1
		}
		if cfg.Interval <= 0 {
			cfg.Interval = time.Minute
		}
		if cfg.MaxConcurrent <= 0 {
			cfg.MaxConcurrent = 1
		}
		if cfg.MaxQueueDepth <= 0 {
			cfg.MaxQueueDepth = 100
		}
		g.providers[cfg.Provider] = &providerState{
			cfg:       cfg,
			remaining: cfg.Quota,
			windowEnd: g.now().Add(cfg.Interval),
		}
	}
	return g
}

// Request executes op under the provider's limits, queuing if necessary.
func (g *Gateway) Request(ctx context.Context, provider string, op Operation) (interface{}, error) {
	return g.do(ctx, provider, op, true)
}

// RequestNoWait executes op only if quota and a concurrency slot are
// immediately available; otherwise it fails with ErrRateLimited.
func (g *Gateway) RequestNoWait(ctx context.Context, provider string, op Operation) (interface{}, error) {
	return g.do(ctx, provider, op, false)
}

func (g *Gateway) do(ctx context.Context, provider string, op Operation, queue bool) (interface{}, error) {
	ps, err := g.state(provider)
	if err != nil {
		return nil, err
	}

	if ps.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ps.cfg.RequestTimeout)
		defer cancel()
	}

	if err := g.acquire(ctx, ps, queue); err != nil {
		if g.metrics != nil {
			g.metrics.RecordFetch(provider, "rejected")
		}
		return nil, err
	}

	type result struct {
		v   interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, opErr := op(ctx)
		// The slot is accounted for until the call actually finishes,
		// even if the caller abandoned it already.
		g.release(ps)
		done <- result{v: v, err: opErr}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if g.metrics != nil {
				g.metrics.RecordFetch(provider, "error")
			}
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, models.ErrTimeout
			}
			return nil, fmt.Errorf("%w: %v", models.ErrUpstream, r.err)
		}
		if g.metrics != nil {
			g.metrics.RecordFetch(provider, "ok")
		}
		return r.v, nil
	case <-ctx.Done():
		if g.metrics != nil {
			g.metrics.RecordFetch(provider, "timeout")
		}
		return nil, models.ErrTimeout
	}
}

func (g *Gateway) state(provider string) (*providerState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ps, ok := g.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", models.ErrUpstream, provider)
	}
	return ps, nil
}

// acquire consumes one quota token and one concurrency slot, queuing FIFO
// when queue is true.
func (g *Gateway) acquire(ctx context.Context, ps *providerState, queue bool) error {
	g.mu.Lock()
	g.refreshLocked(ps)

	if ps.remaining > 0 && ps.inflight < ps.cfg.MaxConcurrent {
		ps.remaining--
		ps.inflight++
		g.mu.Unlock()
		return nil
	}

	if !queue {
		g.mu.Unlock()
		return models.ErrRateLimited
	}
	if len(ps.queue) >= ps.cfg.MaxQueueDepth {
		g.mu.Unlock()
		return models.ErrOverloaded
	}

	w := &waiter{ready: make(chan struct{})}
	ps.queue = append(ps.queue, w)
	if g.metrics != nil {
		g.metrics.SetQueueDepth(ps.cfg.Provider, len(ps.queue))
	}
	g.scheduleRefillLocked(ps)
	g.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		if w.dispatched {
			// Lost the race: a slot was handed to us as the deadline hit.
			g.mu.Unlock()
			g.release(ps)
			return models.ErrTimeout
		}
		for i, qw := range ps.queue {
			if qw == w {
				ps.queue = append(ps.queue[:i], ps.queue[i+1:]...)
				break
			}
		}
		if g.metrics != nil {
			g.metrics.SetQueueDepth(ps.cfg.Provider, len(ps.queue))
		}
		g.mu.Unlock()
		return models.ErrTimeout
	}
}

func (g *Gateway) release(ps *providerState) {
	g.mu.Lock()
	ps.inflight--
	g.refreshLocked(ps)
	g.pumpLocked(ps)
	g.mu.Unlock()
}

// refreshLocked resets the reservoir when the interval boundary passed.
func (g *Gateway) refreshLocked(ps *providerState) {
	now := g.now()
	if now.Before(ps.windowEnd) {
		return
	}
	for !now.Before(ps.windowEnd) {
		ps.windowEnd = ps.windowEnd.Add(ps.cfg.Interval)
	}
	ps.remaining = ps.cfg.Quota
}

// pumpLocked dispatches queued waiters in arrival order while quota and
// concurrency allow.
func (g *Gateway) pumpLocked(ps *providerState) {
	for len(ps.queue) > 0 && ps.remaining > 0 && ps.inflight < ps.cfg.MaxConcurrent {
		w := ps.queue[0]
		ps.queue = ps.queue[1:]
		ps.remaining--
		ps.inflight++
		w.dispatched = true
		close(w.ready)
	}
	if g.metrics != nil {
		g.metrics.SetQueueDepth(ps.cfg.Provider, len(ps.queue))
	}
	if len(ps.queue) > 0 {
		g.scheduleRefillLocked(ps)
	}
}

// scheduleRefillLocked arms a timer for the next interval boundary so
// waiters blocked purely on quota get woken without a release event.
func (g *Gateway) scheduleRefillLocked(ps *providerState) {
	if ps.timerSet || len(ps.queue) == 0 {
		return
	}
	ps.timerSet = true
	delay := ps.windowEnd.Sub(g.now())
	if delay < 0 {
		delay = 0
	}
	time.AfterFunc(delay, func() {
		g.mu.Lock()
		ps.timerSet = false
		g.refreshLocked(ps)
		g.pumpLocked(ps)
		g.mu.Unlock()
	})
}
