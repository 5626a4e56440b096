package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetOrFetchCachesSuccess(t *testing.T) {
	c := NewCoalescer()
	base := time.Unix(1_700_000_000, 0)
	now := base
	c.now = func() time.Time { return now }

	var calls int32
	producer := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	v, err := c.GetOrFetch(context.Background(), "k", 600*time.Second, producer)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if v.(int) != 42 {
		t.Fatalf("expected 42, got %v", v)
	}

	// 100s later the entry is still live.
	now = base.Add(100 * time.Second)
	if _, err := c.GetOrFetch(context.Background(), "k", 600*time.Second, producer); err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected 1 producer call, got %d", n)
	}

	// 601s after the write the entry is expired and refetched.
	now = base.Add(601 * time.Second)
	if _, err := c.GetOrFetch(context.Background(), "k", 600*time.Second, producer); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 producer calls, got %d", n)
	}
}

func TestGetOrFetchCoalescesConcurrentCallers(t *testing.T) {
	c := NewCoalescer()

	const callers = 16
	release := make(chan struct{})
	var calls int32
	producer := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "result", nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(context.Background(), "k", time.Minute, producer)
		}(i)
	}

	// Let everyone attach, then settle the fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("expected exactly 1 producer call, got %d", n)
	}
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != "result" {
			t.Fatalf("caller %d: got %v", i, results[i])
		}
	}
}

func TestGetOrFetchNeverCachesFailures(t *testing.T) {
	c := NewCoalescer()
	boom := errors.New("upstream down")

	var calls int32
	failing := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, boom
	}

	if _, err := c.GetOrFetch(context.Background(), "k", time.Minute, failing); !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}
	// The failure is not cached: the next call invokes the producer again.
	if _, err := c.GetOrFetch(context.Background(), "k", time.Minute, failing); !errors.Is(err, boom) {
		t.Fatalf("expected producer error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected 2 producer calls, got %d", n)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after failures, got %d entries", c.Len())
	}
}

func TestGetOrFetchWaiterHonorsContext(t *testing.T) {
	c := NewCoalescer()
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = c.GetOrFetch(context.Background(), "k", time.Minute, func(ctx context.Context) (interface{}, error) {
			<-release
			return 1, nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetOrFetch(ctx, "k", time.Minute, func(ctx context.Context) (interface{}, error) {
		return 2, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestInvalidate(t *testing.T) {
	c := NewCoalescer()
	var calls int32
	producer := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return 1, nil
	}

	_, _ = c.GetOrFetch(context.Background(), "k", time.Minute, producer)
	c.Invalidate("k")
	_, _ = c.GetOrFetch(context.Background(), "k", time.Minute, producer)
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("expected refetch after invalidate, got %d calls", n)
	}
}
