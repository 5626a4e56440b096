package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Asset string  `json:"asset"`
	Basis float64 `json:"basis"`
}

func TestMemoryCacheRoundTripsTypedValues(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	in := payload{Asset: "BTC", Basis: 4.2}
	if err := mc.Set(ctx, "composite:BTC", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out payload
	if err := mc.Get(ctx, "composite:BTC", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}
}

func TestMemoryCacheMissAndExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	var out string
	if err := mc.Get(ctx, "absent", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := mc.Set(ctx, "short", "v", time.Nanosecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := mc.Get(ctx, "short", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "a", "1", time.Minute); err != nil {
		t.Fatalf("set a: %v", err)
	}
	time.Sleep(time.Millisecond)
	if err := mc.Set(ctx, "b", "2", time.Minute); err != nil {
		t.Fatalf("set b: %v", err)
	}
	time.Sleep(time.Millisecond)

	// Touch "a" so "b" becomes the eviction candidate.
	var out string
	if err := mc.Get(ctx, "a", &out); err != nil {
		t.Fatalf("get a: %v", err)
	}
	time.Sleep(time.Millisecond)

	if err := mc.Set(ctx, "c", "3", time.Minute); err != nil {
		t.Fatalf("set c: %v", err)
	}

	if err := mc.Get(ctx, "b", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &out); err != nil || out != "1" {
		t.Fatalf("expected a retained, got %q err=%v", out, err)
	}
}

func TestMemoryCacheDeleteAndExists(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err := mc.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected key to exist, ok=%v err=%v", ok, err)
	}
	if err := mc.Delete(ctx, "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ok, err = mc.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("expected key gone, ok=%v err=%v", ok, err)
	}
}
