package history

import (
	"testing"

	"BasisPulse/internal/domain/models"
)

func TestIngestAndSnapshotOrder(t *testing.T) {
	s := NewStore(10)
	for i := 0; i < 5; i++ {
		s.Ingest("BTCUSDT", float64(100+i), int64(1000+i))
	}

	snap := s.Snapshot("BTCUSDT")
	if len(snap) != 5 {
		t.Fatalf("expected 5 samples, got %d", len(snap))
	}
	for i, sm := range snap {
		if sm.Price != float64(100+i) {
			t.Fatalf("sample %d: expected price %d, got %f", i, 100+i, sm.Price)
		}
		if sm.Timestamp != int64(1000+i) {
			t.Fatalf("sample %d: expected ts %d, got %d", i, 1000+i, sm.Timestamp)
		}
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Ingest("ETHUSDT", float64(i), int64(i))
	}

	if s.Len("ETHUSDT") != 3 {
		t.Fatalf("expected len 3, got %d", s.Len("ETHUSDT"))
	}
	snap := s.Snapshot("ETHUSDT")
	want := []float64{2, 3, 4}
	for i, sm := range snap {
		if sm.Price != want[i] {
			t.Fatalf("sample %d: expected %f, got %f", i, want[i], sm.Price)
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(5)
	s.Ingest("BTCUSDT", 1, 1)
	snap := s.Snapshot("BTCUSDT")

	s.Ingest("BTCUSDT", 2, 2)
	if len(snap) != 1 || snap[0].Price != 1 {
		t.Fatalf("snapshot observed later mutation: %+v", snap)
	}
}

func TestSnapshotUnknownSymbol(t *testing.T) {
	s := NewStore(5)
	if snap := s.Snapshot("NOPE"); snap != nil {
		t.Fatalf("expected nil snapshot, got %v", snap)
	}
	if s.Len("NOPE") != 0 {
		t.Fatalf("expected len 0 for unknown symbol")
	}
}

func TestSeedBackfill(t *testing.T) {
	s := NewStore(5)
	seed := []models.PriceSample{
		{Symbol: "BTCUSDT", Price: 10, Timestamp: 1},
		{Symbol: "BTCUSDT", Price: 11, Timestamp: 2},
	}
	if !s.SeedBackfill("BTCUSDT", seed) {
		t.Fatalf("expected seed to apply on empty window")
	}
	if s.Len("BTCUSDT") != 2 {
		t.Fatalf("expected 2 samples after seed, got %d", s.Len("BTCUSDT"))
	}

	// Live data already present: seeding must not overwrite it.
	if s.SeedBackfill("BTCUSDT", seed) {
		t.Fatalf("expected seed to be a no-op on populated window")
	}

	s.Ingest("BTCUSDT", 12, 3)
	snap := s.Snapshot("BTCUSDT")
	if len(snap) != 3 || snap[2].Price != 12 {
		t.Fatalf("expected live sample appended after seed, got %+v", snap)
	}
}

func TestSymbolsAreIndependent(t *testing.T) {
	s := NewStore(2)
	s.Ingest("A", 1, 1)
	s.Ingest("B", 2, 1)
	s.Ingest("A", 3, 2)
	s.Ingest("A", 4, 3)

	if s.Len("A") != 2 || s.Len("B") != 1 {
		t.Fatalf("unexpected lengths: A=%d B=%d", s.Len("A"), s.Len("B"))
	}
	if snap := s.Snapshot("B"); snap[0].Price != 2 {
		t.Fatalf("symbol B corrupted: %+v", snap)
	}
}
