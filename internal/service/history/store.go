package history

import (
	"sync"

	"BasisPulse/internal/domain/models"
)

// DefaultCapacity is the rolling window length per symbol.
const DefaultCapacity = 250

// window is a fixed-capacity ring of samples for one symbol.
type window struct {
	mu      sync.Mutex
	samples []models.PriceSample
	start   int // index of the oldest sample
	count   int
}

// Store keeps a capped rolling window of price samples per symbol.
// Windows are created on first ingest; only the ingestion path mutates
// them and readers always get copies.
type Store struct {
	mu       sync.RWMutex
	capacity int
	windows  map[string]*window
}

// NewStore creates a store with the given per-symbol capacity.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		windows:  make(map[string]*window),
	}
}

// Ingest appends a sample, evicting the oldest when the window is full.
// Ingests for different symbols never block each other.
func (s *Store) Ingest(symbol string, price float64, timestamp int64) {
	w := s.window(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.push(models.PriceSample{Symbol: symbol, Price: price, Timestamp: timestamp})
}

// Snapshot returns the samples for a symbol oldest-first. The returned
// slice is a copy and never observes later mutations.
func (s *Store) Snapshot(symbol string) []models.PriceSample {
	s.mu.RLock()
	w, ok := s.windows[symbol]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.PriceSample, 0, w.count)
	for i := 0; i < w.count; i++ {
		out = append(out, w.samples[(w.start+i)%len(w.samples)])
	}
	return out
}

// Len reports the current number of samples for a symbol.
func (s *Store) Len(symbol string) int {
	s.mu.RLock()
	w, ok := s.windows[symbol]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// SeedBackfill seeds a symbol's window from historical samples so that
// indicators are computable before the live window fills. It is a no-op
// when streaming samples already exist. Returns true if seeded.
func (s *Store) SeedBackfill(symbol string, samples []models.PriceSample) bool {
	w := s.window(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.count > 0 {
		return false
	}
	for _, sm := range samples {
		w.push(sm)
	}
	return true
}

func (s *Store) window(symbol string) *window {
	s.mu.RLock()
	w, ok := s.windows[symbol]
	s.mu.RUnlock()
	if ok {
		return w
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok = s.windows[symbol]; ok {
		return w
	}
	w = &window{samples: make([]models.PriceSample, s.capacity)}
	s.windows[symbol] = w
	return w
}

// push assumes the window lock is held.
func (w *window) push(sm models.PriceSample) {
	if w.count < len(w.samples) {
		w.samples[(w.start+w.count)%len(w.samples)] = sm
		w.count++
		return
	}
	// full: overwrite the oldest and advance
	w.samples[w.start] = sm
	w.start = (w.start + 1) % len(w.samples)
}
