package usecase

import (
	"math"
	"sync"
	"testing"

	"BasisPulse/internal/domain/models"
	"BasisPulse/internal/service/history"
)

// captureHub records published messages per topic.
type captureHub struct {
	mu   sync.Mutex
	msgs []*models.OutboundMessage
}

func (h *captureHub) Publish(topic string, msg *models.OutboundMessage) {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
}

func (h *captureHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.msgs)
}

func ingestPrices(store *history.Store, symbol string, prices ...float64) {
	for i, p := range prices {
		store.Ingest(symbol, p, int64(i+1))
	}
}

func findSnapshot(t *testing.T, snaps []models.IndicatorSnapshot, family models.IndicatorFamily, period int) models.IndicatorSnapshot {
	t.Helper()
	for _, s := range snaps {
		if s.Family == family && s.Period == period {
			return s
		}
	}
	t.Fatalf("no %s/%d snapshot in %+v", family, period, snaps)
	return models.IndicatorSnapshot{}
}

func TestRecomputeInsufficientHistory(t *testing.T) {
	store := history.NewStore(250)
	hub := &captureHub{}
	e := NewIndicatorEngine(IndicatorConfig{RSIPeriods: []int{14}, MAPeriods: []int{20}}, store, hub, nil, nil, []string{"BTCUSDT"})

	// 14 samples: one short of the 15 an RSI(14) needs, and short of MA(20).
	prices := make([]float64, 14)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	ingestPrices(store, "BTCUSDT", prices...)

	e.Recompute("BTCUSDT")
	if snaps := e.CurrentSnapshots("BTCUSDT"); len(snaps) != 0 {
		t.Fatalf("expected no snapshots, got %+v", snaps)
	}
	if hub.count() != 0 {
		t.Fatalf("expected no broadcasts, got %d", hub.count())
	}
}

func TestRSIClassification(t *testing.T) {
	store := history.NewStore(250)
	e := NewIndicatorEngine(IndicatorConfig{RSIPeriods: []int{14}, MAPeriods: []int{100}}, store, &captureHub{}, nil, nil, nil)

	// Strictly rising prices: no losses, RSI pegs at 100.
	for i := 0; i < 15; i++ {
		store.Ingest("UP", 100+float64(i), int64(i))
	}
	e.Recompute("UP")
	snap := findSnapshot(t, e.CurrentSnapshots("UP"), models.FamilyRSI, 14)
	if snap.Value != 100 {
		t.Fatalf("expected RSI 100 for monotone gains, got %f", snap.Value)
	}
	if snap.Classification != models.RSIOverbought {
		t.Fatalf("expected overbought, got %s", snap.Classification)
	}

	// Strictly falling prices: no gains, RSI pegs at 0.
	for i := 0; i < 15; i++ {
		store.Ingest("DOWN", 100-float64(i), int64(i))
	}
	e.Recompute("DOWN")
	snap = findSnapshot(t, e.CurrentSnapshots("DOWN"), models.FamilyRSI, 14)
	if snap.Value != 0 {
		t.Fatalf("expected RSI 0 for monotone losses, got %f", snap.Value)
	}
	if snap.Classification != models.RSIOversold {
		t.Fatalf("expected oversold, got %s", snap.Classification)
	}

	// Flat prices carry no signal either way.
	for i := 0; i < 15; i++ {
		store.Ingest("FLAT", 100, int64(i))
	}
	e.Recompute("FLAT")
	snap = findSnapshot(t, e.CurrentSnapshots("FLAT"), models.FamilyRSI, 14)
	if snap.Value != 50 || snap.Classification != models.RSINormal {
		t.Fatalf("expected neutral RSI 50, got %f/%s", snap.Value, snap.Classification)
	}
}

func TestRSIKnownValue(t *testing.T) {
	store := history.NewStore(250)
	e := NewIndicatorEngine(IndicatorConfig{RSIPeriods: []int{2}, MAPeriods: []int{100}}, store, &captureHub{}, nil, nil, nil)

	// Deltas +10 then -5: RS = 10/5 = 2, RSI = 100 - 100/3.
	ingestPrices(store, "BTCUSDT", 100, 110, 105)
	e.Recompute("BTCUSDT")

	snap := findSnapshot(t, e.CurrentSnapshots("BTCUSDT"), models.FamilyRSI, 2)
	want := 100 - 100/3.0
	if math.Abs(snap.Value-want) > 1e-9 {
		t.Fatalf("expected RSI %f, got %f", want, snap.Value)
	}
}

func TestMovingAverageDeviation(t *testing.T) {
	store := history.NewStore(250)
	e := NewIndicatorEngine(IndicatorConfig{RSIPeriods: []int{100}, MAPeriods: []int{3}}, store, &captureHub{}, nil, nil, nil)

	ingestPrices(store, "ETHUSDT", 1, 2, 3)
	e.Recompute("ETHUSDT")

	snap := findSnapshot(t, e.CurrentSnapshots("ETHUSDT"), models.FamilyMovingAverage, 3)
	if snap.Value != 2 {
		t.Fatalf("expected MA 2, got %f", snap.Value)
	}
	if snap.Classification != models.PriceAboveAverage {
		t.Fatalf("expected above_average, got %s", snap.Classification)
	}
	if math.Abs(snap.Deviation-50) > 1e-9 {
		t.Fatalf("expected deviation 50%%, got %f", snap.Deviation)
	}
}

func TestBroadcastThresholdGating(t *testing.T) {
	store := history.NewStore(250)
	hub := &captureHub{}
	cfg := IndicatorConfig{RSIPeriods: []int{100}, MAPeriods: []int{2}, MABroadcastDelta: 0.01}
	e := NewIndicatorEngine(cfg, store, hub, nil, nil, nil)

	// First computation always broadcasts.
	ingestPrices(store, "BTCUSDT", 10, 10)
	e.Recompute("BTCUSDT")
	if hub.count() != 1 {
		t.Fatalf("expected first snapshot broadcast, got %d", hub.count())
	}

	// Unchanged average: recomputed, stored, but not pushed.
	store.Ingest("BTCUSDT", 10, 3)
	e.Recompute("BTCUSDT")
	if hub.count() != 1 {
		t.Fatalf("sub-threshold change must not broadcast, got %d", hub.count())
	}
	snap := findSnapshot(t, e.CurrentSnapshots("BTCUSDT"), models.FamilyMovingAverage, 2)
	if snap.Value != 10 {
		t.Fatalf("snapshot must still be queryable, got %f", snap.Value)
	}

	// Average jumps 10 -> 15: 50% move vs the last broadcast, pushed.
	store.Ingest("BTCUSDT", 20, 4)
	e.Recompute("BTCUSDT")
	if hub.count() != 2 {
		t.Fatalf("expected broadcast after large move, got %d", hub.count())
	}
	snap = findSnapshot(t, e.CurrentSnapshots("BTCUSDT"), models.FamilyMovingAverage, 2)
	if snap.Value != 15 {
		t.Fatalf("expected MA 15, got %f", snap.Value)
	}
	if snap.PreviousValue != 10 {
		t.Fatalf("expected previous value 10, got %f", snap.PreviousValue)
	}
}
