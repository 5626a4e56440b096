package exchange

import (
	"math"
	"testing"
	"time"
)

func TestAnnualizedDatedBasis(t *testing.T) {
	// 1% premium with 36.5 days left annualizes to 10%.
	got := annualizedDatedBasis(100, 101, 36.5)
	if math.Abs(got-10) > 1e-9 {
		t.Fatalf("expected 10, got %f", got)
	}

	// Discount to spot gives a negative basis.
	got = annualizedDatedBasis(100, 99, 36.5)
	if math.Abs(got+10) > 1e-9 {
		t.Fatalf("expected -10, got %f", got)
	}
}

func TestAnnualizedDatedBasisDegenerateInputs(t *testing.T) {
	if got := annualizedDatedBasis(0, 101, 30); got != 0 {
		t.Fatalf("zero spot must yield 0, got %f", got)
	}
	if got := annualizedDatedBasis(100, 101, 0); got != 0 {
		t.Fatalf("expired contract must yield 0, got %f", got)
	}
	if got := annualizedDatedBasis(100, 101, -1); got != 0 {
		t.Fatalf("negative tenor must yield 0, got %f", got)
	}
}

func TestAnnualizedPerpBasis(t *testing.T) {
	// 0.01% per 8h funding print: 3 prints/day * 365 days.
	got := annualizedPerpBasis(0.0001)
	want := 0.0001 * 3 * 365 * 100
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %f, got %f", want, got)
	}

	if got := annualizedPerpBasis(-0.0001); got >= 0 {
		t.Fatalf("negative funding must annualize negative, got %f", got)
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	expiry := now.Add(36 * time.Hour)
	if got := daysUntil(expiry, now); math.Abs(got-1.5) > 1e-9 {
		t.Fatalf("expected 1.5 days, got %f", got)
	}
}

func TestMappingUnknownAsset(t *testing.T) {
	v := &venue{
		name: "binance",
		cfg: AdapterConfig{
			Assets: map[string]AssetMapping{
				"BTC": {SpotSymbol: "BTCUSDT", DerivativeSymbol: "BTCUSDT"},
			},
		},
	}

	if _, err := v.mapping("BTC"); err != nil {
		t.Fatalf("known asset: %v", err)
	}
	if _, err := v.mapping("DOGE"); err == nil {
		t.Fatalf("expected error for unmapped asset")
	}
}
