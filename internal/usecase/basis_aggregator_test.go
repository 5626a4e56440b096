package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"BasisPulse/internal/domain/models"
	drepo "BasisPulse/internal/domain/repository"
	"BasisPulse/internal/service/exchange"
)

type fakeAdapter struct {
	name string
	obs  models.ExchangeObservation
	err  error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FetchObservation(ctx context.Context, asset string) (models.ExchangeObservation, error) {
	if f.err != nil {
		return models.ExchangeObservation{}, f.err
	}
	obs := f.obs
	obs.Exchange = f.name
	obs.Asset = asset
	return obs, nil
}

func newAggregator(adapters ...drepo.ExchangeAdapter) *BasisAggregator {
	cfg := AggregatorConfig{Assets: []string{"BTC"}}
	return NewBasisAggregator(cfg, adapters, exchange.NewStaticProducer(), nil, nil, nil, nil)
}

func datedObs(basis, volume, prior float64) models.ExchangeObservation {
	days := 30.0
	return models.ExchangeObservation{
		SpotPrice:       100,
		DerivativePrice: 101,
		ContractType:    models.ContractDated,
		DaysToExpiry:    &days,
		AnnualizedBasis: basis,
		TrailingVolume:  volume,
		ConfidencePrior: prior,
	}
}

func TestAggregateAllVenuesFail(t *testing.T) {
	a := newAggregator(
		&fakeAdapter{name: "binance", err: models.ErrTimeout},
		&fakeAdapter{name: "okx", err: models.ErrUpstream},
	)
	_, err := a.Aggregate(context.Background(), "BTC")
	if !errors.Is(err, models.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestAggregateSingleSource(t *testing.T) {
	a := newAggregator(&fakeAdapter{name: "binance", obs: datedObs(3, 1000, 0.9)})

	res, err := a.Aggregate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if res.AgreementScore != 1.0 {
		t.Fatalf("single source agreement must be 1.0, got %f", res.AgreementScore)
	}
	// With one venue the confidence is exactly its trust prior.
	if math.Abs(res.Confidence-0.9) > 1e-9 {
		t.Fatalf("expected confidence 0.9, got %f", res.Confidence)
	}
	if math.Abs(res.AnnualizedBasis-3) > 1e-9 {
		t.Fatalf("expected basis 3, got %f", res.AnnualizedBasis)
	}
	if res.Regime != models.RegimeNeutral {
		t.Fatalf("expected neutral regime, got %s", res.Regime)
	}
	if len(res.Contributions) != 1 || math.Abs(res.Contributions[0].Weight-1) > 1e-9 {
		t.Fatalf("expected single full-weight contribution, got %+v", res.Contributions)
	}
	if res.Source != models.SourceLive {
		t.Fatalf("expected live source, got %s", res.Source)
	}
}

func TestAggregateTwoSourceAgreement(t *testing.T) {
	a := newAggregator(
		&fakeAdapter{name: "binance", obs: datedObs(10, 500, 0.9)},
		&fakeAdapter{name: "okx", obs: datedObs(12, 500, 0.9)},
	)

	res, err := a.Aggregate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	// Equal volumes and priors: weights 0.5 each, mean 11, sigma 1.
	if math.Abs(res.AnnualizedBasis-11) > 1e-9 {
		t.Fatalf("expected basis 11, got %f", res.AnnualizedBasis)
	}
	wantAgreement := math.Exp(-0.08)
	if math.Abs(res.AgreementScore-wantAgreement) > 1e-9 {
		t.Fatalf("expected agreement %f, got %f", wantAgreement, res.AgreementScore)
	}
	wantConfidence := 0.5*0.9 + 0.45*wantAgreement + 0.05
	if math.Abs(res.Confidence-wantConfidence) > 1e-9 {
		t.Fatalf("expected confidence %f, got %f", wantConfidence, res.Confidence)
	}
	if res.Regime != models.RegimeContango {
		t.Fatalf("expected contango, got %s", res.Regime)
	}
	if res.Anomalous {
		t.Fatalf("11%% annualized is within the typical range")
	}
}

func TestPerpetualTenorNormalization(t *testing.T) {
	perp := models.ExchangeObservation{
		SpotPrice:       100,
		DerivativePrice: 100.1,
		ContractType:    models.ContractPerpetual,
		AnnualizedBasis: 10,
		TrailingVolume:  1000,
		ConfidencePrior: 0.8,
	}
	a := newAggregator(&fakeAdapter{name: "okx", obs: perp})

	res, err := a.Aggregate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	// Funding-implied basis is scaled by the tenor factor before weighting.
	if math.Abs(res.AnnualizedBasis-8) > 1e-9 {
		t.Fatalf("expected normalized basis 8, got %f", res.AnnualizedBasis)
	}
	if math.Abs(res.Contributions[0].NormalizedBasis-8) > 1e-9 {
		t.Fatalf("contribution must carry the normalized basis, got %f", res.Contributions[0].NormalizedBasis)
	}
}

func TestAnomalyClassification(t *testing.T) {
	cases := []struct {
		basis     float64
		anomalous bool
		severity  float64
		regime    string
	}{
		{basis: 3, anomalous: false, severity: 0, regime: models.RegimeNeutral},
		{basis: 40, anomalous: true, severity: 3, regime: models.RegimeElevatedContango},
		{basis: 30, anomalous: true, severity: 1, regime: models.RegimeElevatedContango},
		{basis: -20, anomalous: true, severity: 2, regime: models.RegimeDeepBackwardation},
		{basis: -5, anomalous: false, severity: 0, regime: models.RegimeBackwardation},
	}

	for _, tc := range cases {
		a := newAggregator(&fakeAdapter{name: "binance", obs: datedObs(tc.basis, 1000, 0.9)})
		res, err := a.Aggregate(context.Background(), "BTC")
		if err != nil {
			t.Fatalf("basis %f: %v", tc.basis, err)
		}
		if res.Anomalous != tc.anomalous {
			t.Fatalf("basis %f: expected anomalous=%v", tc.basis, tc.anomalous)
		}
		if math.Abs(res.AnomalySeverity-tc.severity) > 1e-9 {
			t.Fatalf("basis %f: expected severity %f, got %f", tc.basis, tc.severity, res.AnomalySeverity)
		}
		if res.Regime != tc.regime {
			t.Fatalf("basis %f: expected regime %s, got %s", tc.basis, tc.regime, res.Regime)
		}
		if tc.anomalous {
			wantConfidence := 0.9 * (1 - 0.1*tc.severity)
			if math.Abs(res.Confidence-wantConfidence) > 1e-9 {
				t.Fatalf("basis %f: expected penalized confidence %f, got %f", tc.basis, wantConfidence, res.Confidence)
			}
		}
	}
}

func TestPartialFailureKeepsReasons(t *testing.T) {
	a := newAggregator(
		&fakeAdapter{name: "binance", obs: datedObs(5, 1000, 0.9)},
		&fakeAdapter{name: "deribit", err: errors.New("503 unavailable")},
	)

	res, err := a.Aggregate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("one venue succeeded, aggregate must not fail: %v", err)
	}
	if len(res.Contributions) != 1 {
		t.Fatalf("expected 1 contribution, got %d", len(res.Contributions))
	}
	if reason, ok := res.FailureReasons["deribit"]; !ok || reason == "" {
		t.Fatalf("expected a failure reason for deribit, got %+v", res.FailureReasons)
	}
}

func TestWeightsBlendVolumeAndPrior(t *testing.T) {
	a := newAggregator()
	obs := []models.ExchangeObservation{
		{TrailingVolume: 300, ConfidencePrior: 0.8},
		{TrailingVolume: 100, ConfidencePrior: 0.8},
	}
	weights := a.weights(obs)

	// Volume shares 0.75/0.25, prior shares 0.5/0.5.
	want0 := 0.7*0.75 + 0.3*0.5
	want1 := 0.7*0.25 + 0.3*0.5
	if math.Abs(weights[0]-want0) > 1e-9 || math.Abs(weights[1]-want1) > 1e-9 {
		t.Fatalf("expected weights [%f %f], got %v", want0, want1, weights)
	}
	if math.Abs(weights[0]+weights[1]-1) > 1e-9 {
		t.Fatalf("weights must sum to 1, got %v", weights)
	}
}

func TestWeightsZeroVolume(t *testing.T) {
	a := newAggregator()
	obs := []models.ExchangeObservation{
		{TrailingVolume: 0, ConfidencePrior: 0.9},
		{TrailingVolume: 0, ConfidencePrior: 0.9},
	}
	weights := a.weights(obs)
	if math.Abs(weights[0]-0.5) > 1e-9 || math.Abs(weights[1]-0.5) > 1e-9 {
		t.Fatalf("zero total volume must fall back to equal shares, got %v", weights)
	}
}

func TestGetCompositeOrFallback(t *testing.T) {
	a := newAggregator(&fakeAdapter{name: "binance", err: models.ErrTimeout})

	res := a.GetCompositeOrFallback("BTC")
	if res == nil {
		t.Fatalf("fallback must never be nil")
	}
	if res.Source != models.SourceFallback {
		t.Fatalf("expected fallback source, got %s", res.Source)
	}
	if res.Confidence != 0 {
		t.Fatalf("fallback confidence must be 0, got %f", res.Confidence)
	}
	if res.Regime != models.RegimeNeutral {
		t.Fatalf("fallback regime must be neutral, got %s", res.Regime)
	}
	if a.GetComposite("BTC") != nil {
		t.Fatalf("no cycle ran, latest must be nil")
	}
}

func TestConfidenceTracksAgreement(t *testing.T) {
	composite := func(b1, b2 float64) *models.CompositeResult {
		a := newAggregator(
			&fakeAdapter{name: "binance", obs: datedObs(b1, 500, 0.9)},
			&fakeAdapter{name: "okx", obs: datedObs(b2, 500, 0.9)},
		)
		res, err := a.Aggregate(context.Background(), "BTC")
		if err != nil {
			t.Fatalf("aggregate: %v", err)
		}
		return res
	}

	tight := composite(10, 11)
	wide := composite(6, 15)
	if wide.AgreementScore >= tight.AgreementScore {
		t.Fatalf("more dispersion must score lower: tight=%f wide=%f", tight.AgreementScore, wide.AgreementScore)
	}
	// Same priors and volumes, so confidence moves with agreement alone.
	if wide.Confidence >= tight.Confidence {
		t.Fatalf("confidence must not rise as agreement falls: tight=%f wide=%f", tight.Confidence, wide.Confidence)
	}
}

func TestAgreementFloor(t *testing.T) {
	// Hugely divergent bases: the exponential decay bottoms out at the floor.
	score := agreementScore([]float64{-50, 80}, []float64{0.5, 0.5})
	if score != 0.2 {
		t.Fatalf("expected floor 0.2, got %f", score)
	}
}

type failingSink struct{}

func (failingSink) Publish(ctx context.Context, res *models.CompositeResult) error {
	return errors.New("broker down")
}
func (failingSink) Close() error { return nil }

// The constructor accepts nil hub, sink, metrics, and logger; every
// cycle path has to tolerate that.
func TestRunCycleWithoutInstrumentation(t *testing.T) {
	ctx := context.Background()

	failing := newAggregator(&fakeAdapter{name: "binance", err: models.ErrTimeout})
	failing.runCycle(ctx, "BTC")
	if failing.GetComposite("BTC") != nil {
		t.Fatalf("failed cycle must not record a composite")
	}

	ok := newAggregator(&fakeAdapter{name: "binance", obs: datedObs(3, 1000, 0.9)})
	ok.cycling["BTC"].Lock()
	ok.runCycle(ctx, "BTC")
	if ok.GetComposite("BTC") != nil {
		t.Fatalf("cycle must be skipped while another is running")
	}
	ok.cycling["BTC"].Unlock()

	ok.runCycle(ctx, "BTC")
	if ok.GetComposite("BTC") == nil {
		t.Fatalf("successful cycle must record a composite")
	}

	sinking := NewBasisAggregator(AggregatorConfig{Assets: []string{"BTC"}},
		[]drepo.ExchangeAdapter{&fakeAdapter{name: "binance", obs: datedObs(3, 1000, 0.9)}},
		exchange.NewStaticProducer(), nil, failingSink{}, nil, nil)
	sinking.runCycle(ctx, "BTC")
	if sinking.GetComposite("BTC") == nil {
		t.Fatalf("sink failure must not discard the composite")
	}
}

func TestConfidenceCap(t *testing.T) {
	// Identical venues: agreement 1.0, priors 1.0 -> raw 0.5+0.45+0.05 = 1.0,
	// capped at 0.99.
	a := newAggregator(
		&fakeAdapter{name: "binance", obs: datedObs(5, 500, 1.0)},
		&fakeAdapter{name: "okx", obs: datedObs(5, 500, 1.0)},
	)
	res, err := a.Aggregate(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if math.Abs(res.Confidence-0.99) > 1e-9 {
		t.Fatalf("expected capped confidence 0.99, got %f", res.Confidence)
	}
}
