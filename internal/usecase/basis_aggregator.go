package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"BasisPulse/internal/domain/models"
	drepo "BasisPulse/internal/domain/repository"
	"BasisPulse/internal/service/exchange"
	applogger "BasisPulse/pkg/logger"
)

// Aggregation defaults.
const (
	DefaultAggregateInterval = 30 * time.Second
	// Perpetual funding-implied bases run hotter than dated-future bases;
	// this empirical factor puts them on a comparable footing.
	DefaultPerpTenorFactor = 0.8

	volumeWeightShare = 0.7
	priorWeightShare  = 0.3

	agreementFloor = 0.2
	agreementDecay = 0.08

	typicalBasisMin = -10.0
	typicalBasisMax = 25.0
	severityScale   = 5.0
	maxSeverity     = 3.0

	confidencePriorShare     = 0.5
	confidenceAgreementShare = 0.45
	confidenceMultiSource    = 0.05
	confidenceCap            = 0.99
	anomalyConfidencePenalty = 0.1
)

// AggregatorConfig tunes the aggregation loop.
type AggregatorConfig struct {
	Assets          []string
	Interval        time.Duration
	PerpTenorFactor float64
}

func (c *AggregatorConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultAggregateInterval
	}
	if c.PerpTenorFactor <= 0 {
		c.PerpTenorFactor = DefaultPerpTenorFactor
	}
}

// BasisAggregator reconciles per-venue observations into one composite
// basis view per asset. Cycles for the same asset never overlap; cycles
// for different assets run concurrently.
type BasisAggregator struct {
	cfg      AggregatorConfig
	adapters []drepo.ExchangeAdapter
	fallback *exchange.StaticProducer
	hub      drepo.Broadcaster
	sink     drepo.CompositeSink
	metrics  drepo.Metrics
	logger   *applogger.Logger

	mu      sync.RWMutex
	latest  map[string]*models.CompositeResult
	cycling map[string]*sync.Mutex // per-asset cycle locks

	now func() time.Time
}

// NewBasisAggregator creates an aggregator over the given venue adapters.
func NewBasisAggregator(
	cfg AggregatorConfig,
	adapters []drepo.ExchangeAdapter,
	fallback *exchange.StaticProducer,
	hub drepo.Broadcaster,
	sink drepo.CompositeSink,
	metrics drepo.Metrics,
	log *applogger.Logger,
) *BasisAggregator {
	cfg.applyDefaults()
	a := &BasisAggregator{
		cfg:      cfg,
		adapters: adapters,
		fallback: fallback,
		hub:      hub,
		sink:     sink,
		metrics:  metrics,
		logger:   log,
		latest:   make(map[string]*models.CompositeResult),
		cycling:  make(map[string]*sync.Mutex),
		now:      time.Now,
	}
	for _, asset := range cfg.Assets {
		a.cycling[asset] = &sync.Mutex{}
	}
	return a
}

// Start launches one aggregation loop per asset.
func (a *BasisAggregator) Start(ctx context.Context) {
	for _, asset := range a.cfg.Assets {
		go a.loop(ctx, asset)
	}
}

func (a *BasisAggregator) loop(ctx context.Context, asset string) {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	a.runCycle(ctx, asset)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runCycle(ctx, asset)
		}
	}
}

// runCycle executes one aggregation cycle unless one is already running
// for the asset, in which case it is skipped rather than queued.
func (a *BasisAggregator) runCycle(ctx context.Context, asset string) {
	lock, ok := a.cycling[asset]
	if !ok {
		return
	}
	if !lock.TryLock() {
		if a.logger != nil {
			a.logger.Debug("cycle still running, skipping", applogger.String("asset", asset))
		}
		return
	}
	defer lock.Unlock()

	res, err := a.Aggregate(ctx, asset)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("aggregation produced no data",
				applogger.String("asset", asset), applogger.Error(err))
		}
		if a.metrics != nil {
			a.metrics.RecordError("aggregate_no_data")
		}
		return
	}

	a.mu.Lock()
	a.latest[asset] = res
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.SetCompositeBasis(asset, res.AnnualizedBasis)
	}
	a.publish(ctx, asset, res)
}

func (a *BasisAggregator) publish(ctx context.Context, asset string, res *models.CompositeResult) {
	if a.hub != nil {
		a.hub.Publish(asset, &models.OutboundMessage{
			Type:      models.MsgCompositeUpdate,
			Symbol:    asset,
			Timestamp: res.Timestamp.Unix(),
			Data:      res,
		})
	}
	if a.sink != nil {
		if err := a.sink.Publish(ctx, res); err != nil {
			if a.logger != nil {
				a.logger.Warn("composite sink publish failed",
					applogger.String("asset", asset), applogger.Error(err))
			}
			if a.metrics != nil {
				a.metrics.RecordError("sink_publish")
			}
		}
	}
}

// Aggregate fetches every venue concurrently and reconciles whatever
// succeeded. Venue failures are collected per exchange; only zero
// successes is an error.
func (a *BasisAggregator) Aggregate(ctx context.Context, asset string) (*models.CompositeResult, error) {
	start := time.Now()

	type outcome struct {
		obs models.ExchangeObservation
		err error
		who string
	}
	results := make(chan outcome, len(a.adapters))
	for _, ad := range a.adapters {
		go func(ad drepo.ExchangeAdapter) {
			obs, err := ad.FetchObservation(ctx, asset)
			results <- outcome{obs: obs, err: err, who: ad.Name()}
		}(ad)
	}

	var (
		observations []models.ExchangeObservation
		failures     = make(map[string]string)
	)
	for range a.adapters {
		o := <-results
		if o.err != nil {
			failures[o.who] = o.err.Error()
			continue
		}
		observations = append(observations, o.obs)
	}

	if a.metrics != nil {
		a.metrics.RecordLatency("aggregate_cycle", time.Since(start).Seconds())
	}
	if len(observations) == 0 {
		return nil, fmt.Errorf("%w: all %d venues failed for %s", models.ErrNoData, len(a.adapters), asset)
	}

	res := a.reconcile(asset, observations)
	if len(failures) > 0 {
		res.FailureReasons = failures
	}
	return res, nil
}

// reconcile folds successful observations into the composite.
func (a *BasisAggregator) reconcile(asset string, obs []models.ExchangeObservation) *models.CompositeResult {
	normalized := make([]float64, len(obs))
	for i, o := range obs {
		normalized[i] = o.AnnualizedBasis
		if o.ContractType == models.ContractPerpetual {
			normalized[i] *= a.cfg.PerpTenorFactor
		}
	}

	weights := a.weights(obs)

	var spot, deriv, basis, priorSum float64
	contributions := make([]models.ExchangeContribution, len(obs))
	for i, o := range obs {
		spot += weights[i] * o.SpotPrice
		deriv += weights[i] * o.DerivativePrice
		basis += weights[i] * normalized[i]
		priorSum += o.ConfidencePrior
		contributions[i] = models.ExchangeContribution{
			Exchange:        o.Exchange,
			Weight:          weights[i],
			NormalizedBasis: normalized[i],
			SpotPrice:       o.SpotPrice,
			TrailingVolume:  o.TrailingVolume,
		}
	}

	agreement := 1.0
	if len(obs) > 1 {
		agreement = agreementScore(normalized, weights)
	}

	anomalous, severity := classifyAnomaly(basis)

	meanPrior := priorSum / float64(len(obs))
	var confidence float64
	if len(obs) == 1 {
		confidence = meanPrior
	} else {
		confidence = confidencePriorShare*meanPrior +
			confidenceAgreementShare*agreement +
			confidenceMultiSource
		if confidence > confidenceCap {
			confidence = confidenceCap
		}
	}
	if anomalous {
		confidence *= 1 - anomalyConfidencePenalty*severity
	}

	return &models.CompositeResult{
		Asset:           asset,
		SpotPrice:       spot,
		DerivativePrice: deriv,
		AnnualizedBasis: basis,
		Regime:          regime(basis),
		Contributions:   contributions,
		AgreementScore:  agreement,
		Anomalous:       anomalous,
		AnomalySeverity: severity,
		Confidence:      confidence,
		Source:          models.SourceLive,
		Timestamp:       a.now(),
	}
}

// weights blends each venue's volume share with its trust-prior share.
func (a *BasisAggregator) weights(obs []models.ExchangeObservation) []float64 {
	var volSum, priorSum float64
	for _, o := range obs {
		volSum += o.TrailingVolume
		priorSum += o.ConfidencePrior
	}

	n := float64(len(obs))
	weights := make([]float64, len(obs))
	for i, o := range obs {
		volShare := 1 / n
		if volSum > 0 {
			volShare = o.TrailingVolume / volSum
		}
		priorShare := 1 / n
		if priorSum > 0 {
			priorShare = o.ConfidencePrior / priorSum
		}
		weights[i] = volumeWeightShare*volShare + priorWeightShare*priorShare
	}
	return weights
}

// agreementScore maps weighted basis dispersion (in percentage points)
// to (floor, 1]: tight venues score near 1, divergent venues decay
// exponentially down to the floor.
func agreementScore(normalized, weights []float64) float64 {
	var mean float64
	for i, b := range normalized {
		mean += weights[i] * b
	}
	var variance float64
	for i, b := range normalized {
		variance += weights[i] * (b - mean) * (b - mean)
	}
	sigma := math.Sqrt(variance)

	score := math.Exp(-agreementDecay * sigma)
	if score < agreementFloor {
		return agreementFloor
	}
	return score
}

// classifyAnomaly flags composites outside the typical annualized range
// and grades how far outside they sit.
func classifyAnomaly(basis float64) (bool, float64) {
	var excess float64
	switch {
	case basis < typicalBasisMin:
		excess = typicalBasisMin - basis
	case basis > typicalBasisMax:
		excess = basis - typicalBasisMax
	default:
		return false, 0
	}
	severity := excess / severityScale
	if severity > maxSeverity {
		severity = maxSeverity
	}
	return true, severity
}

func regime(basis float64) string {
	switch {
	case basis < -10:
		return models.RegimeDeepBackwardation
	case basis < -2:
		return models.RegimeBackwardation
	case basis < 5:
		return models.RegimeNeutral
	case basis < 15:
		return models.RegimeContango
	default:
		return models.RegimeElevatedContango
	}
}

// GetComposite returns the latest composite for the asset, or nil when
// no cycle has succeeded yet.
func (a *BasisAggregator) GetComposite(asset string) *models.CompositeResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest[asset]
}

// GetCompositeOrFallback never returns nil: when no live composite
// exists it answers with the static fallback, clearly labeled.
func (a *BasisAggregator) GetCompositeOrFallback(asset string) *models.CompositeResult {
	if res := a.GetComposite(asset); res != nil {
		return res
	}
	return a.fallback.Composite(asset)
}
