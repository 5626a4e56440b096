package usecase

import (
	"context"
	"math"
	"sync"
	"time"

	"BasisPulse/internal/domain/models"
	drepo "BasisPulse/internal/domain/repository"
	"BasisPulse/internal/service/history"
	applogger "BasisPulse/pkg/logger"
)

// Indicator defaults.
const (
	DefaultIndicatorInterval = 5 * time.Minute
	DefaultRSIPeriod         = 14
	DefaultRSIOverbought     = 70.0
	DefaultRSIOversold       = 30.0
	// Relative change vs the last broadcast value that makes a new
	// snapshot worth pushing.
	DefaultRSIBroadcastDelta = 0.02
	DefaultMABroadcastDelta  = 0.01
)

// IndicatorConfig tunes the engine per deployment.
type IndicatorConfig struct {
	Interval          time.Duration
	RSIPeriods        []int
	MAPeriods         []int
	RSIOverbought     float64
	RSIOversold       float64
	RSIBroadcastDelta float64
	MABroadcastDelta  float64
}

func (c *IndicatorConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = DefaultIndicatorInterval
	}
	if len(c.RSIPeriods) == 0 {
		c.RSIPeriods = []int{DefaultRSIPeriod}
	}
	if len(c.MAPeriods) == 0 {
		c.MAPeriods = []int{20, 50}
	}
	if c.RSIOverbought <= 0 {
		c.RSIOverbought = DefaultRSIOverbought
	}
	if c.RSIOversold <= 0 {
		c.RSIOversold = DefaultRSIOversold
	}
	if c.RSIBroadcastDelta <= 0 {
		c.RSIBroadcastDelta = DefaultRSIBroadcastDelta
	}
	if c.MABroadcastDelta <= 0 {
		c.MABroadcastDelta = DefaultMABroadcastDelta
	}
}

// IndicatorEngine recomputes rolling indicators per symbol on a fixed
// cadence, decoupled from tick arrival. Every computed snapshot replaces
// the in-memory state; only snapshots that moved enough since the last
// broadcast are pushed to subscribers.
type IndicatorEngine struct {
	cfg     IndicatorConfig
	history *history.Store
	hub     drepo.Broadcaster
	metrics drepo.Metrics
	logger  *applogger.Logger
	symbols []string

	mu            sync.RWMutex
	current       map[string]models.IndicatorSnapshot // by snapshot key
	lastBroadcast map[string]float64                  // value at last push, by key

	now func() time.Time
}

// NewIndicatorEngine creates an engine for the given symbols.
func NewIndicatorEngine(cfg IndicatorConfig, hist *history.Store, hub drepo.Broadcaster, metrics drepo.Metrics, log *applogger.Logger, symbols []string) *IndicatorEngine {
	cfg.applyDefaults()
	return &IndicatorEngine{
		cfg:           cfg,
		history:       hist,
		hub:           hub,
		metrics:       metrics,
		logger:        log,
		symbols:       symbols,
		current:       make(map[string]models.IndicatorSnapshot),
		lastBroadcast: make(map[string]float64),
		now:           time.Now,
	}
}

// Start launches one recompute loop per symbol. Loops stop when ctx is
// canceled.
func (e *IndicatorEngine) Start(ctx context.Context) {
	for _, sym := range e.symbols {
		go e.loop(ctx, sym)
	}
}

func (e *IndicatorEngine) loop(ctx context.Context, symbol string) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Recompute(symbol)
		}
	}
}

// Recompute calculates every configured indicator for the symbol from
// the current history window. Symbols with insufficient history yield
// nothing rather than an error.
func (e *IndicatorEngine) Recompute(symbol string) {
	start := time.Now()
	samples := e.history.Snapshot(symbol)

	var snaps []models.IndicatorSnapshot
	for _, period := range e.cfg.RSIPeriods {
		if snap, ok := e.rsi(symbol, samples, period); ok {
			snaps = append(snaps, snap)
		}
	}
	for _, period := range e.cfg.MAPeriods {
		if snap, ok := e.movingAverage(symbol, samples, period); ok {
			snaps = append(snaps, snap)
		}
	}

	for _, snap := range snaps {
		e.store(snap)
	}
	if e.metrics != nil {
		e.metrics.RecordLatency("indicator_recompute", time.Since(start).Seconds())
	}
}

// store replaces the snapshot slot and broadcasts when the value moved
// enough relative to the last *broadcast* value, not the last computed
// one. Sub-threshold snapshots stay queryable but are never pushed.
func (e *IndicatorEngine) store(snap models.IndicatorSnapshot) {
	key := snap.Key()

	e.mu.Lock()
	if prev, ok := e.current[key]; ok {
		snap.PreviousValue = prev.Value
	}
	e.current[key] = snap

	threshold := e.cfg.RSIBroadcastDelta
	if snap.Family == models.FamilyMovingAverage {
		threshold = e.cfg.MABroadcastDelta
	}
	last, broadcasted := e.lastBroadcast[key]
	push := !broadcasted || relativeChange(snap.Value, last) >= threshold
	if push {
		e.lastBroadcast[key] = snap.Value
	}
	e.mu.Unlock()

	if push && e.hub != nil {
		e.hub.Publish(snap.Symbol, &models.OutboundMessage{
			Type:      models.MsgIndicatorUpdate,
			Symbol:    snap.Symbol,
			Timestamp: snap.Timestamp.Unix(),
			Data:      snap,
		})
	}
}

// CurrentSnapshots returns the latest snapshots for a symbol across all
// configured indicators.
func (e *IndicatorEngine) CurrentSnapshots(symbol string) []models.IndicatorSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []models.IndicatorSnapshot
	for _, snap := range e.current {
		if snap.Symbol == symbol {
			out = append(out, snap)
		}
	}
	return out
}

// rsi computes a simple-average RSI over the last period price changes.
// It needs period+1 samples.
func (e *IndicatorEngine) rsi(symbol string, samples []models.PriceSample, period int) (models.IndicatorSnapshot, bool) {
	if len(samples) < period+1 {
		return models.IndicatorSnapshot{}, false
	}
	window := samples[len(samples)-period-1:]

	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i].Price - window[i-1].Price
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	var value float64
	switch {
	case losses == 0 && gains == 0:
		value = 50
	case losses == 0:
		value = 100
	default:
		rs := (gains / float64(period)) / (losses / float64(period))
		value = 100 - 100/(1+rs)
	}

	classification := models.RSINormal
	switch {
	case value >= e.cfg.RSIOverbought:
		classification = models.RSIOverbought
	case value <= e.cfg.RSIOversold:
		classification = models.RSIOversold
	}

	return models.IndicatorSnapshot{
		Symbol:         symbol,
		Family:         models.FamilyRSI,
		Period:         period,
		Value:          value,
		Classification: classification,
		Timestamp:      e.now(),
	}, true
}

// movingAverage computes a simple moving average over the last period
// samples and the current price's percent deviation from it.
func (e *IndicatorEngine) movingAverage(symbol string, samples []models.PriceSample, period int) (models.IndicatorSnapshot, bool) {
	if len(samples) < period {
		return models.IndicatorSnapshot{}, false
	}
	window := samples[len(samples)-period:]

	var sum float64
	for _, s := range window {
		sum += s.Price
	}
	avg := sum / float64(period)
	price := samples[len(samples)-1].Price

	classification := models.PriceAboveAverage
	if price < avg {
		classification = models.PriceBelowAverage
	}
	var deviation float64
	if avg != 0 {
		deviation = (price - avg) / avg * 100
	}

	return models.IndicatorSnapshot{
		Symbol:         symbol,
		Family:         models.FamilyMovingAverage,
		Period:         period,
		Value:          avg,
		Classification: classification,
		Deviation:      deviation,
		Timestamp:      e.now(),
	}, true
}

func relativeChange(current, last float64) float64 {
	if last == 0 {
		return math.Inf(1)
	}
	return math.Abs(current-last) / math.Abs(last)
}
