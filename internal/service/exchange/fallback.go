package exchange

import (
	"time"

	"BasisPulse/internal/domain/models"
)

// StaticProducer serves a conservative placeholder composite when no
// venue produced data. Results are labeled as fallback so callers and
// clients can tell them from live data.
type StaticProducer struct {
	now func() time.Time
}

// NewStaticProducer creates the fallback composite producer.
func NewStaticProducer() *StaticProducer {
	return &StaticProducer{now: time.Now}
}

// Composite returns a neutral, zero-confidence result for the asset.
func (p *StaticProducer) Composite(asset string) *models.CompositeResult {
	return &models.CompositeResult{
		Asset:          asset,
		Regime:         models.RegimeNeutral,
		AgreementScore: 0,
		Confidence:     0,
		Source:         models.SourceFallback,
		Timestamp:      p.now(),
	}
}
