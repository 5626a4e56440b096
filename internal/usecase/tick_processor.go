package usecase

import (
	"context"
	"fmt"
	"time"

	"BasisPulse/internal/domain/models"
	drepo "BasisPulse/internal/domain/repository"
	"BasisPulse/internal/service/history"
)

// TickProcessor is the downstream end of the tick pipeline: it lands each
// accepted tick in the rolling history and pushes a price update to
// subscribers of the symbol.
type TickProcessor struct {
	history *history.Store
	hub     drepo.Broadcaster
	metrics drepo.Metrics
}

// NewTickProcessor creates a new TickProcessor instance.
func NewTickProcessor(hist *history.Store, hub drepo.Broadcaster, metrics drepo.Metrics) *TickProcessor {
	return &TickProcessor{history: hist, hub: hub, metrics: metrics}
}

// Process lands a single tick.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}

	start := time.Now()
	p.history.Ingest(t.Symbol, t.Price, t.Timestamp)
	p.metrics.RecordLastPrice(t.Symbol, t.Price)

	if p.hub != nil {
		p.hub.Publish(t.Symbol, &models.OutboundMessage{
			Type:      models.MsgPriceUpdate,
			Symbol:    t.Symbol,
			Price:     t.Price,
			Timestamp: t.Timestamp,
		})
	}

	p.metrics.RecordLatency("process", time.Since(start).Seconds())
	return nil
}
