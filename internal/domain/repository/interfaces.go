package repository

import (
	"context"

	"BasisPulse/internal/domain/models"
)

// MarketStream is an upstream realtime price feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// ExchangeAdapter fetches one venue's spot/derivative observation for an
// asset. Implementations route their HTTP calls through the rate-limited
// gateway and the coalescing cache.
type ExchangeAdapter interface {
	Name() string
	FetchObservation(ctx context.Context, asset string) (models.ExchangeObservation, error)
}

// BackfillSource seeds price history for a symbol that has no streaming
// samples yet.
type BackfillSource interface {
	RecentSamples(ctx context.Context, symbol string, limit int) ([]models.PriceSample, error)
}

// CompositeSink receives every finished composite result (e.g. a Kafka
// topic for downstream consumers).
type CompositeSink interface {
	Publish(ctx context.Context, res *models.CompositeResult) error
	Close() error
}

// Broadcaster fans out an outbound message to every subscriber of a topic.
type Broadcaster interface {
	Publish(topic string, msg *models.OutboundMessage)
}

// Metrics is the instrumentation port.
type Metrics interface {
	RecordFetch(provider, result string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordBroadcast(topic string)
	SetQueueDepth(provider string, depth int)
	SetCompositeBasis(asset string, basis float64)
}
