package usecase

import (
	"context"
	"encoding/json"
	"time"

	"BasisPulse/internal/domain/models"
	domrepo "BasisPulse/internal/domain/repository"
	mid "BasisPulse/internal/middleware"
	pkgkafka "BasisPulse/pkg/kafka"
)

// KafkaTicksHandler ingests price ticks from a Kafka topic through the
// same pipeline the WebSocket feed uses. It is the alternative feed for
// deployments where the direct exchange stream is disabled.
type KafkaTicksHandler struct {
	topic   string
	pipe    *mid.TickPipeline
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, pipe *mid.TickPipeline, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, pipe: pipe, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle decodes a {symbol, t, c, v} payload and pushes it downstream.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		C      float64 `json:"c"`
		V      float64 `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	// Producers are inconsistent about second vs millisecond timestamps.
	if m.T > 1e11 {
		m.T = m.T / 1000
	}
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(time.Unix(m.T, 0)).Seconds())

	return h.pipe.Process(ctx, &models.Tick{
		Symbol:    m.Symbol,
		Timestamp: m.T,
		Price:     m.C,
		Volume:    m.V,
	})
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
