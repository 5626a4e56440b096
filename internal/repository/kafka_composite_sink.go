package repository

import (
	"context"

	"BasisPulse/internal/domain/models"
	domrepo "BasisPulse/internal/domain/repository"
	pkgkafka "BasisPulse/pkg/kafka"
)

// KafkaCompositeSink publishes every finished composite to a Kafka topic
// keyed by asset, so downstream consumers see per-asset ordering.
type KafkaCompositeSink struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaCompositeSink creates the Kafka-backed composite sink.
func NewKafkaCompositeSink(producer *pkgkafka.Producer, topic string) domrepo.CompositeSink {
	return &KafkaCompositeSink{producer: producer, topic: topic}
}

func (s *KafkaCompositeSink) Publish(ctx context.Context, res *models.CompositeResult) error {
	return s.producer.Publish(ctx, s.topic, []byte(res.Asset), res)
}

func (s *KafkaCompositeSink) Close() error {
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}
