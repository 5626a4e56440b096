package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchesTotal   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	broadcasts     *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	compositeBasis *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basispulse_provider_fetches_total",
				Help: "Total upstream fetches by provider and result",
			},
			[]string{"provider", "result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basispulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "basispulse_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "basispulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		broadcasts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "basispulse_broadcasts_total",
				Help: "Total stream broadcasts by topic",
			},
			[]string{"topic"},
		),
		queueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "basispulse_gateway_queue_depth",
				Help: "Queued requests waiting on a provider",
			},
			[]string{"provider"},
		),
		compositeBasis: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "basispulse_composite_annualized_basis",
				Help: "Latest composite annualized basis percent per asset",
			},
			[]string{"asset"},
		),
	}
}

// RecordFetch records one upstream fetch outcome.
func (r *Recorder) RecordFetch(provider, result string) {
	r.fetchesTotal.WithLabelValues(provider, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordBroadcast records one fan-out to a topic's subscribers.
func (r *Recorder) RecordBroadcast(topic string) {
	r.broadcasts.WithLabelValues(topic).Inc()
}

// SetQueueDepth records the current gateway queue depth for a provider.
func (r *Recorder) SetQueueDepth(provider string, depth int) {
	r.queueDepth.WithLabelValues(provider).Set(float64(depth))
}

// SetCompositeBasis records the latest composite basis for an asset.
func (r *Recorder) SetCompositeBasis(asset string, basis float64) {
	r.compositeBasis.WithLabelValues(asset).Set(basis)
}
