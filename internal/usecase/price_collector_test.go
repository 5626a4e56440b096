package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"BasisPulse/internal/domain/models"
	"BasisPulse/internal/service/history"
	applogger "BasisPulse/pkg/logger"
)

type collectorMetrics struct{}

func (collectorMetrics) RecordFetch(provider, result string)      {}
func (collectorMetrics) RecordError(kind string)                  {}
func (collectorMetrics) RecordLastPrice(symbol string, p float64) {}
func (collectorMetrics) RecordLatency(op string, s float64)       {}
func (collectorMetrics) RecordBroadcast(topic string)             {}
func (collectorMetrics) SetQueueDepth(provider string, depth int) {}
func (collectorMetrics) SetCompositeBasis(a string, b float64)    {}

type countingHub struct {
	published atomic.Int64
}

func (h *countingHub) Publish(topic string, msg *models.OutboundMessage) {
	h.published.Add(1)
}

// flakyStream drops its first connection mid-read and serves ticks on
// the second, mirroring how the websocket feed tears down both of its
// channels when the socket dies.
type flakyStream struct {
	mu         sync.Mutex
	connects   int
	subscribes int
	reads      int
	reconnects int
}

func (s *flakyStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	return nil
}

func (s *flakyStream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribes++
	return nil
}

func (s *flakyStream) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	return nil
}

func (s *flakyStream) Close() error      { return nil }
func (s *flakyStream) IsConnected() bool { return true }

func (s *flakyStream) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	s.mu.Unlock()

	ticks := make(chan *models.Tick, 4)
	errs := make(chan error, 1)
	if n == 1 {
		errs <- fmt.Errorf("socket dropped")
		close(ticks)
		close(errs)
		return ticks, errs
	}
	ticks <- &models.Tick{Symbol: "BTCUSDT", Price: 50000, Volume: 1, Timestamp: time.Now().Unix()}
	return ticks, errs
}

func (s *flakyStream) counts() (reads, reconnects, subscribes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.reconnects, s.subscribes
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestCollectorResumesAfterStreamFailure(t *testing.T) {
	stream := &flakyStream{}
	hist := history.NewStore(16)
	hub := &countingHub{}
	metrics := collectorMetrics{}

	c := NewPriceCollector(stream, NewTickProcessor(hist, hub, metrics), nil,
		hist, nil, []string{"BTCUSDT"}, 16, metrics, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.published.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if hub.published.Load() == 0 {
		t.Fatalf("no tick reached the pipeline after the stream failure")
	}

	reads, reconnects, subscribes := stream.counts()
	if reads < 2 {
		t.Fatalf("stream must be re-read after a reconnect, got %d reads", reads)
	}
	if reconnects != 1 {
		t.Fatalf("expected exactly 1 reconnect, got %d", reconnects)
	}
	if subscribes < 2 {
		t.Fatalf("stream must be resubscribed after a reconnect, got %d subscribes", subscribes)
	}
}
