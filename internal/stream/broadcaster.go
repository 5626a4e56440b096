package stream

import (
	"sync"

	"BasisPulse/internal/domain/models"
	domrepo "BasisPulse/internal/domain/repository"
	applogger "BasisPulse/pkg/logger"
)

// Subscriber receives outbound messages for topics it subscribed to.
// Send must be safe for concurrent use and should fail fast rather than
// block the broadcast loop.
type Subscriber interface {
	ID() string
	Send(msg *models.OutboundMessage) error
}

// Hub routes published messages to per-topic subscriber sets. A failing
// subscriber is dropped from all topics; one bad connection never stalls
// or aborts delivery to the others.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[string]Subscriber
	logger  *applogger.Logger
	metrics domrepo.Metrics
}

// NewHub creates an empty broadcaster hub.
func NewHub(log *applogger.Logger, metrics domrepo.Metrics) *Hub {
	return &Hub{
		topics:  make(map[string]map[string]Subscriber),
		logger:  log,
		metrics: metrics,
	}
}

// Subscribe adds the subscriber to a topic. Re-subscribing is a no-op.
func (h *Hub) Subscribe(topic string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[string]Subscriber)
		h.topics[topic] = set
	}
	set[sub.ID()] = sub
}

// Unsubscribe removes the subscriber from one topic.
func (h *Hub) Unsubscribe(topic, subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(topic, subscriberID)
}

// Disconnect removes the subscriber from every topic.
func (h *Hub) Disconnect(subscriberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range h.topics {
		h.removeLocked(topic, subscriberID)
	}
}

// Publish delivers msg to every subscriber of the topic. Subscribers
// whose Send fails are logged and dropped; delivery continues to the
// rest.
func (h *Hub) Publish(topic string, msg *models.OutboundMessage) {
	h.mu.RLock()
	set := h.topics[topic]
	subs := make([]Subscriber, 0, len(set))
	for _, s := range set {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	var failed []string
	for _, s := range subs {
		if err := s.Send(msg); err != nil {
			h.logger.Warn("dropping subscriber",
				applogger.String("topic", topic),
				applogger.String("subscriber", s.ID()),
				applogger.Error(err))
			failed = append(failed, s.ID())
		}
	}
	if h.metrics != nil {
		h.metrics.RecordBroadcast(topic)
	}

	for _, id := range failed {
		h.Disconnect(id)
	}
}

// SubscriberCount reports how many subscribers a topic currently has.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) removeLocked(topic, subscriberID string) {
	set, ok := h.topics[topic]
	if !ok {
		return
	}
	delete(set, subscriberID)
	if len(set) == 0 {
		delete(h.topics, topic)
	}
}

var _ domrepo.Broadcaster = (*Hub)(nil)
