package hub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"go-content-push/internal/domain/content"
	"go-content-push/internal/infrastructure/logger"
	"go-content-push/internal/infrastructure/metrics"
)

// StreamRegistry tracks open SSE streams.
type StreamRegistry struct {
	mu      sync.RWMutex
	clients map[string]StreamClient

	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewStreamRegistry(log logger.Logger, m *metrics.Metrics) *StreamRegistry {
	return &StreamRegistry{
		clients: make(map[string]StreamClient),
		logger:  log.WithField("registry", metrics.TransportSSE),
		metrics: m,
	}
}

// Register sends initial as the first event and starts tracking client.
func (r *StreamRegistry) Register(client StreamClient, initial content.Content) string {
	id := "sse-" + uuid.NewString()

	frame, err := r.frame(initial)
	r.mu.Lock()
	if err == nil {
		deliver(r.logger, r.failures(), id, func() error { return client.Send(frame) })
	}
	r.clients[id] = client
	count := len(r.clients)
	r.metrics.StreamClients.Set(float64(count))
	r.mu.Unlock()

	r.logger.Debugf("stream %s registered (%d open)", id, count)
	return id
}

// Notify sends c to every registered stream and returns how many accepted it.
// Failed clients stay registered; removal is driven by disconnect only.
func (r *StreamRegistry) Notify(c content.Content) int {
	frame, err := r.frame(c)
	if err != nil {
		return 0
	}

	r.mu.RLock()
	targets := make(map[string]StreamClient, len(r.clients))
	for id, client := range r.clients {
		targets[id] = client
	}
	r.mu.RUnlock()

	delivered := 0
	for id, client := range targets {
		if deliver(r.logger, r.failures(), id, func() error { return client.Send(frame) }) {
			delivered++
		}
	}
	return delivered
}

// Deregister removes the stream with id. Unknown ids are ignored.
func (r *StreamRegistry) Deregister(id string) bool {
	r.mu.Lock()
	_, exists := r.clients[id]
	delete(r.clients, id)
	count := len(r.clients)
	if exists {
		r.metrics.StreamClients.Set(float64(count))
	}
	r.mu.Unlock()

	if exists {
		r.logger.Debugf("stream %s deregistered (%d open)", id, count)
	}
	return exists
}

func (r *StreamRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every stream and empties the registry.
func (r *StreamRegistry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]StreamClient)
	r.metrics.StreamClients.Set(0)
	r.mu.Unlock()

	for id, client := range clients {
		if err := client.Close(); err != nil {
			r.logger.Errorf("failed to close stream %s: %v", id, err)
		}
	}
}

func (r *StreamRegistry) frame(c content.Content) ([]byte, error) {
	data, err := EncodeContent(c)
	if err != nil {
		r.logger.Errorf("cannot encode stream event: %v", err)
		return nil, err
	}
	return FormatEvent(data), nil
}

func (r *StreamRegistry) failures() prometheus.Counter {
	return r.metrics.DeliveryFailures.WithLabelValues(metrics.TransportSSE)
}
