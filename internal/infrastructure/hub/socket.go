package hub

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"go-content-push/internal/domain/content"
	"go-content-push/internal/infrastructure/logger"
	"go-content-push/internal/infrastructure/metrics"
)

// SocketRegistry tracks open sockets by identity.
type SocketRegistry struct {
	mu      sync.RWMutex
	sockets map[SocketClient]struct{}

	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewSocketRegistry(log logger.Logger, m *metrics.Metrics) *SocketRegistry {
	return &SocketRegistry{
		sockets: make(map[SocketClient]struct{}),
		logger:  log.WithField("registry", metrics.TransportWebSocket),
		metrics: m,
	}
}

// Register adds socket to the open set and sends it initial.
func (r *SocketRegistry) Register(socket SocketClient, initial content.Content) {
	payload, err := EncodeContent(initial)

	r.mu.Lock()
	r.sockets[socket] = struct{}{}
	if err == nil {
		deliver(r.logger, r.failures(), label(socket), func() error { return socket.Send(payload) })
	}
	count := len(r.sockets)
	r.metrics.SocketClients.Set(float64(count))
	r.mu.Unlock()

	r.logger.Debugf("socket registered (%d open)", count)
}

// Notify sends c to every socket in the Open state. Sockets in any other state
// are skipped but kept; the close event removes them.
func (r *SocketRegistry) Notify(c content.Content) int {
	payload, err := EncodeContent(c)
	if err != nil {
		r.logger.Errorf("cannot encode socket message: %v", err)
		return 0
	}

	r.mu.RLock()
	targets := make([]SocketClient, 0, len(r.sockets))
	for socket := range r.sockets {
		targets = append(targets, socket)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, socket := range targets {
		if socket.State() != StateOpen {
			continue
		}
		if deliver(r.logger, r.failures(), label(socket), func() error { return socket.Send(payload) }) {
			delivered++
		}
	}
	return delivered
}

// Deregister removes socket. Unknown sockets are ignored.
func (r *SocketRegistry) Deregister(socket SocketClient) bool {
	r.mu.Lock()
	_, exists := r.sockets[socket]
	delete(r.sockets, socket)
	count := len(r.sockets)
	if exists {
		r.metrics.SocketClients.Set(float64(count))
	}
	r.mu.Unlock()

	if exists {
		r.logger.Debugf("socket deregistered (%d open)", count)
	}
	return exists
}

func (r *SocketRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sockets)
}

// CloseAll closes every socket and empties the registry.
func (r *SocketRegistry) CloseAll() {
	r.mu.Lock()
	sockets := r.sockets
	r.sockets = make(map[SocketClient]struct{})
	r.metrics.SocketClients.Set(0)
	r.mu.Unlock()

	for socket := range sockets {
		if err := socket.Close(); err != nil {
			r.logger.Errorf("failed to close %s: %v", label(socket), err)
		}
	}
}

func (r *SocketRegistry) failures() prometheus.Counter {
	return r.metrics.DeliveryFailures.WithLabelValues(metrics.TransportWebSocket)
}

func label(socket SocketClient) string {
	if s, ok := socket.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("socket %p", socket)
}
