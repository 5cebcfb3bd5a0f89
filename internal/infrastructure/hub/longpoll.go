package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"go-content-push/internal/domain/content"
	"go-content-push/internal/infrastructure/logger"
	"go-content-push/internal/infrastructure/metrics"
)

const DefaultLongPollTimeout = 30 * time.Second

type longPollEntry struct {
	client LongPollClient
	timer  clockwork.Timer
}

// LongPollRegistry tracks pending long-poll requests. Every entry leaves the
// registry exactly once: on update, on its own timeout, or on disconnect.
// Whichever path deletes the entry under mu owns its side effect.
type LongPollRegistry struct {
	mu      sync.Mutex
	pending map[string]*longPollEntry

	clock   clockwork.Clock
	timeout time.Duration
	current func() content.Content

	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewLongPollRegistry creates a registry whose timed-out entries are answered
// with the value returned by current at expiry.
func NewLongPollRegistry(
	clock clockwork.Clock,
	timeout time.Duration,
	current func() content.Content,
	log logger.Logger,
	m *metrics.Metrics,
) *LongPollRegistry {
	if timeout <= 0 {
		timeout = DefaultLongPollTimeout
	}
	return &LongPollRegistry{
		pending: make(map[string]*longPollEntry),
		clock:   clock,
		timeout: timeout,
		current: current,
		logger:  log.WithField("registry", metrics.TransportLongPoll),
		metrics: m,
	}
}

// Register stores client and arms its timeout.
func (r *LongPollRegistry) Register(client LongPollClient) string {
	id := "lp-" + uuid.NewString()

	r.mu.Lock()
	// resolveOne blocks on mu until the entry is stored
	entry := &longPollEntry{client: client}
	entry.timer = r.clock.AfterFunc(r.timeout, func() { r.resolveOne(id) })
	r.pending[id] = entry
	count := len(r.pending)
	r.metrics.LongPollClients.Set(float64(count))
	r.mu.Unlock()

	r.logger.Debugf("long-poll %s registered (%d pending)", id, count)
	return id
}

// ResolveAll answers every entry pending at call time with c and clears the
// registry. Entries registered afterwards are left alone.
func (r *LongPollRegistry) ResolveAll(c content.Content) int {
	return r.resolveAll(c, metrics.ReasonUpdate)
}

func (r *LongPollRegistry) resolveAll(c content.Content, reason string) int {
	r.mu.Lock()
	drained := r.pending
	r.pending = make(map[string]*longPollEntry)
	for _, entry := range drained {
		entry.timer.Stop()
	}
	r.metrics.LongPollClients.Set(0)
	r.mu.Unlock()

	if len(drained) == 0 {
		return 0
	}
	r.metrics.LongPollResolutions.WithLabelValues(reason).Add(float64(len(drained)))

	resolved := 0
	for id, entry := range drained {
		if deliver(r.logger, r.failures(), id, func() error { return entry.client.Respond(c) }) {
			resolved++
		}
	}
	return resolved
}

// resolveOne is the timeout path. It answers with the content current at
// expiry, which may predate any update.
func (r *LongPollRegistry) resolveOne(id string) {
	r.mu.Lock()
	entry, exists := r.pending[id]
	delete(r.pending, id)
	count := len(r.pending)
	if exists {
		r.metrics.LongPollClients.Set(float64(count))
	}
	r.mu.Unlock()

	if !exists {
		return
	}
	r.metrics.LongPollResolutions.WithLabelValues(metrics.ReasonTimeout).Inc()

	c := r.current()
	deliver(r.logger, r.failures(), id, func() error { return entry.client.Respond(c) })
	r.logger.Debugf("long-poll %s timed out (%d pending)", id, count)
}

// Deregister drops the entry without answering it. Unknown ids are ignored.
func (r *LongPollRegistry) Deregister(id string) bool {
	r.mu.Lock()
	entry, exists := r.pending[id]
	if exists {
		delete(r.pending, id)
		entry.timer.Stop()
	}
	count := len(r.pending)
	if exists {
		r.metrics.LongPollClients.Set(float64(count))
	}
	r.mu.Unlock()

	if exists {
		r.metrics.LongPollResolutions.WithLabelValues(metrics.ReasonDisconnect).Inc()
		r.logger.Debugf("long-poll %s abandoned (%d pending)", id, count)
	}
	return exists
}

func (r *LongPollRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *LongPollRegistry) failures() prometheus.Counter {
	return r.metrics.DeliveryFailures.WithLabelValues(metrics.TransportLongPoll)
}
