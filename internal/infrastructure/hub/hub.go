package hub

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"go-content-push/internal/domain/content"
	"go-content-push/internal/infrastructure/logger"
	"go-content-push/internal/infrastructure/metrics"
)

const (
	DefaultMinInterval = 5 * time.Second
	DefaultMaxInterval = 15 * time.Second
)

// Option configures a Hub.
type Option func(*Hub)

// WithClock sets the clock driving the scheduler and long-poll timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(h *Hub) { h.clock = clock }
}

// WithRand sets the random source for scheduler delays.
func WithRand(r content.Rand) Option {
	return func(h *Hub) { h.rand = r }
}

// WithGenerator sets how new content is produced.
func WithGenerator(gen *content.Generator) Option {
	return func(h *Hub) { h.generator = gen }
}

// WithUpdateInterval bounds the random delay between ticks to [min, max).
// When max <= min every delay equals min.
func WithUpdateInterval(min, max time.Duration) Option {
	return func(h *Hub) {
		h.minInterval = min
		h.maxInterval = max
	}
}

// WithLongPollTimeout sets how long a long-poll request is held.
func WithLongPollTimeout(d time.Duration) Option {
	return func(h *Hub) { h.longPollTimeout = d }
}

// WithMetrics sets the metrics sink. Without it metrics go to a private registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Hub owns the current content and the three client registries, and runs the
// update scheduler. One Hub is created per process and shared by all handlers.
type Hub struct {
	store     *content.Store
	streams   *StreamRegistry
	sockets   *SocketRegistry
	longPolls *LongPollRegistry

	// tickMu orders ticks against registrations: a tick holds it exclusively
	// from update through the last notification.
	tickMu sync.RWMutex

	// stopped is set by Stop and cleared by Start. Connect* hold runningMu
	// for reading so no client registers after Stop has drained the registries.
	running   bool
	stopped   bool
	runningMu sync.RWMutex

	clock           clockwork.Clock
	rand            content.Rand
	generator       *content.Generator
	minInterval     time.Duration
	maxInterval     time.Duration
	longPollTimeout time.Duration

	logger  logger.Logger
	metrics *metrics.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Hub. It does not tick until Start is called.
func New(log logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		clock:           clockwork.NewRealClock(),
		rand:            globalRand{},
		minInterval:     DefaultMinInterval,
		maxInterval:     DefaultMaxInterval,
		longPollTimeout: DefaultLongPollTimeout,
		logger:          log.WithField("component", "hub"),
	}
	for _, opt := range opts {
		opt(h)
	}

	if h.generator == nil {
		h.generator = content.NewGenerator("", nil, nil)
	}
	if h.metrics == nil {
		h.metrics = metrics.New(prometheus.NewRegistry())
	}

	h.store = content.NewStore(h.generator)
	h.streams = NewStreamRegistry(h.logger, h.metrics)
	h.sockets = NewSocketRegistry(h.logger, h.metrics)
	h.longPolls = NewLongPollRegistry(h.clock, h.longPollTimeout, h.store.Current, h.logger, h.metrics)
	return h
}

// Start launches the scheduler loop.
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	h.running = true
	h.stopped = false

	go h.run(runCtx, h.done)

	h.logger.Infof("hub started, updating every %s to %s", h.minInterval, h.maxInterval)
	return nil
}

// Stop ends the scheduler loop, answers pending long-polls with the current
// content and closes every stream and socket.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.cancel()
	select {
	case <-h.done:
	case <-ctx.Done():
		h.logger.Warn("scheduler did not stop before shutdown deadline")
	}

	h.tickMu.Lock()
	h.longPolls.resolveAll(h.store.Current(), metrics.ReasonShutdown)
	h.tickMu.Unlock()

	h.streams.CloseAll()
	h.sockets.CloseAll()

	h.running = false
	h.stopped = true
	h.logger.Info("hub stopped")
	return nil
}

func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// run fires a tick after each random delay. The timer is re-armed only after
// the tick completes, so ticks never overlap.
func (h *Hub) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := h.clock.NewTimer(h.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-timer.Chan():
			h.Tick()
			timer.Reset(h.nextDelay())

		case <-ctx.Done():
			h.logger.Info("scheduler loop stopped")
			return
		}
	}
}

func (h *Hub) nextDelay() time.Duration {
	span := h.maxInterval - h.minInterval
	if span <= 0 {
		return h.minInterval
	}
	return h.minInterval + time.Duration(h.rand.IntN(int(span)))
}

// Tick produces new content and fans it out to every registry.
func (h *Hub) Tick() content.Content {
	h.tickMu.Lock()
	defer h.tickMu.Unlock()

	c := h.store.Update()
	h.metrics.Ticks.Inc()

	streams := h.streams.Notify(c)
	sockets := h.sockets.Notify(c)
	polls := h.longPolls.ResolveAll(c)

	h.logger.WithFields(logger.Fields{
		"image_url": c.ImageURL,
		"sse":       streams,
		"websocket": sockets,
		"long_poll": polls,
	}).Info("content updated")
	return c
}

// Current returns the current content.
func (h *Hub) Current() content.Content {
	return h.store.Current()
}

// ConnectStream registers an SSE stream and deregisters it when it closes.
// After Stop the stream is closed and ErrHubStopped returned.
func (h *Hub) ConnectStream(client StreamClient) (string, error) {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if h.stopped {
		_ = client.Close()
		return "", ErrHubStopped
	}

	h.tickMu.RLock()
	id := h.streams.Register(client, h.store.Current())
	h.tickMu.RUnlock()

	client.OnClose(func() { h.streams.Deregister(id) })
	return id, nil
}

// ConnectSocket registers an open socket and deregisters it when it closes.
// After Stop the socket is closed and ErrHubStopped returned.
func (h *Hub) ConnectSocket(socket SocketClient) error {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if h.stopped {
		_ = socket.Close()
		return ErrHubStopped
	}

	h.tickMu.RLock()
	h.sockets.Register(socket, h.store.Current())
	h.tickMu.RUnlock()

	socket.OnClose(func() { h.sockets.Deregister(socket) })
	return nil
}

// ConnectLongPoll holds a long-poll request until the next tick or its
// timeout. A disconnect before either drops it silently. After Stop the
// request is answered at once with the current content and ErrHubStopped
// returned.
func (h *Hub) ConnectLongPoll(client LongPollClient) (string, error) {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()

	if h.stopped {
		_ = client.Respond(h.store.Current())
		return "", ErrHubStopped
	}

	h.tickMu.RLock()
	id := h.longPolls.Register(client)
	h.tickMu.RUnlock()

	client.OnClose(func() { h.longPolls.Deregister(id) })
	return id, nil
}

// Stats reports live clients per transport.
type Stats struct {
	SSE         int `json:"sse"`
	WebSocket   int `json:"websocket"`
	LongPolling int `json:"long_polling"`
}

func (h *Hub) Stats() Stats {
	return Stats{
		SSE:         h.streams.Count(),
		WebSocket:   h.sockets.Count(),
		LongPolling: h.longPolls.Count(),
	}
}

// ConnectionCount returns the total number of live clients.
func (h *Hub) ConnectionCount() int {
	s := h.Stats()
	return s.SSE + s.WebSocket + s.LongPolling
}
