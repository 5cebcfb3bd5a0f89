package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go-content-push/internal/infrastructure/logger"
)

type HTTPServer struct {
	addr    string
	handler http.Handler
	logger  logger.Logger

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	ready    chan struct{}
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(addr string, handler http.Handler, log logger.Logger) *HTTPServer {
	return &HTTPServer{
		addr:    addr,
		handler: handler,
		logger:  log.WithField("component", "http"),
		ready:   make(chan struct{}),
	}
}

// Start listens and serves until Stop is called. A clean shutdown returns nil.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return err
	}

	// WriteTimeout stays zero: event streams and long-polls outlive any fixed
	// write deadline. Stream writes set per-write deadlines instead.
	// Request contexts are not tied to ctx; held requests end through the hub
	// and Stop, not through cancellation.
	srv := &http.Server{
		Handler:           h.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	h.mu.Lock()
	h.srv = srv
	h.listener = ln
	h.mu.Unlock()
	close(h.ready)

	h.logger.Infof("http server listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down. It is a no-op before Start.
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.srv
	h.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Addr returns the bound address once the server is listening.
func (h *HTTPServer) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-h.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.listener.Addr(), nil
}
