package hub

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"go-content-push/internal/domain/content"
	"go-content-push/internal/infrastructure/logger"
)

const (
	sendBufferSize = 16

	DefaultKeepAliveInterval = 30 * time.Second

	sseWriteTimeout = 5 * time.Second
	wsWriteTimeout  = 10 * time.Second
	wsPongTimeout   = 60 * time.Second
	wsPingInterval  = 54 * time.Second // must stay below wsPongTimeout
	wsReadLimit     = 4096
)

// closeNotifier runs its handlers once, on the first fire.
type closeNotifier struct {
	mu       sync.Mutex
	fired    bool
	handlers []func()
}

func (n *closeNotifier) add(handler func()) {
	n.mu.Lock()
	if n.fired {
		n.mu.Unlock()
		handler()
		return
	}
	n.handlers = append(n.handlers, handler)
	n.mu.Unlock()
}

func (n *closeNotifier) fire() {
	n.mu.Lock()
	if n.fired {
		n.mu.Unlock()
		return
	}
	n.fired = true
	handlers := n.handlers
	n.handlers = nil
	n.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// SSEConnection is an event stream bound to one HTTP response. Frames are
// queued by Send and written by Serve on the request goroutine, so nothing
// touches the ResponseWriter after the handler returns.
type SSEConnection struct {
	writer    http.ResponseWriter
	keepAlive time.Duration

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    closeNotifier

	logger logger.Logger
}

var _ StreamClient = (*SSEConnection)(nil)

// NewSSEConnection wraps w. A keepAlive of zero disables comment pings.
func NewSSEConnection(w http.ResponseWriter, keepAlive time.Duration, log logger.Logger) *SSEConnection {
	return &SSEConnection{
		writer:    w,
		keepAlive: keepAlive,
		send:      make(chan []byte, sendBufferSize),
		done:      make(chan struct{}),
		logger:    log.WithField("connection", "sse"),
	}
}

// Send queues a framed event without blocking.
func (c *SSEConnection) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *SSEConnection) OnClose(handler func()) {
	c.closed.add(handler)
}

// Close stops Serve. It is safe to call more than once.
func (c *SSEConnection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Serve writes the stream headers and pumps queued frames until ctx is done,
// the connection is closed, or a write fails. Close handlers fire on return.
func (c *SSEConnection) Serve(ctx context.Context) error {
	defer c.closed.fire()
	defer c.Close()

	h := c.writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // nginx
	c.writer.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(c.writer)
	deadlines := true

	write := func(frame []byte) error {
		if deadlines {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				c.logger.Debugf("write deadlines unavailable: %v", err)
				deadlines = false
			}
		}
		if _, err := c.writer.Write(frame); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		return rc.Flush()
	}

	if err := rc.Flush(); err != nil {
		return fmt.Errorf("streaming unsupported: %w", err)
	}

	var ping <-chan time.Time
	if c.keepAlive > 0 {
		ticker := time.NewTicker(c.keepAlive)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case frame := <-c.send:
			if err := write(frame); err != nil {
				return err
			}
		case <-ping:
			if err := write(keepAliveFrame); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		}
	}
}

// WebSocketConnection adapts a gorilla connection to SocketClient. Inbound
// messages are read only to observe close frames and are discarded.
type WebSocketConnection struct {
	id   string
	conn *websocket.Conn

	state     atomic.Int32
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closed    closeNotifier

	logger logger.Logger
}

var _ SocketClient = (*WebSocketConnection)(nil)

// NewWebSocketConnection takes ownership of an upgraded conn and starts its pumps.
func NewWebSocketConnection(id string, conn *websocket.Conn, log logger.Logger) *WebSocketConnection {
	c := &WebSocketConnection{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: log.WithField("connection_id", id),
	}

	conn.SetReadLimit(wsReadLimit)
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	c.state.Store(int32(StateOpen))
	go c.writePump()
	go c.readPump()
	return c
}

func (c *WebSocketConnection) String() string {
	return "socket " + c.id
}

func (c *WebSocketConnection) ID() string {
	return c.id
}

func (c *WebSocketConnection) State() SocketState {
	return SocketState(c.state.Load())
}

// Send queues a text message without blocking.
func (c *WebSocketConnection) Send(payload []byte) error {
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *WebSocketConnection) OnClose(handler func()) {
	c.closed.add(handler)
}

// Done is closed once the connection reaches StateClosed.
func (c *WebSocketConnection) Done() <-chan struct{} {
	return c.done
}

// Close moves the socket to StateClosed, sends a close frame and releases the
// underlying connection. Close handlers run once.
func (c *WebSocketConnection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.done)

		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteTimeout),
		)
		err = c.conn.Close()

		c.logger.Debug("websocket connection closed")
		c.closed.fire()
	})
	return err
}

func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debugf("failed to write message: %v", err)
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debugf("failed to send ping: %v", err)
				c.Close()
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *WebSocketConnection) readPump() {
	defer c.Close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				c.logger.Warnf("websocket error: %v", err)
			}
			return
		}
	}
}

// LongPollConnection is a held request waiting for one answer.
type LongPollConnection struct {
	result    chan content.Content
	responded atomic.Bool
	closed    closeNotifier
}

var _ LongPollClient = (*LongPollConnection)(nil)

func NewLongPollConnection() *LongPollConnection {
	return &LongPollConnection{result: make(chan content.Content, 1)}
}

// Respond hands c to the waiting request. Only the first call succeeds.
func (c *LongPollConnection) Respond(v content.Content) error {
	if !c.responded.CompareAndSwap(false, true) {
		return ErrAlreadyResponded
	}
	c.result <- v
	return nil
}

func (c *LongPollConnection) OnClose(handler func()) {
	c.closed.add(handler)
}

// Wait blocks until Respond is called or ctx ends. When ctx ends first the
// close handlers fire and ok is false.
func (c *LongPollConnection) Wait(ctx context.Context) (v content.Content, ok bool) {
	select {
	case v = <-c.result:
		return v, true
	case <-ctx.Done():
		c.closed.fire()
		return content.Content{}, false
	}
}
