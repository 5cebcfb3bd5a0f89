package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-content-push/internal/infrastructure/hub"
	"go-content-push/internal/infrastructure/logger"
)

// WebSocketHandler upgrades requests and hands the sockets to the hub.
type WebSocketHandler struct {
	hub      *hub.Hub
	logger   logger.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(hubInstance *hub.Hub, logger logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Any origin, matching the CORS policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Connect upgrades the request and blocks until the socket closes.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Warn("rejecting websocket client: hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Debugf("failed to upgrade connection: %v", err)
		return
	}

	conn := hub.NewWebSocketConnection("ws-"+uuid.NewString(), ws, h.logger)
	if err := h.hub.ConnectSocket(conn); err != nil {
		// the hub has already closed the socket
		h.logger.Warnf("rejecting websocket client %s: %v", conn.ID(), err)
		return
	}
	h.logger.Debugf("websocket client %s connected", conn.ID())

	<-conn.Done()
	h.logger.Debugf("websocket client %s disconnected", conn.ID())
}

// IsUpgrade reports whether the request asks for a WebSocket.
func IsUpgrade(c *gin.Context) bool {
	return websocket.IsWebSocketUpgrade(c.Request)
}
