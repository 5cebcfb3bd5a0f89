package sse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-content-push/internal/infrastructure/hub"
	"go-content-push/internal/infrastructure/logger"
)

type ServerSentEventHandler struct {
	hub       *hub.Hub
	keepAlive time.Duration
	logger    logger.Logger
}

func NewServerSentEventHandler(hubInstance *hub.Hub, keepAlive time.Duration, logger logger.Logger) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:       hubInstance,
		keepAlive: keepAlive,
		logger:    logger.WithField("handler", "sse"),
	}
}

// Connect streams the current content and every update until the client
// goes away or the hub shuts the stream down.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Warn("rejecting sse client: hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn := hub.NewSSEConnection(c.Writer, h.keepAlive, h.logger)
	id, err := h.hub.ConnectStream(conn)
	if err != nil {
		h.logger.Warnf("rejecting sse client: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}
	h.logger.Debugf("sse client %s connected", id)

	if err := conn.Serve(c.Request.Context()); err != nil {
		h.logger.Debugf("sse client %s stream ended: %v", id, err)
	}
	h.logger.Debugf("sse client %s disconnected", id)
}
