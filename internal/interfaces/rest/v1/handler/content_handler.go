package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-content-push/internal/infrastructure/hub"
	"go-content-push/internal/infrastructure/logger"
)

type ContentHandler struct {
	hub    *hub.Hub
	logger logger.Logger
}

func NewContentHandler(hubInstance *hub.Hub, logger logger.Logger) *ContentHandler {
	return &ContentHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "content"),
	}
}

// Random returns the current content.
func (h *ContentHandler) Random(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Current())
}

// Polling is the short-polling alias of Random.
func (h *ContentHandler) Polling(c *gin.Context) {
	h.Random(c)
}

// LongPolling holds the request until the next update or the long-poll
// timeout. Nothing is written if the client leaves first. Once the hub has
// stopped the current content is returned at once.
func (h *ContentHandler) LongPolling(c *gin.Context) {
	conn := hub.NewLongPollConnection()
	id, err := h.hub.ConnectLongPoll(conn)
	if err != nil {
		h.logger.Debugf("long-poll answered immediately: %v", err)
	}

	v, ok := conn.Wait(c.Request.Context())
	if !ok {
		h.logger.Debugf("long-poll client %s left before a response", id)
		return
	}
	c.JSON(http.StatusOK, v)
}
