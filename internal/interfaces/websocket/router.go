package websocket

import (
	"github.com/gin-gonic/gin"

	"go-content-push/internal/infrastructure/hub"
	"go-content-push/internal/infrastructure/logger"
)

// InitWebSocketRouter registers GET /ws and returns the handler so unmatched
// upgrade requests can be routed to it too.
func InitWebSocketRouter(logger logger.Logger, hubInstance *hub.Hub, rg *gin.RouterGroup) *WebSocketHandler {
	wsHandler := NewWebSocketHandler(hubInstance, logger)

	rg.GET("/ws", wsHandler.Connect)
	return wsHandler
}
