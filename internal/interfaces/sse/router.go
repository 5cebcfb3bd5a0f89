package sse

import (
	"time"

	"github.com/gin-gonic/gin"

	"go-content-push/internal/infrastructure/hub"
	"go-content-push/internal/infrastructure/logger"
)

func InitSSERouter(logger logger.Logger, hubInstance *hub.Hub, keepAlive time.Duration, rg *gin.RouterGroup) {
	sseHandler := NewServerSentEventHandler(hubInstance, keepAlive, logger)

	rg.GET("/events", sseHandler.Connect)
}
