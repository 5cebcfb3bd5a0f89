package handler

import (
	"github.com/gin-gonic/gin"

	"go-content-push/internal/infrastructure/hub"
	"go-content-push/internal/infrastructure/logger"
)

func InitContentRouter(logger logger.Logger, hubInstance *hub.Hub, rg *gin.RouterGroup) {
	contentHandler := NewContentHandler(hubInstance, logger)

	rg.GET("/random", contentHandler.Random)
	rg.GET("/polling", contentHandler.Polling)
	rg.GET("/long-polling", contentHandler.LongPolling)
}
