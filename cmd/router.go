package main

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"go-content-push/internal/infrastructure/config"
	"go-content-push/internal/infrastructure/hub"
	"go-content-push/internal/infrastructure/logger"
	"go-content-push/internal/infrastructure/metrics"
	"go-content-push/internal/interfaces/rest/v1/handler"
	"go-content-push/internal/interfaces/sse"
	"go-content-push/internal/interfaces/websocket"
)

// InitRouter wires every endpoint. reg may be nil when metrics are disabled.
func InitRouter(hubInstance *hub.Hub, cfg *config.Config, reg *prometheus.Registry, log logger.Logger) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	// Health check endpoint
	rootGroup.GET("/hub/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"hub_running": hubInstance.IsRunning(),
			"connections": hubInstance.Stats(),
		})
	})

	if reg != nil {
		rootGroup.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	}

	handler.InitContentRouter(log, hubInstance, rootGroup)
	sse.InitSSERouter(log, hubInstance, cfg.SSEKeepAlive, rootGroup)
	wsHandler := websocket.InitWebSocketRouter(log, hubInstance, rootGroup)

	static := staticHandler(cfg.StaticDir, log)
	router.NoRoute(func(c *gin.Context) {
		if websocket.IsUpgrade(c) {
			wsHandler.Connect(c)
			return
		}
		if static != nil && (c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead) {
			static.ServeHTTP(c.Writer, c.Request)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}

// staticHandler serves the client files, or returns nil when dir is unset or
// missing.
func staticHandler(dir string, log logger.Logger) http.Handler {
	if dir == "" {
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("static directory %q not found, serving API only", dir)
		return nil
	}
	return http.FileServer(http.Dir(dir))
}
