package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"callcenter-gateway/internal/infrastructure/config"
	"callcenter-gateway/internal/infrastructure/gateway"
	"callcenter-gateway/internal/infrastructure/logger"
	"callcenter-gateway/internal/interfaces/rest/v1/handler"
	"callcenter-gateway/internal/interfaces/sse"
	"callcenter-gateway/internal/interfaces/websocket"
)

func InitRouter(gw *gateway.Gateway, cfg *config.Config, log logger.Logger) http.Handler {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	gatewayHandler := handler.NewGatewayHandler(gw, log)
	rootGroup.GET("/gateway/status", gatewayHandler.Status)

	apiGroup := rootGroup.Group("/api/v1")
	{
		apiGroup.POST("/broadcast", gatewayHandler.Broadcast)
	}

	if cfg.Metrics.Enabled {
		rootGroup.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	sse.InitSSERouter(log, gw, rootGroup)
	websocket.InitWebSocketRouter(log, gw, cfg.WebSocket, rootGroup)

	return router
}
