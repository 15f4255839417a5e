package websocket

import (
	"github.com/gin-gonic/gin"

	"callcenter-gateway/internal/infrastructure/config"
	"callcenter-gateway/internal/infrastructure/gateway"
	"callcenter-gateway/internal/infrastructure/logger"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(
	logger logger.Logger,
	gw *gateway.Gateway,
	cfg config.WebSocketConfig,
	rg *gin.RouterGroup,
) {
	wsHandler := NewWebSocketHandler(gw, cfg, logger)

	rg.GET(cfg.Path, wsHandler.Connect)

	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
