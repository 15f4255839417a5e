package sse

import (
	"github.com/gin-gonic/gin"

	"callcenter-gateway/internal/infrastructure/gateway"
	"callcenter-gateway/internal/infrastructure/logger"
)

func InitSSERouter(logger logger.Logger, gw *gateway.Gateway, rg *gin.RouterGroup) {
	h := NewEventStreamHandler(gw, logger)

	apiGroup := rg.Group("/api/v1/events")
	apiGroup.GET("/stream", h.Stream)
}
