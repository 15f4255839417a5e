package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"callcenter-gateway/internal/infrastructure/gateway"
	"callcenter-gateway/internal/infrastructure/logger"
)

type GatewayHandler struct {
	gateway *gateway.Gateway
	logger  logger.Logger
}

type BroadcastRequest struct {
	Message string `json:"message" binding:"required"`
}

func NewGatewayHandler(gw *gateway.Gateway, logger logger.Logger) *GatewayHandler {
	return &GatewayHandler{
		gateway: gw,
		logger:  logger.WithField("handler", "gateway"),
	}
}

// Broadcast sends the request text to every connected client.
func (h *GatewayHandler) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("Invalid request format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	if !h.gateway.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	result := h.gateway.SendToAll(req.Message)
	h.logger.Infof("Broadcast delivered to %d connections (%d failed)", result.Delivered, result.Failed)

	c.JSON(http.StatusOK, gin.H{
		"status":    "sent",
		"delivered": result.Delivered,
		"failed":    result.Failed,
	})
}

func (h *GatewayHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"gateway_running": h.gateway.IsRunning(),
		"connections":     h.gateway.ConnectionCount(),
	})
}
