package websocket

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"callcenter-gateway/internal/infrastructure/config"
	"callcenter-gateway/internal/infrastructure/gateway"
	"callcenter-gateway/internal/infrastructure/hub"
	"callcenter-gateway/internal/infrastructure/logger"
)

// WebSocketHandler upgrades agent clients and wires their connections into
// the gateway.
type WebSocketHandler struct {
	gateway  *gateway.Gateway
	logger   logger.Logger
	upgrader websocket.Upgrader
	opts     hub.WebSocketOptions
}

func NewWebSocketHandler(
	gw *gateway.Gateway,
	cfg config.WebSocketConfig,
	logger logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		gateway: gw,
		logger:  logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		opts: hub.WebSocketOptions{
			SendBuffer:     cfg.SendBuffer,
			MaxMessageSize: cfg.MaxMessageSize,
			WriteTimeout:   cfg.WriteTimeout,
			PongTimeout:    cfg.PongTimeout,
			PingInterval:   cfg.PingInterval,
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Connect handles WebSocket connection upgrade requests
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.gateway.IsRunning() {
		h.logger.Error("Gateway is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := hub.NewWebSocketConnection("ws-"+uuid.NewString(), conn, h.opts, h.logger)

	// Register before the read pump starts so no message can precede OnOpen.
	if err := h.gateway.OnOpen(wsConn); err != nil {
		h.logger.Errorf("Rejecting connection %s: %v", wsConn.ID(), err)
		wsConn.Close()
		return
	}
	wsConn.Start(h.gateway)

	<-wsConn.Context().Done()
	h.logger.Infof("WebSocket connection %s disconnected", wsConn.ID())
}

// GetConnections returns information about registered connections
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.gateway.Connections()
	connectionInfo := make([]gin.H, len(connections))

	for i, conn := range connections {
		info := gin.H{
			"id":     conn.ID(),
			"closed": conn.IsClosed(),
		}
		if ws, ok := conn.(*hub.WebSocketConnection); ok {
			info["last_activity"] = ws.LastActivity()
		}
		connectionInfo[i] = info
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connectionInfo,
		"gateway_running":   h.gateway.IsRunning(),
	})
}
