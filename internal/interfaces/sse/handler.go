package sse

import (
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"callcenter-gateway/internal/infrastructure/events"
	"callcenter-gateway/internal/infrastructure/gateway"
	"callcenter-gateway/internal/infrastructure/logger"
)

const feedBuffer = 64

// FeedRecord is the JSON form of a gateway event on the feed.
type FeedRecord struct {
	Event        string    `json:"event"`
	ConnectionID string    `json:"connection_id,omitempty"`
	AgentID      string    `json:"agent_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func newFeedRecord(e events.Event) FeedRecord {
	rec := FeedRecord{Event: e.Name(), Timestamp: time.Now().UTC()}
	if conn, ok := e.Connection(); ok {
		rec.ConnectionID = conn.ID()
	}
	if agentID, ok := e.AgentID(); ok {
		rec.AgentID = agentID
	}
	return rec
}

// EventStreamHandler streams emitted gateway events to dashboards over
// server-sent events.
type EventStreamHandler struct {
	gateway *gateway.Gateway
	logger  logger.Logger
}

func NewEventStreamHandler(gw *gateway.Gateway, logger logger.Logger) *EventStreamHandler {
	return &EventStreamHandler{
		gateway: gw,
		logger:  logger.WithField("handler", "sse"),
	}
}

// Stream subscribes to every gateway event and forwards them until the client
// goes away or the gateway stops. Events that arrive while the client's buffer
// is full are dropped.
func (h *EventStreamHandler) Stream(c *gin.Context) {
	done := h.gateway.Done()
	if !h.gateway.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	feed := make(chan FeedRecord, feedBuffer)
	for _, name := range events.Names {
		id := h.gateway.Subscribe(name, func(e events.Event) error {
			select {
			case feed <- newFeedRecord(e):
			default:
				h.logger.Warnf("Event feed buffer full, dropping %s", e.Name())
			}
			return nil
		})
		defer h.gateway.Unsubscribe(id)
	}

	// Streams outlive the server's write timeout.
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debugf("Could not clear write deadline: %v", err)
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	sse.Encode(c.Writer, sse.Event{
		Event: "connected",
		Data: gin.H{
			"connections": h.gateway.ConnectionCount(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		},
	})
	c.Writer.Flush()

	h.logger.Info("Event feed client connected")
	ctx := c.Request.Context()
	for {
		select {
		case rec := <-feed:
			if err := sse.Encode(c.Writer, sse.Event{Event: rec.Event, Data: rec}); err != nil {
				h.logger.Errorf("Failed to write event: %v", err)
				return
			}
			c.Writer.Flush()
		case <-ctx.Done():
			h.logger.Info("Event feed client disconnected")
			return
		case <-done:
			h.logger.Info("Gateway stopped, closing event feed")
			return
		}
	}
}
