package gateway

import "callcenter-gateway/internal/infrastructure/hub"

type BroadcastResult struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// SendToAll queues text on every connection registered at call time. A
// failing connection is logged and skipped.
func (g *Gateway) SendToAll(text string) BroadcastResult {
	var result BroadcastResult

	g.registry.ForEach(func(conn hub.Connection) {
		err := conn.Send(text)
		g.metrics.ObserveBroadcastSend(err)
		if err != nil {
			result.Failed++
			g.logger.Errorf("Failed to send broadcast to connection %s: %v", conn.ID(), err)
			return
		}
		result.Delivered++
	})

	g.logger.Debugf("Broadcast delivered to %d connections, %d failed", result.Delivered, result.Failed)
	return result
}
