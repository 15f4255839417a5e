package gateway

import (
	"callcenter-gateway/internal/infrastructure/events"
	"callcenter-gateway/internal/infrastructure/hub"
	"callcenter-gateway/internal/infrastructure/logger"
	"callcenter-gateway/internal/infrastructure/metrics"
)

type Option func(*Gateway)

// WithLogger sets the logger. Without it the gateway logs nothing.
func WithLogger(l logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics records connection and command counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithDispatcher shares an existing dispatcher, e.g. a process-wide one.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(g *Gateway) { g.dispatcher = d }
}

// WithRegistry uses r to track open connections.
func WithRegistry(r *hub.Registry) Option {
	return func(g *Gateway) { g.registry = r }
}
