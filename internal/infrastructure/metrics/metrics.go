package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gateway"

// Metrics exposes Prometheus collectors that report gateway activity. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	connectionsActive  prometheus.Gauge
	messages           *prometheus.CounterVec
	malformedCommands  *prometheus.CounterVec
	eventsEmitted      *prometheus.CounterVec
	subscriberFailures *prometheus.CounterVec
	broadcastSends     *prometheus.CounterVec
}

// MustNewMetrics registers the gateway collectors with reg. Collectors that
// are already registered are reused, so constructing twice against the same
// registry is safe.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of client connections currently registered.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Control messages received, by decoded verb.",
		}, []string{"verb"}),
		malformedCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_commands_total",
			Help:      "Control messages rejected as malformed.",
		}, []string{"reason"}),
		eventsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Events emitted to subscribers.",
		}, []string{"event"}),
		subscriberFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_failures_total",
			Help:      "Subscriber invocations that returned an error or panicked.",
		}, []string{"event"}),
		broadcastSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_sends_total",
			Help:      "Per-connection broadcast deliveries, by outcome.",
		}, []string{"status"}),
	}

	m.connectionsActive = register(reg, m.connectionsActive)
	m.messages = register(reg, m.messages)
	m.malformedCommands = register(reg, m.malformedCommands)
	m.eventsEmitted = register(reg, m.eventsEmitted)
	m.subscriberFailures = register(reg, m.subscriberFailures)
	m.broadcastSends = register(reg, m.broadcastSends)

	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) ObserveMessage(verb string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(verb).Inc()
}

func (m *Metrics) ObserveMalformed(reason string) {
	if m == nil {
		return
	}
	m.malformedCommands.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveEvent(name string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(name).Inc()
}

func (m *Metrics) ObserveSubscriberFailure(name string) {
	if m == nil {
		return
	}
	m.subscriberFailures.WithLabelValues(name).Inc()
}

func (m *Metrics) ObserveBroadcastSend(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.broadcastSends.WithLabelValues(status).Inc()
}
