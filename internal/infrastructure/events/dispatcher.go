package events

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"callcenter-gateway/internal/infrastructure/logger"
	"callcenter-gateway/internal/infrastructure/metrics"
)

// Handler consumes an event. A returned error is logged and does not stop
// delivery to the remaining subscribers.
type Handler func(Event) error

type SubscriptionID string

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Dispatcher delivers events synchronously to the subscribers registered for
// the event's name, in subscription order.
type Dispatcher struct {
	subscribers   map[string][]subscription
	subscribersMu sync.RWMutex

	nextID atomic.Uint64

	logger  logger.Logger
	metrics *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subscribers: make(map[string][]subscription),
		logger:      logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.WithField("component", "dispatcher")
	return d
}

// Subscribe registers handler for events named name.
func (d *Dispatcher) Subscribe(name string, handler Handler) SubscriptionID {
	id := SubscriptionID(name + "#" + strconv.FormatUint(d.nextID.Add(1), 10))

	d.subscribersMu.Lock()
	d.subscribers[name] = append(d.subscribers[name], subscription{id: id, handler: handler})
	d.subscribersMu.Unlock()

	return id
}

// Unsubscribe removes a subscription and reports whether it existed.
func (d *Dispatcher) Unsubscribe(id SubscriptionID) bool {
	d.subscribersMu.Lock()
	defer d.subscribersMu.Unlock()

	for name, subs := range d.subscribers {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			// Copy so snapshots taken by in-flight emits stay intact.
			remaining := make([]subscription, 0, len(subs)-1)
			remaining = append(remaining, subs[:i]...)
			remaining = append(remaining, subs[i+1:]...)
			if len(remaining) == 0 {
				delete(d.subscribers, name)
			} else {
				d.subscribers[name] = remaining
			}
			return true
		}
	}
	return false
}

func (d *Dispatcher) SubscriberCount(name string) int {
	d.subscribersMu.RLock()
	defer d.subscribersMu.RUnlock()
	return len(d.subscribers[name])
}

// Emit invokes every subscriber of e.Name(). Subscribers run without the
// dispatcher lock held, so they may subscribe, unsubscribe or emit.
func (d *Dispatcher) Emit(e Event) {
	d.subscribersMu.RLock()
	subs := d.subscribers[e.Name()]
	d.subscribersMu.RUnlock()

	d.metrics.ObserveEvent(e.Name())

	for _, sub := range subs {
		if err := d.deliver(sub, e); err != nil {
			d.metrics.ObserveSubscriberFailure(e.Name())
			d.logger.Errorf("Subscriber %s failed on %s: %v", sub.id, e.Name(), err)
		}
	}
}

func (d *Dispatcher) deliver(sub subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return sub.handler(e)
}
