// Package events implements the change event bus: every successful write to
// the message log, membership store, channel directory, or profile records
// is captured as a domain.ChangeEvent and dispatched asynchronously to
// registered handlers (in practice, the subscription manager).
//
// Ordering: a single dispatcher goroutine drains a buffered channel and
// invokes handlers in publish order. Within one process this yields a total
// publish order, which subsumes the per-topic ordering the delivery layer
// must preserve. Handlers run on the dispatcher goroutine and must not
// block; the subscription manager honors this by using non-blocking sends
// into per-subscription buffers.
//
// Overflow: Publish never blocks a committing writer. If the bus buffer is
// full the event is dropped, counted, and logged — bounded memory beats
// unbounded write latency, and a dropped event is visible in metrics rather
// than swallowed silently.
package events

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/crewchat/go-team-chat/internal/domain"
)

var (
	// busPublished counts events accepted by the bus, by entity kind.
	busPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_events_published_total",
			Help: "Total number of change events accepted by the bus.",
		},
		[]string{"kind"},
	)

	// busDropped counts events dropped because the bus buffer was full.
	busDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bus_events_dropped_total",
			Help: "Total number of change events dropped due to a full bus buffer.",
		},
	)
)

func init() {
	prometheus.MustRegister(busPublished, busDropped)
}

// Handler consumes one change event. Handlers run on the dispatcher
// goroutine, in publish order, and must return promptly.
type Handler func(domain.ChangeEvent)

// Bus is an in-process, ordered, asynchronous change event bus.
// Construct with NewBus; the zero value is not usable.
type Bus struct {
	ch   chan domain.ChangeEvent
	done chan struct{}

	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewBus creates a bus with the given buffer size and starts its dispatcher
// goroutine. Sizes below 1 are clamped to 1.
func NewBus(buffer int) *Bus {
	if buffer < 1 {
		buffer = 1
	}
	b := &Bus{
		ch:   make(chan domain.ChangeEvent, buffer),
		done: make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// SubscribeFunc registers a handler for all subsequent events. Handlers are
// invoked in registration order.
func (b *Bus) SubscribeFunc(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish enqueues an event for dispatch. It never blocks: when the buffer
// is full the event is dropped and counted. Publishing to a closed bus is a
// no-op.
func (b *Bus) Publish(ev domain.ChangeEvent) {
	// The read lock must cover the send itself: Close flips the flag under
	// the write lock before close(b.ch), so a sender inside this section can
	// never hit an already-closed channel.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.ch <- ev:
		busPublished.WithLabelValues(string(ev.Kind)).Inc()
	default:
		busDropped.Inc()
		log.Warn().
			Str("kind", string(ev.Kind)).
			Str("op", string(ev.Op)).
			Msg("event bus buffer full, dropping event")
	}
}

// Close stops accepting events, drains what is already buffered, and waits
// for the dispatcher to finish. Safe to call once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.ch)
	<-b.done
}

// dispatch drains the event channel and fans each event out to the
// registered handlers, preserving publish order.
func (b *Bus) dispatch() {
	defer close(b.done)
	for ev := range b.ch {
		b.mu.RLock()
		hs := b.handlers
		b.mu.RUnlock()
		for _, h := range hs {
			h(ev)
		}
	}
}
