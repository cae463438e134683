// Package eventbus provides the synchronous, callback-style event
// emitter used by the Dive Planner, Deep Diver, and Chain Executor to
// report progress. Callbacks are fire-and-forget: a panicking or
// slow callback must never break the emitting component, mirroring
// spec.md's "core catches and discards exceptions from them."
package eventbus

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Event is a single emitted occurrence: a dotted type tag
// ("chain:start", "submarine:fetch", "cymonides:error", ...) plus a
// free-form data payload.
type Event struct {
	Type      string
	Data      map[string]interface{}
	Timestamp time.Time
}

// Handler receives events. A Handler must return quickly (spec.md §5:
// "Event callbacks are synchronous and must return quickly").
type Handler func(Event)

// Bus dispatches events to zero or more registered handlers. A nil *Bus
// is valid and simply drops every event — components take a *Bus so
// callers can opt out of observability by passing nil.
type Bus struct {
	handlers []Handler
	log      *logrus.Entry
}

// New creates a Bus that logs handler panics via the given logger. A
// nil logger is fine; nothing will be logged.
func New(log *logrus.Entry) *Bus {
	return &Bus{log: log}
}

// Subscribe registers a handler. Handlers are invoked in registration
// order for every subsequent Emit call.
func (b *Bus) Subscribe(h Handler) {
	if b == nil {
		return
	}
	b.handlers = append(b.handlers, h)
}

// Emit delivers an event to every registered handler, recovering from
// and discarding any handler panic so the emitting component never
// observes a failure from its own event stream.
func (b *Bus) Emit(eventType string, data map[string]interface{}) {
	if b == nil {
		return
	}
	evt := Event{Type: eventType, Data: data, Timestamp: time.Now()}
	for _, h := range b.handlers {
		b.safeInvoke(h, evt)
	}
}

func (b *Bus) safeInvoke(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.WithField("event_type", evt.Type).Warnf("event handler panicked: %v", r)
		}
	}()
	h(evt)
}

// Warn emits an "internal:warning" event. This is how Submarine
// surfaces the source system's silently-swallowed exceptions
// (_emit_event failures, WHOIS parse failures, list-vs-scalar
// ambiguity) per spec.md §9's open-question resolution: never
// propagate, but regain observability through the event stream.
func (b *Bus) Warn(component, detail string) {
	b.Emit("internal:warning", map[string]interface{}{
		"component": component,
		"detail":    detail,
	})
}

// BinaryStar emits an "internal:binary_star" event: two same-type
// entities whose values are close enough to plausibly be the same
// real-world thing but were discovered under distinct dedup keys. This
// is observability only — Submarine never auto-merges on name
// similarity alone.
func (b *Bus) BinaryStar(entityType, valueA, valueB string, distance int) {
	b.Emit("internal:binary_star", map[string]interface{}{
		"entity_type": entityType,
		"value_a":     valueA,
		"value_b":     valueB,
		"distance":    distance,
	})
}
