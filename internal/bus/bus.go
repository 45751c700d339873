// Package bus is the in-process event bus linking audio, cognition and the
// output collaborators. Delivery is synchronous and ordered by subscription.
package bus

import (
	"fmt"
	log "log/slog"
	"reflect"
	"runtime"
	"sync"
)

// Handler receives one event. Handlers doing slow work must hand it off to
// their own goroutine: Publish waits for every handler to return.
type Handler func(Event)

type subscription struct {
	name    string
	id      string
	handler Handler
}

// Bus is a synchronous pub/sub hub safe for concurrent use.
type Bus struct {
	mu   sync.Mutex
	subs []subscription
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers h for events called name, or for every event when name
// is Wildcard.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = append(b.subs, subscription{
		name:    name,
		id:      handlerID(h),
		handler: h,
	})
}

// Publish delivers the event to every matching subscriber in registration
// order. A panicking subscriber is logged and skipped; Publish never fails.
func (b *Bus) Publish(name string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	ev := Event{Name: name, Data: data}

	b.mu.Lock()
	targets := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == name || s.name == Wildcard {
			targets = append(targets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		deliver(s, ev)
	}
}

// Speak is shorthand for publishing Falar.
func (b *Bus) Speak(text string) {
	b.Publish(Falar, map[string]any{"texto": text})
}

// Reset drops every subscription.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
}

func deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Subscriber failed", "event", ev.Name, "subscriber", s.id, "err", fmt.Sprint(r))
		}
	}()
	s.handler(ev)
}

func handlerID(h Handler) string {
	if h == nil {
		return "<nil>"
	}
	if fn := runtime.FuncForPC(reflect.ValueOf(h).Pointer()); fn != nil {
		return fn.Name()
	}
	return "<unknown>"
}
