package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives every emitted event.
type Handler func(Event)

type subscription struct {
	id uint64
	fn Handler
}

// Bus delivers events to subscribers synchronously, in subscription order,
// on the goroutine that calls Emit.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	log    *slog.Logger
}

// NewBus returns an empty bus. A nil logger discards panic reports.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bus{log: logger.With("component", "events")}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// On subscribes fn to events of type T only.
func On[T Event](b *Bus, fn func(T)) func() {
	return b.Subscribe(func(ev Event) {
		if t, ok := ev.(T); ok {
			fn(t)
		}
	})
}

// Emit delivers ev to every subscriber. A panicking subscriber is logged
// and does not stop delivery to the rest.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s.fn, ev)
	}
}

func (b *Bus) deliver(fn Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked", "event", ev.Type(), "panic", fmt.Sprint(r))
		}
	}()
	fn(ev)
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
