// Package notify carries fire-and-forget domain events to collaborators such as
// task suggestion logic.
package notify

import (
	"context"
	"sync"
	"time"
)

// Name identifies a kind of event
type Name string

const (
	SleepStart              Name = "sleep-start"
	SleepEnd                Name = "sleep-end"
	AwayStart               Name = "away-start"
	AwayEnd                 Name = "away-end"
	CareBlockStartConfirmed Name = "care-block-start-confirmed"
	CareBlockEndConfirmed   Name = "care-block-end-confirmed"
)

// Event is a single notification
type Event struct {
	Name    Name   `json:"name"`
	ChildID string `json:"child_id,omitempty"`
	// Ref is the id of the log entry or care block the event is about
	Ref string    `json:"ref,omitempty"`
	At  time.Time `json:"at"`
}

// Emitter publishes events. Implementations must not block the caller for long and
// must not report failures back; delivery is best effort.
type Emitter interface {
	Emit(ctx context.Context, ev Event)
}

// Nop discards every event
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Handler receives events from a Bus
type Handler func(ctx context.Context, ev Event)

// Bus fans events out to in-process subscribers, in subscription order
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
	order    []int
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.handlers[id] = h
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
		for i, v := range b.order {
			if v == id {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	}
}

func (b *Bus) Emit(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}
