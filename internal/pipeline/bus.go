package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// Emitter persists an event before it is delivered. eventstore.Recorder implements it.
type Emitter interface {
	Emit(ctx context.Context, e eventstore.Event) error
}

// Handler processes an event; a returned error sends the event to the dead letter queue.
type Handler func(ctx context.Context, e eventstore.Event) error

// Bus is a synchronous pub/sub bus for run events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	emitter     Emitter
	dlq         *DeadLetterQueue
}

// NewBus creates a bus that persists events through emitter (optional).
func NewBus(emitter Emitter) *Bus {
	return &Bus{
		subscribers: map[string][]Handler{},
		emitter:     emitter,
		dlq:         NewDeadLetterQueue(0),
	}
}

// Subscribe registers h for eventType, or for every event with AllEvents.
func (b *Bus) Subscribe(eventType string, h Handler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[eventType] = append(b.subscribers[eventType], h)
	b.mu.Unlock()
}

// Publish persists e and delivers it to its subscribers. Persistence and delivery
// failures are logged and never fail the run.
func (b *Bus) Publish(ctx context.Context, e eventstore.Event) {
	if b == nil || e == nil {
		return
	}
	if b.emitter != nil {
		if err := b.emitter.Emit(ctx, e); err != nil {
			slog.Warn("Failed to record run event", logfields.Event(e.Type()), logfields.RunID(e.RunID()), logfields.Error(err))
		}
	}

	b.mu.RLock()
	hs := append([]Handler(nil), b.subscribers[e.Type()]...)
	hs = append(hs, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	for _, h := range hs {
		if err := h(ctx, e); err != nil {
			slog.Warn("Run event handler failed", logfields.Event(e.Type()), logfields.RunID(e.RunID()), logfields.Error(err))
			b.dlq.Enqueue(FailedEvent{Event: e, Error: err, Timestamp: time.Now()})
		}
	}
}

// DeadLetters returns the events a subscriber failed to handle.
func (b *Bus) DeadLetters() *DeadLetterQueue { return b.dlq }
