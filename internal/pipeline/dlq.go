package pipeline

import (
	"sync"
	"time"

	"git.home.luguber.info/inful/pagesdeploy/internal/eventstore"
)

// FailedEvent is an event a subscriber could not handle.
type FailedEvent struct {
	Event     eventstore.Event
	Error     error
	Timestamp time.Time
}

// DeadLetterQueue keeps the most recent undelivered events for inspection.
type DeadLetterQueue struct {
	mu     sync.RWMutex
	failed []FailedEvent
	max    int
}

// NewDeadLetterQueue creates a DLQ holding at most max entries (default 100).
func NewDeadLetterQueue(max int) *DeadLetterQueue {
	if max <= 0 {
		max = 100
	}
	return &DeadLetterQueue{max: max}
}

// Enqueue adds a failed event, evicting the oldest entry when full.
func (dlq *DeadLetterQueue) Enqueue(fe FailedEvent) {
	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	if len(dlq.failed) >= dlq.max {
		dlq.failed = dlq.failed[1:]
	}
	dlq.failed = append(dlq.failed, fe)
}

// GetAll returns a copy of the queued events, oldest first.
func (dlq *DeadLetterQueue) GetAll() []FailedEvent {
	dlq.mu.RLock()
	defer dlq.mu.RUnlock()
	result := make([]FailedEvent, len(dlq.failed))
	copy(result, dlq.failed)
	return result
}

// Count returns the number of queued events.
func (dlq *DeadLetterQueue) Count() int {
	dlq.mu.RLock()
	defer dlq.mu.RUnlock()
	return len(dlq.failed)
}
