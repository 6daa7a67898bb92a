// Package eventbus provides in-process fan-out of host lifecycle events:
// stream open and close, entity activation and release, command completion.
//
// Thread-safe, synchronous bus for single-process use. Observability
// subscribes to maintain gauges; user code never sees the bus.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// Logger is the interface for structured logging in this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Event is a host lifecycle event.
type Event interface {
	EventType() string
}

// =============================================================================
// EVENTS
// =============================================================================

// StreamStarted fires when the proxy opens an entity stream.
type StreamStarted struct {
	ComponentType string
	StreamId      string
}

// EventType implements Event.
func (e *StreamStarted) EventType() string { return "stream_started" }

// StreamEnded fires when an entity stream closes, cleanly or not.
type StreamEnded struct {
	ComponentType string
	StreamId      string
	Err           error
}

// EventType implements Event.
func (e *StreamEnded) EventType() string { return "stream_ended" }

// EntityActivated fires when an entity instance is created from an init frame.
type EntityActivated struct {
	ComponentType string
	ServiceName   string
	EntityId      string
}

// EventType implements Event.
func (e *EntityActivated) EventType() string { return "entity_activated" }

// EntityReleased fires when an entity instance is released.
type EntityReleased struct {
	ComponentType string
	ServiceName   string
	EntityId      string
}

// EventType implements Event.
func (e *EntityReleased) EventType() string { return "entity_released" }

// CommandCompleted fires after a command's reply frame is produced.
type CommandCompleted struct {
	ComponentType string
	ServiceName   string
	CommandName   string
	Status        string // "success", "failure"
	DurationMs    int64
}

// EventType implements Event.
func (e *CommandCompleted) EventType() string { return "command_completed" }

// =============================================================================
// BUS
// =============================================================================

// Handler handles one published event.
type Handler func(Event)

// subscriberEntry holds a subscriber with its unique ID for unsubscribe
// support.
type subscriberEntry struct {
	id      string
	handler Handler
}

// Bus is an in-memory synchronous event bus. Publish invokes subscribers in
// subscription order on the caller's goroutine, so per-entity ordering is
// preserved.
type Bus struct {
	logger      Logger
	subscribers map[string][]subscriberEntry
	mu          sync.RWMutex
}

// NewBus creates an empty bus.
func NewBus(logger Logger) *Bus {
	return &Bus{
		logger:      logger,
		subscribers: make(map[string][]subscriberEntry),
	}
}

// Subscribe registers a handler for an event type and returns the
// subscription id.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{
		id:      id,
		handler: handler,
	})

	if b.logger != nil {
		b.logger.Debug("eventbus_subscribed",
			"event_type", eventType,
			"subscriber_id", id,
		)
	}
	return id
}

// Unsubscribe removes a subscription. Returns true when it existed.
func (b *Bus) Unsubscribe(eventType, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.subscribers[eventType]
	for i, e := range entries {
		if e.id == id {
			b.subscribers[eventType] = append(entries[:i], entries[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers an event to every subscriber of its type. A nil bus
// discards events so publishing is always safe.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	entries := b.subscribers[event.EventType()]
	entriesCopy := make([]subscriberEntry, len(entries))
	copy(entriesCopy, entries)
	b.mu.RUnlock()

	for _, e := range entriesCopy {
		e.handler(event)
	}
}

// SubscriberCount returns the number of subscribers for an event type.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}
