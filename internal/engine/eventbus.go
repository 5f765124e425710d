package engine

import (
	"context"
	"sync"
	"time"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

type EventType string

const (
	EventInstanceStarted   EventType = "instance.started"
	EventInstanceResumed   EventType = "instance.resumed"
	EventInstanceBlocked   EventType = "instance.blocked"
	EventInstanceCompleted EventType = "instance.completed"
	EventInstanceFaulted   EventType = "instance.faulted"
	EventInstanceCancelled EventType = "instance.cancelled"
	EventActivityExecuted  EventType = "activity.executed"
	EventActivityBlocked   EventType = "activity.blocked"
	EventActivityFaulted   EventType = "activity.faulted"
)

// Event is one observation of engine progress.
type Event struct {
	ID           string         `json:"id"`
	DefinitionID string         `json:"definition_id"`
	InstanceID   string         `json:"instance_id"`
	ActivityID   string         `json:"activity_id,omitempty"`
	Type         EventType      `json:"type"`
	Payload      map[string]any `json:"payload,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

type EventHandler func(Event)

// EventBus fans engine events out to subscribed handlers.
type EventBus struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[uint64]EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[uint64]EventHandler)}
}

func (b *EventBus) Subscribe(handler EventHandler) {
	b.add(handler)
}

func (b *EventBus) add(handler EventHandler) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	return id
}

func (b *EventBus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// Channel returns a buffered channel fed by a subscription until ctx is
// done, then unsubscribed and closed. Events are dropped when the
// buffer is full. The close is fenced against in-flight publishes:
// Publish may hold a copy of the handler past removal, so the handler
// itself checks the closed flag under the same lock that closes ch.
func (b *EventBus) Channel(ctx context.Context, bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	var mu sync.Mutex
	closed := false
	id := b.add(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
	go func() {
		<-ctx.Done()
		b.remove(id)
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}

func (e *Engine) publish(inst *conveyor.WorkflowInstance, activityID string, typ EventType, payload map[string]any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(Event{
		ID:           conveyor.ShortID("ev"),
		DefinitionID: inst.DefinitionID,
		InstanceID:   inst.ID,
		ActivityID:   activityID,
		Type:         typ,
		Payload:      payload,
		Timestamp:    time.Now().UTC(),
	})
}
