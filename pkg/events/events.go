// Package events fans plan and memory changes out to viewers.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one change notification.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Event types
const (
	EventTypePlanChanged   = "plan_changed"
	EventTypePlanError     = "plan_error"
	EventTypeMemoryChanged = "memory_changed"
	EventTypeTaskProgress  = "task_progress"
)

const subscriberBuffer = 100

// EventBus delivers published events to every subscriber. Delivery never
// blocks: a subscriber whose buffer is full misses the event.
type EventBus struct {
	subscribers map[string]chan Event
	mutex       sync.RWMutex
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string]chan Event),
	}
}

// Subscribe registers name and returns its channel. Subscribing an existing
// name replaces (and closes) the previous channel.
func (eb *EventBus) Subscribe(name string) <-chan Event {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if old, exists := eb.subscribers[name]; exists {
		close(old)
	}
	ch := make(chan Event, subscriberBuffer)
	eb.subscribers[name] = ch
	return ch
}

// Unsubscribe removes name and closes its channel.
func (eb *EventBus) Unsubscribe(name string) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if ch, exists := eb.subscribers[name]; exists {
		delete(eb.subscribers, name)
		close(ch)
	}
}

// SubscriberCount reports how many subscribers are registered.
func (eb *EventBus) SubscriberCount() int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers)
}

// Publish sends an event of eventType carrying data to all subscribers and
// returns it.
func (eb *EventBus) Publish(eventType string, data any) Event {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	// The read lock is held while sending so Unsubscribe cannot close a
	// channel mid-send; sends are non-blocking.
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
	return event
}

// PlanChangedEvent describes the plan after a change on disk.
func PlanChangedEvent(path string, total, percent int, rendered string) map[string]any {
	return map[string]any{
		"path":     path,
		"total":    total,
		"percent":  percent,
		"rendered": rendered,
	}
}

// PlanErrorEvent reports a plan file that could not be read.
func PlanErrorEvent(path string, err error) map[string]any {
	return map[string]any{
		"path":  path,
		"error": err.Error(),
	}
}

// MemoryChangedEvent reports a rewritten memory document.
func MemoryChangedEvent(path string) map[string]any {
	return map[string]any{
		"path": path,
	}
}

// TaskProgressEvent reports a task moving through its execution states.
func TaskProgressEvent(taskID, status string, progress int, message string) map[string]any {
	return map[string]any{
		"task_id":  taskID,
		"status":   status,
		"progress": progress,
		"message":  message,
	}
}
