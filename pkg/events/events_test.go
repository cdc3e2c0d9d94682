package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event, ok := <-ch:
		require.True(t, ok, "channel closed")
		return event
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
	return Event{}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	eb := NewEventBus()
	ch := eb.Subscribe("viewer")
	assert.Equal(t, 1, eb.SubscriberCount())

	eb.Unsubscribe("viewer")
	assert.Equal(t, 0, eb.SubscriberCount())
	_, open := <-ch
	assert.False(t, open)

	// Unknown names are ignored.
	eb.Unsubscribe("viewer")
}

func TestResubscribeClosesPreviousChannel(t *testing.T) {
	eb := NewEventBus()
	first := eb.Subscribe("viewer")
	second := eb.Subscribe("viewer")

	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, eb.SubscriberCount())

	eb.Publish(EventTypeMemoryChanged, nil)
	assert.Equal(t, EventTypeMemoryChanged, receive(t, second).Type)
}

func TestPublish(t *testing.T) {
	eb := NewEventBus()
	ch := eb.Subscribe("viewer")

	sent := eb.Publish(EventTypePlanChanged, PlanChangedEvent("agent_plan.xml", 3, 50, "Plan: 3 tasks"))
	got := receive(t, ch)

	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, EventTypePlanChanged, got.Type)
	assert.Len(t, got.ID, 36)
	assert.False(t, got.Timestamp.IsZero())
	data := got.Data.(map[string]any)
	assert.Equal(t, 50, data["percent"])
}

func TestPublishIDsAreUnique(t *testing.T) {
	eb := NewEventBus()
	a := eb.Publish(EventTypeMemoryChanged, nil)
	b := eb.Publish(EventTypeMemoryChanged, nil)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestPublishToMultipleSubscribers(t *testing.T) {
	eb := NewEventBus()
	chans := []<-chan Event{eb.Subscribe("a"), eb.Subscribe("b")}

	eb.Publish(EventTypeTaskProgress, TaskProgressEvent("t1", "in-progress", 30, ""))

	var wg sync.WaitGroup
	for _, ch := range chans {
		wg.Add(1)
		go func(ch <-chan Event) {
			defer wg.Done()
			select {
			case event := <-ch:
				assert.Equal(t, EventTypeTaskProgress, event.Type)
			case <-time.After(time.Second):
				t.Error("subscriber did not receive the event")
			}
		}(ch)
	}
	wg.Wait()
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	eb := NewEventBus()
	ch := eb.Subscribe("slow")
	for i := 0; i < subscriberBuffer; i++ {
		eb.Publish("fill", i)
	}

	done := make(chan struct{})
	go func() {
		eb.Publish("overflow", nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	assert.Len(t, ch, subscriberBuffer)
	assert.Equal(t, 0, receive(t, ch).Data)
}

func TestEventHelpers(t *testing.T) {
	plan := PlanChangedEvent("p.xml", 4, 25, "text")
	assert.Equal(t, map[string]any{"path": "p.xml", "total": 4, "percent": 25, "rendered": "text"}, plan)

	perr := PlanErrorEvent("p.xml", errors.New("unexpected EOF"))
	assert.Equal(t, "unexpected EOF", perr["error"])

	assert.Equal(t, map[string]any{"path": "m.xml"}, MemoryChangedEvent("m.xml"))

	progress := TaskProgressEvent("t2", "in-progress", 70, "ready for execution")
	assert.Equal(t, "t2", progress["task_id"])
	assert.Equal(t, 70, progress["progress"])
	assert.Equal(t, "ready for execution", progress["message"])
}
