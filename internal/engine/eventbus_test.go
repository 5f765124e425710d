package engine

import (
	"context"
	"testing"
	"time"
)

func TestChannelDeliversEvents(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := bus.Channel(ctx, 8)
	bus.Publish(Event{Type: EventInstanceStarted, InstanceID: "i1"})

	select {
	case ev := <-ch:
		if ev.Type != EventInstanceStarted || ev.InstanceID != "i1" {
			t.Errorf("got %s for %s, want instance.started for i1", ev.Type, ev.InstanceID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestChannelPublishAfterCancelDoesNotPanic(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch := bus.Channel(ctx, 4)
	bus.Publish(Event{Type: EventInstanceStarted})
	cancel()

	// The channel closes once the subscription tears down; drain to
	// that point so the publishes below race only the removed handler.
	deadline := time.After(time.Second)
drain:
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				break drain
			}
		case <-deadline:
			t.Fatal("channel did not close after cancel")
		}
	}

	for i := 0; i < 200; i++ {
		bus.Publish(Event{Type: EventActivityExecuted})
	}
}

func TestChannelDropsWhenBufferFull(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := bus.Channel(ctx, 1)
	bus.Publish(Event{InstanceID: "first"})
	bus.Publish(Event{InstanceID: "second"})

	ev := <-ch
	if ev.InstanceID != "first" {
		t.Errorf("got %s, want first", ev.InstanceID)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected second event %s, want drop", ev.InstanceID)
	default:
	}
}
