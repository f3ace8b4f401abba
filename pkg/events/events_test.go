package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{
		ID:      "e1",
		Type:    EventFileIngested,
		Message: "archived obs1.fits version 1",
	})

	select {
	case event := <-sub:
		if event.Type != EventFileIngested {
			t.Errorf("Type = %s, want %s", event.Type, EventFileIngested)
		}
		if event.Timestamp.IsZero() {
			t.Error("Publish() did not stamp the event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the event")
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	a := broker.Subscribe()
	b := broker.Subscribe()
	defer broker.Unsubscribe(a)
	defer broker.Unsubscribe(b)

	broker.Publish(&Event{ID: "e1", Type: EventDiskCompleted})

	for _, sub := range []Subscriber{a, b} {
		select {
		case event := <-sub:
			if event.ID != "e1" {
				t.Errorf("ID = %s, want e1", event.ID)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("subscriber missed broadcast")
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	// Never drained; its buffer fills and later events are dropped for it.
	slow := broker.Subscribe()
	defer broker.Unsubscribe(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			broker.Publish(&Event{ID: "e", Type: EventFileIngested})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}
}
