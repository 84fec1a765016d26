package notify

import (
	"context"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublishFiltersByOrganization(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	org1 := b.Subscribe(ctx, "org1")
	org2 := b.Subscribe(ctx, "org2")

	b.Publish(Event{OrganizationID: "org1", Kind: KindSites})

	evt := recv(t, org1)
	if evt.Kind != KindSites || evt.OrganizationID != "org1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if evt.OccurredAt.IsZero() {
		t.Fatal("publish should stamp the event time")
	}

	select {
	case e := <-org2:
		t.Fatalf("org2 subscriber received a foreign event: %+v", e)
	default:
	}
}

func TestUnsubscribeOnContextCancel(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch := b.Subscribe(ctx, "org1")
	if b.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", b.SubscriberCount())
	}

	cancel()

	// The channel closes once the cancellation is observed.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if b.SubscriberCount() != 0 {
					t.Fatalf("SubscriberCount after cancel = %d, want 0", b.SubscriberCount())
				}
				return
			}
		case <-deadline:
			t.Fatal("subscription channel never closed")
		}
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := b.Subscribe(ctx, "org1")

	// Overfill the buffer; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish(Event{OrganizationID: "org1", Kind: KindAssignments})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The buffered events are still deliverable.
	for i := 0; i < subscriberBuffer; i++ {
		recv(t, ch)
	}
}

func TestOnPublishHook(t *testing.T) {
	b := NewBroker()
	var count int
	b.OnPublish(func() { count++ })

	b.Publish(Event{OrganizationID: "org1", Kind: KindSites})
	b.Publish(Event{OrganizationID: "org1", Kind: KindSites})

	if count != 2 {
		t.Fatalf("hook ran %d times, want 2", count)
	}
}
