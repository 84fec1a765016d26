// Package notify delivers change triggers to interested listeners. Events
// are payload-agnostic: they say only that sites or assignments in an
// organization may have changed, and listeners re-resolve from the
// authorization store rather than diffing.
package notify

import (
	"context"
	"sync"
	"time"
)

// Kind classifies what family of records changed.
type Kind string

const (
	KindSites       Kind = "sites"
	KindAssignments Kind = "assignments"
)

// Event is a change trigger scoped to one organization.
type Event struct {
	OrganizationID string    `json:"organization_id"`
	Kind           Kind      `json:"kind"`
	OccurredAt     time.Time `json:"occurred_at"`
}

const subscriberBuffer = 16

// Broker fan-outs change events to all active subscribers. Slow subscribers
// have events dropped rather than blocking publishers; a dropped trigger is
// harmless because the next event forces the same re-resolution.
type Broker struct {
	mu        sync.RWMutex
	subs      map[int]subscriber
	next      int
	onPublish func()
}

type subscriber struct {
	orgID string
	ch    chan Event
}

// NewBroker initialises an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]subscriber)}
}

// OnPublish registers a hook invoked once per published event. Set during
// startup, before any Publish call.
func (b *Broker) OnPublish(fn func()) {
	b.onPublish = fn
}

// Subscribe registers a subscriber for events in the given organization and
// returns a channel which will receive them. The channel is closed when the
// provided context ends.
func (b *Broker) Subscribe(ctx context.Context, orgID string) <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = subscriber{orgID: orgID, ch: ch}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers of its organization.
func (b *Broker) Publish(evt Event) {
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	if b.onPublish != nil {
		b.onPublish()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.orgID != evt.OrganizationID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop when the subscriber is slow to avoid blocking.
		}
	}
}

// SubscriberCount returns the number of active subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
