// Package bus is the in-process change notification channel. Mutations
// publish events; each open view holds one subscription filtered to its
// user and re-fetches on any delivery.
package bus

import (
	"sync"

	"github.com/dukerupert/marks/internal/model"
)

const subscriberBuffer = 16

type changeSub struct {
	userID string
	ch     chan model.ChangeEvent
}

type authSub struct {
	userID string
	ch     chan model.AuthEvent
}

// Bus fans events out to user-filtered subscribers. Delivery is best
// effort: a subscriber that stops draining loses events rather than
// blocking publishers, which is safe because consumers re-fetch instead of
// patching state from payloads.
type Bus struct {
	mu         sync.RWMutex
	nextID     int
	changeSubs map[int]*changeSub
	authSubs   map[int]*authSub

	// forward, when set, mirrors locally published events to another
	// instance (the Redis bridge). Remote deliveries bypass it.
	forwardChange func(model.ChangeEvent)
	forwardAuth   func(model.AuthEvent)
}

func New() *Bus {
	return &Bus{
		changeSubs: make(map[int]*changeSub),
		authSubs:   make(map[int]*authSub),
	}
}

// SubscribeChanges returns a channel receiving change events for rows owned
// by userID, and a cancel func releasing the subscription. Cancel is safe to
// call more than once.
func (b *Bus) SubscribeChanges(userID string) (<-chan model.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &changeSub{userID: userID, ch: make(chan model.ChangeEvent, subscriberBuffer)}
	b.changeSubs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.changeSubs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// SubscribeAuth returns a channel of auth state changes for userID.
func (b *Bus) SubscribeAuth(userID string) (<-chan model.AuthEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &authSub{userID: userID, ch: make(chan model.AuthEvent, subscriberBuffer)}
	b.authSubs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.authSubs, id)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// PublishChange delivers the event to matching local subscribers and
// mirrors it to the bridge when one is attached.
func (b *Bus) PublishChange(ev model.ChangeEvent) {
	b.deliverChange(ev)

	b.mu.RLock()
	forward := b.forwardChange
	b.mu.RUnlock()
	if forward != nil {
		forward(ev)
	}
}

// PublishAuth delivers the auth event to matching local subscribers and
// mirrors it to the bridge when one is attached.
func (b *Bus) PublishAuth(ev model.AuthEvent) {
	b.deliverAuth(ev)

	b.mu.RLock()
	forward := b.forwardAuth
	b.mu.RUnlock()
	if forward != nil {
		forward(ev)
	}
}

func (b *Bus) deliverChange(ev model.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.changeSubs {
		if sub.userID != ev.UserID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Subscriber buffer full — drop rather than block
		}
	}
}

func (b *Bus) deliverAuth(ev model.AuthEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.authSubs {
		if sub.userID != ev.UserID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func (b *Bus) setForward(change func(model.ChangeEvent), auth func(model.AuthEvent)) {
	b.mu.Lock()
	b.forwardChange = change
	b.forwardAuth = auth
	b.mu.Unlock()
}
