// Package events is the session-wide publish/subscribe channel. Delivery is
// synchronous: Publish returns after every subscriber has run.
package events

import (
	"sync"
)

// Topic is the closed set of events the dialogue core exchanges.
type Topic int

const (
	TopicDialogStart Topic = iota + 1
	TopicDialogEnd
	TopicConsequence
	TopicWin
	TopicFail
)

func (t Topic) String() string {
	switch t {
	case TopicDialogStart:
		return "dialog-start"
	case TopicDialogEnd:
		return "dialog-end"
	case TopicConsequence:
		return "consequence-popup"
	case TopicWin:
		return "win"
	case TopicFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Event is the payload carried on every topic. Fields not meaningful for a
// topic stay zero.
type Event struct {
	Topic   Topic  `json:"-"`
	NodeID  int    `json:"nodeId,omitempty"`
	Contact string `json:"contact,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus dispatches events to subscribers in registration order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers handler for topic and returns a function that removes it.
func (b *Bus) Subscribe(topic Topic, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	kept := make([]subscription, 0, len(subs))
	for _, sub := range subs {
		if sub.id != id {
			kept = append(kept, sub)
		}
	}
	b.subs[topic] = kept
}

// Publish delivers ev to the subscribers of ev.Topic on the caller's
// goroutine. Subscribers may publish or subscribe from inside a handler.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[ev.Topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(ev)
	}
}

// PublishTopic is shorthand for events without payload.
func (b *Bus) PublishTopic(topic Topic) {
	b.Publish(Event{Topic: topic})
}
