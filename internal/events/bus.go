/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventShowStart        EventType = "show.start"
	EventShowEnd          EventType = "show.end"
	EventSegmentStart     EventType = "segment.start"
	EventSegmentEnd       EventType = "segment.end"
	EventSegmentContent   EventType = "segment.content"
	EventTransitionFailed EventType = "transition.failed"
	EventInteraction      EventType = "community.interaction"
)

// All lists every event type the service publishes.
var All = []EventType{
	EventShowStart,
	EventShowEnd,
	EventSegmentStart,
	EventSegmentEnd,
	EventSegmentContent,
	EventTransitionFailed,
	EventInteraction,
}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Sink receives a copy of every published event, e.g. to mirror it to
// another transport. Forward must not block.
type Sink interface {
	Forward(eventType EventType, payload Payload)
}

// Bus implements a simple in-process pubsub. Publish never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu    sync.RWMutex
	subs  map[EventType][]Subscriber
	sinks []Sink
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 16)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// AddSink attaches a sink.
func (b *Bus) AddSink(s Sink) {
	b.mu.Lock()
	b.sinks = append(b.sinks, s)
	b.mu.Unlock()
}

// Publish sends payload to subscribers and sinks.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.deliver(eventType, payload, true)
}

// PublishLocal sends payload to subscribers only. Used for events received
// from another transport so they are not forwarded back.
func (b *Bus) PublishLocal(eventType EventType, payload Payload) {
	b.deliver(eventType, payload, false)
}

func (b *Bus) deliver(eventType EventType, payload Payload, forward bool) {
	b.mu.RLock()
	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send.
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
	var sinks []Sink
	if forward {
		sinks = append(sinks, b.sinks...)
	}
	b.mu.RUnlock()

	for _, s := range sinks {
		s.Forward(eventType, payload)
	}
}

// Unsubscribe removes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			subs = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}
	b.subs[eventType] = subs
}
