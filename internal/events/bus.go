// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides the in-process publish/subscribe channel that
// selection changes are broadcast on.
//
// The locale store is the only publisher; header, category cache and news
// components subscribe. Components depend on this abstraction instead of
// watching storage keys directly.
package events

import (
	"sync"
	"time"
)

// TopicSelectionChanged is published after any selection tier mutation.
const TopicSelectionChanged = "selection.changed"

// Event is a broadcast notification.
type Event struct {
	Topic     string
	Timestamp time.Time

	// Data is an optional topic-specific payload.
	Data any
}

// subscriberBuffer bounds the per-subscriber queue. A subscriber that falls
// this far behind starts losing events; selection changes are idempotent to
// re-read so that is acceptable.
const subscriberBuffer = 16

// Bus fans events out to subscribers.
//
// # Thread Safety
//
// Bus is safe for concurrent use. Publish never blocks: a subscriber whose
// buffer is full misses that event.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers interest in a topic.
//
// # Outputs
//
//   - <-chan Event: receives published events until cancelled.
//   - cancel: unregisters and closes the channel. Safe to call once.
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subscriberBuffer)
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]chan Event)
	}
	id := b.nextID
	b.nextID++
	b.subs[topic][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[topic][id]; ok {
			delete(b.subs[topic], id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every current subscriber of its topic.
func (b *Bus) Publish(topic string, data any) {
	ev := Event{Topic: topic, Timestamp: time.Now(), Data: data}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[topic] {
		select {
		case ch <- ev:
		default:
			// Subscriber is saturated; drop rather than block the writer.
		}
	}
}
