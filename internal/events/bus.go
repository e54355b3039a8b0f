/*
Copyright (C) 2026 Slateboard Authors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventScheduleReceived        EventType = "schedule_received"
	EventPlaylistReceived        EventType = "playlist_received"
	EventNetworkError            EventType = "network_error"
	EventServerDiscovered        EventType = "server_discovered"
	EventConnectionStatusChanged EventType = "connection_status_changed"
	EventPingUpdated             EventType = "ping_updated"

	// Playback events
	EventMediaChanged     EventType = "media_changed"
	EventPlaylistFinished EventType = "playlist_finished"

	// Cache events
	EventCacheUpdated     EventType = "cache_updated"
	EventPrefetchComplete EventType = "prefetch_complete"

	// Special event playlists
	EventSpecialStarted EventType = "special_event_started"
	EventSpecialEnded   EventType = "special_event_ended"
)

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 8)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. Delivery is non-blocking; a
// subscriber that has fallen behind misses the event rather than stalling
// the publisher. Sends happen under the read lock so they can never race
// the close in Unsubscribe.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
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
			break
		}
	}
	b.subs[eventType] = subs
	close(sub)
}
