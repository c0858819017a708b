package service

import (
	"log/slog"
	"sync"
)

// EventType names the kind of pushed session update
type EventType string

const (
	EventSuggestions     EventType = "suggestions"
	EventResults         EventType = "results"
	EventFilters         EventType = "filters"
	EventRecommendations EventType = "recommendations"
	EventStoreChanged    EventType = "store_changed"
	EventVoice           EventType = "voice"
	EventChat            EventType = "chat"
)

// Event is one pushed session update
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

const subscriberBuffer = 64

// EventHub fans session events out to connected streams.
// A slow subscriber loses events instead of blocking publishers.
type EventHub struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool
	log    *slog.Logger
}

// NewEventHub creates an empty hub
func NewEventHub(log *slog.Logger) *EventHub {
	if log == nil {
		log = slog.Default()
	}
	return &EventHub{subs: make(map[chan Event]struct{}), log: log}
}

// Subscribe registers a stream. The returned cancel func must be called once.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish delivers an event to every subscriber that has room for it
func (h *EventHub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.log.Warn("event buffer full, dropping event", "type", event.Type)
		}
	}
}

// Subscribers returns the number of connected streams
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every stream
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
		delete(h.subs, ch)
	}
}
