// Package realtime relays conversation events to connected websocket clients.
// Delivery is best-effort and at-most-once.
package realtime

import (
	"context"
	"sync"
	"time"
)

const (
	EventMessageCreated  = "message.created"
	EventMessageEdited   = "message.edited"
	EventMessageDeleted  = "message.deleted"
	EventReactionUpdated = "reaction.updated"
	EventMessagesRead    = "messages.read"
	EventTypingStart     = "typing.start"
	EventTypingStop      = "typing.stop"
	EventMembership      = "membership.changed"
)

// Event is the payload broadcast over Redis and websocket.
type Event struct {
	Type      string    `json:"type"`
	ChatID    string    `json:"chatId"`
	UserID    string    `json:"userId,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the write side the services depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

const subscriberBuffer = 32

// Hub fans events out to local subscribers of a chat.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers interest in chatID. Call the returned func to unsubscribe.
func (h *Hub) Subscribe(chatID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[chatID] == nil {
		h.subs[chatID] = make(map[chan Event]struct{})
	}
	h.subs[chatID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[chatID], ch)
			if len(h.subs[chatID]) == 0 {
				delete(h.subs, chatID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// FanOut delivers ev to every local subscriber of its chat. Slow subscribers drop events.
func (h *Hub) FanOut(ev Event) int {
	if ev.ChatID == "" {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for ch := range h.subs[ev.ChatID] {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers reports how many local subscribers chatID has.
func (h *Hub) Subscribers(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[chatID])
}

// LocalBroker publishes straight into the hub; used when Redis is unavailable.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	b.hub.FanOut(ev)
	return nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
