package notify

import (
	"sync"
	"time"
)

// Event carries a single entity change notification.
type Event struct {
	Type  string      `json:"type"`
	Topic string      `json:"topic"`
	Data  interface{} `json:"data"`
	Time  time.Time   `json:"time"`
}

// Event types published by the simulation engine.
const (
	EventAccountUpdated  = "account_updated"
	EventPositionUpdated = "position_updated"
	EventOrderUpdated    = "order_updated"
	EventTradeExecuted   = "trade_executed"
)

// Bus fans out entity change events to subscribers. The engine publishes on
// topics "account:{id}", "position:{id}" and "order:{accountID}".
type Bus interface {
	Publish(topic string, event Event)
	Subscribe(topic string) chan Event
	Unsubscribe(topic string, ch chan Event)
}

// Hub is the in-process Bus implementation backed by per-topic subscriber
// lists. Slow subscribers are skipped, never blocked on.
type Hub struct {
	subscribers map[string][]chan Event
	mu          sync.RWMutex
}

// NewHub creates a new notification hub
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe subscribes to events on a topic
func (h *Hub) Subscribe(topic string) chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, 100)
	h.subscribers[topic] = append(h.subscribers[topic], ch)
	return ch
}

// Unsubscribe removes a subscription
func (h *Hub) Unsubscribe(topic string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[topic]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			close(ch)
			break
		}
	}
	if len(h.subscribers[topic]) == 0 {
		delete(h.subscribers, topic)
	}
}

// Publish delivers an event to all subscribers of a topic. The read lock is
// held across the send loop: Unsubscribe closes channels under the write
// lock, so a send can never hit a just-closed channel.
func (h *Hub) Publish(topic string, event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	event.Topic = topic

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[topic] {
		select {
		case ch <- event:
		default:
			// Channel is full, skip
		}
	}
}
