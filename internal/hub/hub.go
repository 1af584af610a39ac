// Package hub fans queue lifecycle events out to realtime subscribers.
// Clients narrow what they receive with a subscription filter; an empty field
// matches everything, so a wall display can watch a whole event while a
// customer watches only their own ticket. Subscriptions are level-triggered:
// the hub pushes a full snapshot the moment a client subscribes, then keeps
// it current with broadcast deltas, so a reconnecting client never has to
// wait for the next change to catch up.
package hub

import (
	"encoding/json"
	"log"
	"sync"
)

type Subscription struct {
	EventID    string
	QueueID    string
	CustomerID string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

// SnapshotFunc renders the current state for a new subscription. Returning
// false means there is nothing to send (for example, an unsubscribe).
type SnapshotFunc func(sub Subscription) ([]byte, bool)

type Hub struct {
	snapshot SnapshotFunc

	mu      sync.RWMutex
	clients map[string]*Client
}

type SubscribeMessage struct {
	Action     string `json:"action"`
	EventID    string `json:"event_id"`
	QueueID    string `json:"queue_id"`
	CustomerID string `json:"customer_id"`
}

func New(snapshot SnapshotFunc) *Hub {
	return &Hub{snapshot: snapshot, clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

// Subscribe replaces the client's filter and immediately pushes the current
// snapshot for it. An empty subscription matches everything and gets no
// snapshot (there is no single state to render).
func (h *Hub) Subscribe(client *Client, sub Subscription) {
	h.mu.Lock()
	client.Subscription = sub
	h.mu.Unlock()

	if h.snapshot == nil {
		return
	}
	payload, ok := h.snapshot(sub)
	if !ok {
		return
	}
	select {
	case client.Send <- payload:
	default:
		log.Printf("drop snapshot for client %s", client.ID)
	}
}

// Broadcast delivers payload to every client whose subscription matches meta.
// Slow clients are skipped rather than blocking the poller; the next snapshot
// makes them whole.
func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if !match(client.Subscription, meta) {
			continue
		}
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func match(sub Subscription, meta Subscription) bool {
	if sub.EventID != "" && meta.EventID != sub.EventID {
		return false
	}
	if sub.QueueID != "" && meta.QueueID != sub.QueueID {
		return false
	}
	if sub.CustomerID != "" && meta.CustomerID != sub.CustomerID {
		return false
	}
	return true
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
