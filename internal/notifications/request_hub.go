// Package notifications delivers chat events to websocket clients, locally
// through the request hub and across instances through Redis pub/sub.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"helpboard/internal/observability"
)

// RequestHub tracks which connections are subscribed to which request channel.
// A channel exists only while it has subscribers.
type RequestHub struct {
	mu sync.RWMutex

	// requestID -> subscribed clients
	channels map[uint]map[*Client]struct{}

	// client -> requestIDs it is subscribed to
	clientChannels map[*Client]map[uint]struct{}
}

// NewRequestHub creates an empty hub.
func NewRequestHub() *RequestHub {
	return &RequestHub{
		channels:       make(map[uint]map[*Client]struct{}),
		clientChannels: make(map[*Client]map[uint]struct{}),
	}
}

// Name returns a human-readable identifier for this hub.
func (h *RequestHub) Name() string { return "request hub" }

// Register tracks a connected client with no subscriptions.
func (h *RequestHub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trackLocked(c)
}

func (h *RequestHub) trackLocked(c *Client) {
	if _, ok := h.clientChannels[c]; !ok {
		h.clientChannels[c] = make(map[uint]struct{})
		observability.WebSocketConnections.Inc()
	}
}

// Subscribe adds c to requestID's channel. Subscribing twice is a no-op.
func (h *RequestHub) Subscribe(requestID uint, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[requestID] == nil {
		h.channels[requestID] = make(map[*Client]struct{})
	}
	h.channels[requestID][c] = struct{}{}

	h.trackLocked(c)
	h.clientChannels[c][requestID] = struct{}{}
}

// Unsubscribe removes c from requestID's channel.
func (h *RequestHub) Unsubscribe(requestID uint, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(requestID, c)
	if subs, ok := h.clientChannels[c]; ok {
		delete(subs, requestID)
	}
}

func (h *RequestHub) removeLocked(requestID uint, c *Client) {
	if subs, ok := h.channels[requestID]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, requestID)
		}
	}
}

// UnregisterClient drops c from every channel it joined.
func (h *RequestHub) UnregisterClient(c *Client) {
	h.mu.Lock()
	subs, ok := h.clientChannels[c]
	if !ok {
		h.mu.Unlock()
		return
	}
	for requestID := range subs {
		h.removeLocked(requestID, c)
	}
	delete(h.clientChannels, c)
	h.mu.Unlock()

	observability.WebSocketConnections.Dec()
	log.Printf("RequestHub: Unregistered conn %s (user %d, %d channels)", c.ConnID, c.UserID(), len(subs))
}

// IsSubscribed reports whether c is on requestID's channel.
func (h *RequestHub) IsSubscribed(requestID uint, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[requestID][c]
	return ok
}

// Subscribers returns the number of connections on requestID's channel.
func (h *RequestHub) Subscribers(requestID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[requestID])
}

// Broadcast marshals event and hands it to every subscriber of requestID.
func (h *RequestHub) Broadcast(requestID uint, event ChatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("RequestHub: Failed to marshal %s event: %v", event.Type, err)
		return
	}
	h.BroadcastRaw(requestID, payload)
}

// BroadcastRaw delivers an encoded event. A slow subscriber loses the frame
// without holding up the others.
func (h *RequestHub) BroadcastRaw(requestID uint, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.channels[requestID] {
		if c.TrySend(payload) {
			delivered++
		}
	}
	observability.ChannelDeliveries.Add(float64(delivered))
	return delivered
}

// StartWiring relays request channel events published by any instance.
func (h *RequestHub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartRequestSubscriber(ctx, func(channel, payload string) {
		var requestID uint
		if _, err := fmt.Sscanf(channel, requestChannelPrefix+"%d", &requestID); err != nil {
			log.Printf("RequestHub: Invalid channel format: %s", channel)
			return
		}
		h.BroadcastRaw(requestID, []byte(payload))
	})
}

// Shutdown tells every client the server is going away and closes its outbound queue.
func (h *RequestHub) Shutdown(_ context.Context) error {
	notice, _ := json.Marshal(ChatEvent{
		Type:    EventServerShutdown,
		Payload: map[string]string{"message": "Server is shutting down"},
	})

	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clientChannels))
	for c := range h.clientChannels {
		clients = append(clients, c)
	}
	h.channels = make(map[uint]map[*Client]struct{})
	h.clientChannels = make(map[*Client]map[uint]struct{})
	h.mu.Unlock()
	observability.WebSocketConnections.Sub(float64(len(clients)))

	for _, c := range clients {
		c.TrySend(notice)
		c.CloseSend()
	}
	return nil
}
