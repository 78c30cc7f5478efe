// Package server exposes the tracker over HTTP: a WebSocket stream of
// normalized events and a REST snapshot surface for polled reads.
package server

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/flowscope/flowscope/pkg/tracker"
)

// Hub maintains the set of active WebSocket clients and fans tracker events
// out to them. It drains one subscription from the manager; per-client
// filters are applied here so one slow or picky client never affects the
// manager's emission path.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	log     zerolog.Logger

	manager *tracker.Manager
	events  <-chan tracker.Event
	done    chan struct{}
	once    sync.Once
}

// NewHub creates a hub wired to the manager's event stream.
func NewHub(manager *tracker.Manager, log zerolog.Logger) (*Hub, error) {
	events, err := manager.Subscribe(nil)
	if err != nil {
		return nil, err
	}
	return &Hub{
		clients: make(map[*Client]bool),
		log:     log,
		manager: manager,
		events:  events,
		done:    make(chan struct{}),
	}, nil
}

// Run pumps tracker events to clients until Close. Blocks; run in its own
// goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.events:
			if !ok {
				return
			}
			h.broadcast(event)
		}
	}
}

// register adds a client to the broadcast set.
func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

// unregister removes a client and closes its send channel.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// broadcast serializes one event and offers it to every matching client.
// Sends never block; a client that cannot keep up is disconnected.
func (h *Hub) broadcast(event tracker.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Debug().Err(err).Str("event", string(event.Kind)).Msg("failed to serialize event")
		return
	}

	h.mu.RLock()
	stalled := make([]*Client, 0)
	for c := range h.clients {
		if c.filter != nil && !c.filter.Matches(event) {
			continue
		}
		select {
		case c.send <- data:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		h.log.Debug().Msg("disconnecting stalled websocket client")
		h.unregister(c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the pump and disconnects every client.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.done)
		h.manager.Unsubscribe(h.events)

		h.mu.Lock()
		defer h.mu.Unlock()
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
	})
}
