package websocket

import (
	"context"
	"sync"

	"TelemetryHubAPI/internal/logger"
)

// Event types pushed to connected dashboards.
const (
	EventReading   = "READING"
	EventStall     = "STALL_ALERT"
	EventRecovery  = "RECOVERY"
	EventThreshold = "THRESHOLD_ALERT"
)

// Event is the generic envelope for dashboard fan-out.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
	mu         sync.RWMutex
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Event, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		log:        log,
	}
}

// Run drives the hub until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("WebSocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.log.Info("WebSocket hub shutting down...")
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Info("Dashboard client connected. Total: %d", total)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues an event for every connected client. Safe on a nil hub
// and never blocks the caller: slow consumers are dropped, and events are
// discarded when nobody is draining the queue.
func (h *Hub) Broadcast(eventType string, payload interface{}) {
	if h == nil {
		return
	}
	select {
	case h.broadcast <- Event{Type: eventType, Payload: payload}:
	default:
	}
}
