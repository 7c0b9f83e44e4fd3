// Package websocket pushes stock updates and alerts to connected operator
// dashboards.
package websocket

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// Hub maintains the set of active clients and broadcasts messages. The
// clients map is owned by the Run goroutine; all access goes through the
// channels.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			log.Debug("Operator dashboard connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer, drop it rather than block the feed
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Broadcast sends a JSON-encoded message to every connected client
func (h *Hub) Broadcast(message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.WithError(err).Error("Failed to encode broadcast message")
		return
	}
	select {
	case h.broadcast <- data:
	default:
		log.Warn("Broadcast queue full, dropping message")
	}
}
