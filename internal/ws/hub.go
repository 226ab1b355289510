package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"truckvoice-backend/internal/presence"
	"truckvoice-backend/internal/services"
	"truckvoice-backend/internal/signaling"

	"github.com/jmoiron/sqlx"
)

// Minimum interval between pos_update broadcasts originating from one
// driver. Position frames arriving faster than this are still applied to
// the directory, just not fanned out.
const posBroadcastInterval = 25 * time.Millisecond

// Hub maintains active WebSocket connections and fans out signaling and
// presence traffic. It implements signaling.Notifier so the coordinator
// can answer callers through it.
type Hub struct {
	// Registered clients (driverID -> Client)
	clients map[string]*Client

	// Inbound messages destined for one driver
	broadcast chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	registry    *presence.Registry
	coordinator *signaling.Coordinator
	fcm         *services.FCMService
	db          *sqlx.DB

	// Last pos_update fan-out per driver, for throttling
	lastPosBroadcast map[string]time.Time

	mu sync.RWMutex
}

// Message represents a message to deliver to a specific driver.
type Message struct {
	DriverID string
	Data     interface{}
}

func NewHub(db *sqlx.DB, registry *presence.Registry, fcm *services.FCMService) *Hub {
	return &Hub{
		clients:          make(map[string]*Client),
		broadcast:        make(chan *Message, 256),
		register:         make(chan *Client),
		unregister:       make(chan *Client),
		registry:         registry,
		fcm:              fcm,
		db:               db,
		lastPosBroadcast: make(map[string]time.Time),
	}
}

// SetCoordinator wires the signaling coordinator in after construction
// (the coordinator needs the hub as its notifier).
func (h *Hub) SetCoordinator(c *signaling.Coordinator) {
	h.coordinator = c
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.DriverID] = client
			h.mu.Unlock()
			log.Printf("✅ [WEBSOCKET] Client connected: %s (%d online)", client.DriverID, h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if current, ok := h.clients[client.DriverID]; ok && current == client {
				delete(h.clients, client.DriverID)
				delete(h.lastPosBroadcast, client.DriverID)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("🔴 [WEBSOCKET] Client disconnected: %s (%d online)", client.DriverID, h.ClientCount())

		case message := <-h.broadcast:
			h.mu.Lock()
			if client, ok := h.clients[message.DriverID]; ok {
				data, err := json.Marshal(message.Data)
				if err != nil {
					log.Printf("❌ Failed to marshal message: %v", err)
					h.mu.Unlock()
					continue
				}

				select {
				case client.send <- data:
				default:
					// Client buffer full, disconnect
					close(client.send)
					delete(h.clients, message.DriverID)
					log.Printf("⚠️ Client buffer full, disconnecting: %s", message.DriverID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Send delivers a typed message to one driver.
func (h *Hub) Send(driverID, msgType string, data interface{}) {
	h.broadcast <- &Message{
		DriverID: driverID,
		Data:     map[string]interface{}{"type": msgType, "data": data},
	}
}

// Notify implements signaling.Notifier.
func (h *Hub) Notify(driverID, msgType string, data map[string]interface{}) {
	h.Send(driverID, msgType, data)
}

// BroadcastAll sends a typed message to every connected driver except the
// origin. Delivery is fire-and-forget; receivers treat presence messages
// as idempotent state, so a duplicate or drop is harmless.
func (h *Hub) BroadcastAll(originID, msgType string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{"type": msgType, "data": data})
	if err != nil {
		log.Printf("❌ Failed to marshal broadcast message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.clients {
		if id == originID {
			continue
		}
		select {
		case client.send <- payload:
		default:
		}
	}
}

// broadcastPos fans out a position update, throttled per origin driver.
func (h *Hub) broadcastPos(originID string, data interface{}) {
	h.mu.Lock()
	last, seen := h.lastPosBroadcast[originID]
	now := time.Now()
	if seen && now.Sub(last) < posBroadcastInterval {
		h.mu.Unlock()
		return
	}
	h.lastPosBroadcast[originID] = now
	h.mu.Unlock()

	h.BroadcastAll(originID, MsgPosUpdate, data)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsConnected checks if a driver is currently connected
func (h *Hub) IsConnected(driverID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[driverID]
	return ok
}
