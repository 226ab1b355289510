package ws

import (
	"encoding/json"
	"log"
	"time"

	"truckvoice-backend/internal/database"
	"truckvoice-backend/internal/geo"
	"truckvoice-backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048
)

// Client represents one connected driver.
type Client struct {
	DriverID string
	Nickname string
	conn     *websocket.Conn
	hub      *Hub
	send     chan []byte

	registered bool
}

func NewClient(driverID, nickname string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		DriverID: driverID,
		Nickname: nickname,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, 256),
	}
}

// ReadPump pumps messages from the WebSocket connection into the
// presence and signaling layers.
func (c *Client) ReadPump() {
	defer func() {
		c.teardown()
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg Envelope
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Invalid message format: %v", err)
			continue
		}

		switch msg.Type {
		case MsgPing:
			response, _ := json.Marshal(map[string]interface{}{
				"type":      MsgPong,
				"timestamp": time.Now().Format(time.RFC3339),
			})
			c.send <- response

		case MsgRegister:
			c.handleRegister(msg.Data)

		case MsgPos:
			c.handlePos(msg.Data)

		case MsgStatus:
			c.handleStatus(msg.Data)

		case MsgRequest:
			c.handleRequest(msg.Data)

		case MsgAccept:
			c.hub.coordinator.Accept(c.DriverID)

		case MsgReject:
			c.hub.coordinator.Reject(c.DriverID)

		case MsgEnd:
			c.hub.coordinator.End(c.DriverID)

		default:
			log.Printf("Unknown message type %q from %s", msg.Type, c.DriverID)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleRegister puts the driver into the directory, answers with its
// confirmed id and the peers it can see, and announces it to everyone
// else. Reconnecting after Korean midnight also archives the stale
// driver-day before the client's engine pulls its snapshot back.
func (c *Client) handleRegister(raw json.RawMessage) {
	var data RegisterData
	if raw != nil {
		json.Unmarshal(raw, &data)
	}
	nickname := data.Nickname
	if nickname == "" {
		nickname = c.Nickname
	}

	if err := database.RolloverIfStale(c.hub.db, c.DriverID, time.Now()); err != nil {
		log.Printf("❌ Reconnect rollover check failed for %s: %v", c.DriverID, err)
	}

	favorites, err := c.loadFavorites()
	if err != nil {
		log.Printf("❌ Failed to load favorites for %s: %v", c.DriverID, err)
	}

	c.hub.registry.Register(c.DriverID, nickname, favorites)
	c.registered = true

	c.hub.Send(c.DriverID, MsgIDConfirmed, map[string]interface{}{"id": c.DriverID})
	c.hub.Send(c.DriverID, MsgPeerList, c.hub.registry.VisiblePeers(c.DriverID))

	if self, ok := c.hub.registry.Get(c.DriverID); ok {
		c.hub.BroadcastAll(c.DriverID, MsgJoined, self)
	}
	log.Printf("🚛 Driver registered: %s (%s)", nickname, c.DriverID)
}

func (c *Client) handlePos(raw json.RawMessage) {
	var data PosData
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("Invalid pos data from %s: %v", c.DriverID, err)
		return
	}
	if !c.registered {
		return
	}

	c.hub.registry.UpdatePosition(c.DriverID, geo.Position{Lat: data.Lat, Lng: data.Lng})

	c.hub.broadcastPos(c.DriverID, map[string]interface{}{
		"id":  c.DriverID,
		"lat": data.Lat,
		"lng": data.Lng,
	})

	// The mover's visible set changes as it moves; refresh it.
	c.hub.Send(c.DriverID, MsgNearby, c.hub.registry.VisiblePeers(c.DriverID))
}

func (c *Client) handleStatus(raw json.RawMessage) {
	var data StatusData
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("Invalid status data from %s: %v", c.DriverID, err)
		return
	}

	// Offline is a persisted marker, never a live state a client can set.
	state := models.DriverState(data.State)
	if !state.Valid() || state == models.StateOffline {
		log.Printf("Invalid driver state %q from %s", data.State, c.DriverID)
		return
	}

	c.hub.registry.SetState(c.DriverID, state)
	c.hub.BroadcastAll(c.DriverID, MsgStatusChanged, map[string]interface{}{
		"id":    c.DriverID,
		"state": state,
	})
}

func (c *Client) handleRequest(raw json.RawMessage) {
	var data RequestData
	if err := json.Unmarshal(raw, &data); err != nil {
		log.Printf("Invalid request data from %s: %v", c.DriverID, err)
		return
	}
	if data.TargetID == "" {
		return
	}

	c.hub.coordinator.Request(c.DriverID, data.TargetID, data.IsEmergency)

	// Emergency requests also wake the target's phone. Best effort; the
	// signaling outcome above is authoritative.
	if data.IsEmergency && c.hub.fcm != nil {
		go func(targetID, nickname string) {
			if err := c.hub.fcm.SendEmergencyCallNotification(c.hub.db, targetID, nickname); err != nil {
				log.Printf("⚠️ Emergency push to %s failed: %v", targetID, err)
			}
		}(data.TargetID, c.Nickname)
	}
}

// teardown runs when the connection drops: the driver leaves the
// directory (state preserved), any call is torn down with the partner
// notified, and remaining peers hear "left".
func (c *Client) teardown() {
	if !c.registered {
		return
	}
	c.hub.coordinator.Disconnect(c.DriverID)
	c.hub.registry.Unregister(c.DriverID)
	c.hub.BroadcastAll(c.DriverID, MsgLeft, map[string]interface{}{"id": c.DriverID})
}

func (c *Client) loadFavorites() (map[string]bool, error) {
	var ids []string
	if err := c.hub.db.Select(&ids, "SELECT driver_id FROM favorite_drivers WHERE user_id = $1", c.DriverID); err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
