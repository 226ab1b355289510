package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"truckvoice-backend/internal/geo"
	"truckvoice-backend/internal/presence"
	"truckvoice-backend/internal/ws"

	"github.com/gorilla/websocket"
)

// IncomingRequest is a call request delivered to this driver.
type IncomingRequest struct {
	NegotiationID string `json:"id"`
	From          string `json:"from"`
	FromNickname  string `json:"from_nickname"`
	IsEmergency   bool   `json:"is_emergency"`
}

// Events are the application callbacks. Nil callbacks are skipped. All
// callbacks run on the read loop goroutine.
type Events struct {
	OnPeerList        func(peers []presence.Peer)
	OnNearby          func(peers []presence.Peer)
	OnIncomingRequest func(req IncomingRequest)
	OnAccepted        func(peerID string)
	OnRejected        func(peerID string)
	OnBusy            func(peerID string)
	OnSleeping        func(peerID string)
	OnEnded           func(peerID string)
	OnLeft            func(peerID string)
}

// Client is the driver-side connection to the signaling server.
type Client struct {
	conn   *websocket.Conn
	events Events

	writeMu sync.Mutex
}

// Dial connects and registers. serverURL is the http(s) base URL of the
// backend; the token rides the query string because websocket handshakes
// cannot carry custom headers.
func Dial(serverURL, token, nickname string, events Events) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &Client{conn: conn, events: events}
	if err := c.send(ws.MsgRegister, ws.RegisterData{Nickname: nickname}); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Run reads and dispatches server messages until the connection drops or
// ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		// The hub coalesces queued frames into one message separated by
		// newlines.
		for _, frame := range splitFrames(data) {
			c.dispatch(frame)
		}
	}
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) SendPos(pos geo.Position) error {
	return c.send(ws.MsgPos, ws.PosData{Lat: pos.Lat, Lng: pos.Lng})
}

func (c *Client) SendStatus(state string) error {
	return c.send(ws.MsgStatus, ws.StatusData{State: state})
}

func (c *Client) Request(targetID string, emergency bool) error {
	return c.send(ws.MsgRequest, ws.RequestData{TargetID: targetID, IsEmergency: emergency})
}

func (c *Client) Accept() error { return c.send(ws.MsgAccept, nil) }
func (c *Client) Reject() error { return c.send(ws.MsgReject, nil) }
func (c *Client) End() error    { return c.send(ws.MsgEnd, nil) }

func (c *Client) send(msgType string, data interface{}) error {
	payload := map[string]interface{}{"type": msgType}
	if data != nil {
		payload["data"] = data
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}

func (c *Client) dispatch(frame []byte) {
	var msg ws.Envelope
	if err := json.Unmarshal(frame, &msg); err != nil {
		log.Printf("Invalid server message: %v", err)
		return
	}

	switch msg.Type {
	case ws.MsgPeerList:
		if c.events.OnPeerList != nil {
			c.events.OnPeerList(decodePeers(msg.Data))
		}
	case ws.MsgNearby:
		if c.events.OnNearby != nil {
			c.events.OnNearby(decodePeers(msg.Data))
		}
	case ws.MsgIncomingRequest:
		if c.events.OnIncomingRequest != nil {
			var req IncomingRequest
			if err := json.Unmarshal(msg.Data, &req); err == nil {
				c.events.OnIncomingRequest(req)
			}
		}
	case ws.MsgAccepted:
		c.firePeerEvent(c.events.OnAccepted, msg.Data, "peer")
	case ws.MsgRejected:
		c.firePeerEvent(c.events.OnRejected, msg.Data, "peer")
	case ws.MsgBusy:
		c.firePeerEvent(c.events.OnBusy, msg.Data, "id")
	case ws.MsgSleeping:
		c.firePeerEvent(c.events.OnSleeping, msg.Data, "id")
	case ws.MsgEnded:
		c.firePeerEvent(c.events.OnEnded, msg.Data, "peer")
	case ws.MsgLeft:
		c.firePeerEvent(c.events.OnLeft, msg.Data, "id")
	}
}

func (c *Client) firePeerEvent(fn func(string), raw json.RawMessage, key string) {
	if fn == nil {
		return
	}
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return
	}
	if id, ok := data[key].(string); ok {
		fn(id)
	}
}

func decodePeers(raw json.RawMessage) []presence.Peer {
	var peers []presence.Peer
	if err := json.Unmarshal(raw, &peers); err != nil {
		log.Printf("Invalid peer list: %v", err)
		return nil
	}
	return peers
}

func splitFrames(data []byte) [][]byte {
	var frames [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				frames = append(frames, data[start:i])
			}
			start = i + 1
		}
	}
	if start < len(data) {
		frames = append(frames, data[start:])
	}
	return frames
}
