package ws

import "encoding/json"

// Client → server message types.
const (
	MsgRegister = "register"
	MsgPos      = "pos"
	MsgStatus   = "status"
	MsgRequest  = "request"
	MsgAccept   = "accept"
	MsgReject   = "reject"
	MsgEnd      = "end"
	MsgPing     = "ping"
)

// Server → client message types.
const (
	MsgIDConfirmed     = "id_confirmed"
	MsgJoined          = "joined"
	MsgPeerList        = "peer_list"
	MsgPosUpdate       = "pos_update"
	MsgNearby          = "nearby"
	MsgStatusChanged   = "status_changed"
	MsgIncomingRequest = "incoming_request"
	MsgAccepted        = "accepted"
	MsgRejected        = "rejected"
	MsgBusy            = "busy"
	MsgSleeping        = "sleeping"
	MsgEnded           = "ended"
	MsgLeft            = "left"
	MsgPong            = "pong"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type RegisterData struct {
	Nickname string `json:"nickname"`
}

type PosData struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type StatusData struct {
	State string `json:"state"`
}

type RequestData struct {
	TargetID    string `json:"target_id"`
	IsEmergency bool   `json:"is_emergency"`
}
