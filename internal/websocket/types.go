package websocket

import "encoding/json"

type Room struct {
	Id      string               `json:"id"`
	Clients map[string]*WSClient `json:"clients"`
}

type WSMessage struct {
	Content   string `json:"content"`
	RoomID    string `json:"roomId"`
	Timestamp int64  `json:"timestamp"`
}

// InboundEvent is what connected agent UIs send over the socket:
// a typed command with a JSON payload.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type RoomRes struct {
	ID string `json:"id"`
}
