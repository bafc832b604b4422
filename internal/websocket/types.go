package websocket

import "encoding/json"

// Room is one console topic: a single order room, or ChannelAll for every event.
type Room struct {
	ID      string
	Clients map[string]*WSClient
}

type WSMessage struct {
	Content   json.RawMessage `json:"content"`
	RoomID    string          `json:"roomId"`
	Timestamp int64           `json:"timestamp"`
}

type RoomRes struct {
	ID      string `json:"id"`
	Clients int    `json:"clients"`
}
