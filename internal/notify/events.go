package notify

import "context"

type EventType string

const (
	EventRoomMessage EventType = "room_message"
	EventRoomClosed  EventType = "room_closed"
	EventRoomPurged  EventType = "room_purged"
	EventInbox       EventType = "inbox_message"
)

// Event is what the operator console sees for a room.
type Event struct {
	Type      EventType `json:"type"`
	RoomID    int64     `json:"roomId,omitempty"`
	RoomName  string    `json:"roomName,omitempty"`
	SenderID  int64     `json:"senderId,omitempty"`
	Body      string    `json:"body,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Timestamp string    `json:"timestamp"`
}

type EventSink interface {
	Publish(ctx context.Context, event Event) error
}

type NopSink struct{}

func (NopSink) Publish(ctx context.Context, event Event) error { return nil }
