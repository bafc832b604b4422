package endpoints

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ThomasGodWeb/WorkBot/internal/websocket"
)

type WebsocketEndpoints interface {
	Rooms(http.ResponseWriter, *http.Request) error
	Room(http.ResponseWriter, *http.Request) error
}

type websocketEndpoints struct {
	handler    *websocket.Handler
	roomPrefix string
}

func NewWebsocketEndpoints(handler *websocket.Handler, roomPrefix string) WebsocketEndpoints {
	return &websocketEndpoints{handler: handler, roomPrefix: roomPrefix}
}

func (h *websocketEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			h.handler.GetRooms(w, r)
			return nil
		},
	})
}

// Room upgrades to a stream of one room's events, or of every event for "all".
func (h *websocketEndpoints) Room(w http.ResponseWriter, r *http.Request) error {
	segments, err := pathSegments(r.URL.Path, h.roomPrefix)
	if err != nil {
		return err
	}
	if len(segments) != 1 {
		return &HTTPError{StatusCode: http.StatusNotFound, Message: "Room not found", ErrorLog: fmt.Errorf("websocket path %s", r.URL.Path)}
	}
	roomID := segments[0]
	if roomID != websocket.ChannelAll {
		if _, err := parseID(roomID, "room id"); err != nil {
			return err
		}
	}

	actor, err := operator(r)
	if err != nil {
		return err
	}

	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) error {
			h.handler.CreateRoom(roomID)
			h.handler.JoinRoom(w, r, roomID, strconv.FormatInt(actor, 10))
			return nil
		},
	})
}
