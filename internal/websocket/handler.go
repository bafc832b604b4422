package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type Handler struct {
	hub         *Hub
	redisClient *redis.Client
	upgrader    websocket.Upgrader
	log         zerolog.Logger
	// ctx bounds the Redis subscriptions and the hub loop.
	ctx context.Context
}

// NewHandler starts the hub; it and every room subscription stop with ctx.
func NewHandler(ctx context.Context, hub *Hub, client *redis.Client, log zerolog.Logger) *Handler {
	h := &Handler{
		hub:         hub,
		redisClient: client,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log.With().Str("component", "console").Logger(),
		ctx: ctx,
	}
	go hub.Run(ctx)
	return h
}

func (h *Handler) subscribeToRoomChannel(roomID string) {
	channel := ChannelName(roomID)
	subscriber := h.redisClient.Subscribe(h.ctx, channel)
	defer subscriber.Close()
	h.log.Debug().Str("channel", channel).Msg("subscribed")

	ch := subscriber.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !json.Valid([]byte(msg.Payload)) {
				h.log.Warn().Str("channel", channel).Msg("dropping non-JSON console payload")
				continue
			}
			select {
			case h.hub.Broadcast <- &WSMessage{
				Content:   json.RawMessage(msg.Payload),
				RoomID:    roomID,
				Timestamp: time.Now().Unix(),
			}:
			case <-h.ctx.Done():
				return
			}
		}
	}
}

// CreateRoom makes sure the console room exists and is fed from Redis.
func (h *Handler) CreateRoom(id string) {
	if h.hub.AddRoom(id) {
		go h.subscribeToRoomChannel(id)
	}
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request, roomID, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	cl := &WSClient{
		Conn:    conn,
		Message: make(chan *WSMessage, 16),
		ID:      userID + ":" + uuid.NewString(),
		RoomID:  roomID,
		log:     h.log.With().Str("room", roomID).Str("operator", userID).Logger(),
		done:    make(chan struct{}),
		stop:    h.ctx.Done(),
	}

	select {
	case h.hub.Register <- cl:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go cl.keepAlive()
	go cl.writeMessage()
	go cl.readMessage(h.hub)
}

func (h *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(h.hub.Rooms())
}
