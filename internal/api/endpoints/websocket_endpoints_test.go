package endpoints

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/api/middleware"
	internaljwt "github.com/ThomasGodWeb/WorkBot/internal/jwt"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/websocket"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebsocketStreamsRoomEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := websocket.NewHub()
	handler := websocket.NewHandler(ctx, hub, client, zerolog.Nop())

	issuer := internaljwt.NewIssuer("ws-secret", time.Hour)
	server := newServer(t)
	auth := middleware.ValidateOperatorJWT(issuer)
	wsEndpoints := NewWebsocketEndpoints(handler, "/ws/rooms/")
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/rooms", server.MakeHTTPHandleFunc(wsEndpoints.Rooms, auth))
	mux.HandleFunc("/ws/rooms/", server.MakeHTTPHandleFunc(wsEndpoints.Room, auth))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	token, err := issuer.IssueConsoleToken(adminID)
	require.NoError(t, err)
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := gorillaws.DefaultDialer.Dial(base+"/ws/rooms/7", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = gorillaws.DefaultDialer.Dial(base+"/ws/rooms/abc?token="+token, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	conn, _, err := gorillaws.DefaultDialer.Dial(base+"/ws/rooms/7?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		rooms := hub.Rooms()
		return mr.PubSubNumSub(websocket.ChannelName("7"))[websocket.ChannelName("7")] == 1 && len(rooms) == 1 && rooms[0].Clients == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, websocket.NewPublisher(client).Publish(ctx, notify.Event{Type: notify.EventRoomClosed, RoomID: 7, RoomName: "Shop"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg websocket.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	var ev notify.Event
	require.NoError(t, json.Unmarshal(msg.Content, &ev))
	assert.Equal(t, notify.EventRoomClosed, ev.Type)
	assert.Equal(t, "Shop", ev.RoomName)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/ws/rooms", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var rooms []websocket.RoomRes
	require.NoError(t, json.NewDecoder(res.Body).Decode(&rooms))
	assert.Equal(t, []websocket.RoomRes{{ID: "7", Clients: 1}}, rooms)
}
