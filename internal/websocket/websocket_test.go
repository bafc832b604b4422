package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/notify"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestHubDeliversToRoomClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	require.True(t, hub.AddRoom("7"))
	require.False(t, hub.AddRoom("7"))

	inRoom := &WSClient{ID: "a", RoomID: "7", Message: make(chan *WSMessage, 1)}
	elsewhere := &WSClient{ID: "b", RoomID: "8", Message: make(chan *WSMessage, 1)}
	hub.Register <- inRoom
	hub.Register <- elsewhere

	hub.Broadcast <- &WSMessage{RoomID: "7", Content: json.RawMessage(`{"type":"room_message"}`)}
	msg := <-inRoom.Message
	assert.Equal(t, "7", msg.RoomID)
	assert.Empty(t, elsewhere.Message, "clients of unknown rooms are never registered")

	hub.Unregister <- inRoom
	_, open := <-inRoom.Message
	assert.False(t, open)
	assert.Equal(t, []RoomRes{{ID: "7", Clients: 0}}, hub.Rooms())
}

func TestHubDropsSlowClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)
	hub.AddRoom(ChannelAll)

	slow := &WSClient{ID: "slow", RoomID: ChannelAll, Message: make(chan *WSMessage)}
	hub.Register <- slow
	hub.Broadcast <- &WSMessage{RoomID: ChannelAll, Content: json.RawMessage(`{}`)}

	require.Eventually(t, func() bool {
		return hub.Rooms()[0].Clients == 0
	}, time.Second, 5*time.Millisecond)
	_, open := <-slow.Message
	assert.False(t, open)
}

func TestPublisherFansOutToRoomAndAll(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, ChannelName(ChannelAll), ChannelName("42"))
	defer sub.Close()
	require.Eventually(t, func() bool {
		n := mr.PubSubNumSub(ChannelName(ChannelAll), ChannelName("42"))
		return n[ChannelName(ChannelAll)] == 1 && n[ChannelName("42")] == 1
	}, time.Second, 10*time.Millisecond)

	err := NewPublisher(client).Publish(ctx, notify.Event{Type: notify.EventRoomClosed, RoomID: 42, RoomName: "Shop"})
	require.NoError(t, err)

	got := map[string]notify.Event{}
	ch := sub.Channel()
	for len(got) < 2 {
		select {
		case msg := <-ch:
			var ev notify.Event
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
			got[msg.Channel] = ev
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, notify.EventRoomClosed, got[ChannelName("42")].Type)
	assert.Equal(t, "Shop", got[ChannelName(ChannelAll)].RoomName)
}

func TestPublisherSendsInboxOnlyToAll(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	sub := client.Subscribe(ctx, ChannelName(ChannelAll))
	defer sub.Close()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(ChannelName(ChannelAll))[ChannelName(ChannelAll)] == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, NewPublisher(client).Publish(ctx, notify.Event{Type: notify.EventInbox, SenderID: 5}))
	select {
	case msg := <-sub.Channel():
		assert.Equal(t, ChannelName(ChannelAll), msg.Channel)
	case <-time.After(time.Second):
		t.Fatal("inbox events reach the firehose")
	}
}

func TestConsoleStreamsRedisEvents(t *testing.T) {
	mr, client := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	h := NewHandler(ctx, hub, client, zerolog.Nop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.CreateRoom("7")
		h.JoinRoom(w, r, "7", "1")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		rooms := hub.Rooms()
		return mr.PubSubNumSub(ChannelName("7"))[ChannelName("7")] == 1 && len(rooms) == 1 && rooms[0].Clients == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, NewPublisher(client).Publish(ctx, notify.Event{Type: notify.EventRoomMessage, RoomID: 7, Body: "hi"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "7", msg.RoomID)

	var ev notify.Event
	require.NoError(t, json.Unmarshal(msg.Content, &ev))
	assert.Equal(t, notify.EventRoomMessage, ev.Type)
	assert.Equal(t, "hi", ev.Body)
}
