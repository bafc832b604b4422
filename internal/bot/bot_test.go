package bot

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ThomasGodWeb/WorkBot/internal/keylock"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/notify/notifytest"
	"github.com/ThomasGodWeb/WorkBot/internal/notify/telegram"
	"github.com/ThomasGodWeb/WorkBot/internal/queue"
	"github.com/ThomasGodWeb/WorkBot/internal/service/inbox"
	"github.com/ThomasGodWeb/WorkBot/internal/service/lifecycle"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"
	"github.com/ThomasGodWeb/WorkBot/internal/service/relay"
	"github.com/ThomasGodWeb/WorkBot/internal/session"
	"github.com/ThomasGodWeb/WorkBot/internal/store"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminID    int64 = 1
	customerID int64 = 100
	userID     int64 = 500
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	answered []string
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.answered = append(f.answered, cb.CallbackQueryID)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) last(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].ChatID == chatID {
			return f.sent[i].Text
		}
	}
	return ""
}

type fakeIssuer struct{}

func (fakeIssuer) IssueConsoleToken(userID int64) (string, error) {
	return "token-" + strconv.FormatInt(userID, 10), nil
}

type harness struct {
	d         *Dispatcher
	api       *fakeAPI
	rec       *notifytest.Recorder
	repo      *store.MemoryStore
	sessions  *session.MemoryStore
	members   *membership.Service
	lifecycle *lifecycle.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := store.NewMemoryStore()
	sessions := session.NewMemoryStore()
	rec := notifytest.NewRecorder()
	pool := queue.NewNamed("deliveries", 16, 4, zerolog.Nop())
	t.Cleanup(pool.Shutdown)

	fanout := notify.NewFanout(rec, pool, nil, zerolog.Nop())
	rooms := keylock.New(8)
	members := membership.New(repo, sessions, []int64{adminID}, zerolog.Nop())
	inboxSvc := inbox.New(inbox.Deps{Repo: repo, Members: members, Sessions: sessions, Fanout: fanout, Log: zerolog.Nop()})
	life := lifecycle.New(lifecycle.Deps{Repo: repo, Members: members, Sessions: sessions, Fanout: fanout, Rooms: rooms, Log: zerolog.Nop()})
	engine := relay.New(relay.Deps{Repo: repo, Members: members, Sessions: sessions, Inbox: inboxSvc, Fanout: fanout, Rooms: rooms, Log: zerolog.Nop()})

	api := &fakeAPI{}
	d := New(Deps{
		API:        api,
		Members:    members,
		Lifecycle:  life,
		Relay:      engine,
		Inbox:      inboxSvc,
		Sessions:   sessions,
		Fanout:     fanout,
		Console:    fakeIssuer{},
		ConsoleURL: "https://console.example",
		Log:        zerolog.Nop(),
	})
	return &harness{d: d, api: api, rec: rec, repo: repo, sessions: sessions, members: members, lifecycle: life}
}

func textUpdate(from int64, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: from, FirstName: "User", LastName: strconv.FormatInt(from, 10)},
		Chat: &tgbotapi.Chat{ID: from},
		Text: text,
	}
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text, " ")
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	}
	return tgbotapi.Update{Message: msg}
}

func callbackUpdate(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-" + data,
		From: &tgbotapi.User{ID: from, FirstName: "Anna"},
		Data: data,
	}}
}

func (h *harness) send(u tgbotapi.Update) {
	h.d.HandleUpdate(context.Background(), u)
}

func (h *harness) pending(t *testing.T, actor int64) *session.PendingAction {
	t.Helper()
	st, err := h.sessions.Get(context.Background(), actor)
	require.NoError(t, err)
	return st.Pending
}

func TestContentOf(t *testing.T) {
	photo := &tgbotapi.Message{
		Photo:   []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
		Caption: "look",
	}
	c := ContentOf(photo)
	assert.Equal(t, notify.KindPhoto, c.Kind)
	assert.Equal(t, "large", c.FileID)
	assert.Equal(t, "look", c.Body())

	voice := ContentOf(&tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "v"}})
	assert.Equal(t, notify.KindVoice, voice.Kind)
	assert.Empty(t, voice.Body())

	text := ContentOf(&tgbotapi.Message{Text: " hi "})
	assert.Equal(t, notify.KindText, text.Kind)
	assert.Equal(t, "hi", text.Body())
}

func TestProfileOf(t *testing.T) {
	p := ProfileOf(&tgbotapi.User{ID: 7, FirstName: "Anna", UserName: "anna"})
	assert.Equal(t, membership.Profile{UserID: 7, Username: "anna", FullName: "Anna"}, p)
}

func TestCreateRoomFlowKeepsPendingOnInvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.send(textUpdate(adminID, "/create_room"))
	p := h.pending(t, adminID)
	require.NotNil(t, p)
	assert.Equal(t, session.ActionCreateRoom, p.Kind)

	h.send(textUpdate(adminID, " | 100"))
	assert.Contains(t, h.api.last(adminID), "Неверный ввод")
	require.NotNil(t, h.pending(t, adminID), "invalid input keeps the flow armed")

	h.send(textUpdate(adminID, "Shop | 100"))
	assert.Nil(t, h.pending(t, adminID))
	assert.Contains(t, h.api.last(adminID), "Shop")

	rooms, err := h.members.AllRooms(ctx, adminID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	access, err := h.members.Access(ctx, rooms[0].RoomID, customerID)
	require.NoError(t, err)
	assert.Equal(t, model.AccessCustomer, access.Kind)
	assert.Equal(t, 1, h.rec.Notices(customerID, notify.NoticeAccessGranted))
}

func TestFlowClearsPendingOnOtherErrors(t *testing.T) {
	h := newHarness(t)

	h.send(textUpdate(adminID, "/delete_room"))
	require.NotNil(t, h.pending(t, adminID))

	h.send(textUpdate(adminID, "999"))
	assert.Nil(t, h.pending(t, adminID))
	assert.Contains(t, h.api.last(adminID), "Не найдено")
}

func TestAdminFlowsRequireAdmin(t *testing.T) {
	h := newHarness(t)

	h.send(textUpdate(userID, "/create_room"))
	assert.Nil(t, h.pending(t, userID))
	assert.Contains(t, h.api.last(userID), "Нет доступа")

	h.send(textUpdate(userID, "/all_rooms"))
	assert.Contains(t, h.api.last(userID), "Нет доступа")
}

func TestCustomerClosesAndReviews(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, err := h.members.CreateRoom(ctx, adminID, "Shop", customerID)
	require.NoError(t, err)

	h.send(textUpdate(customerID, "/my_rooms"))
	assert.Contains(t, h.api.last(customerID), "Shop")

	data := telegram.CallbackCloseConfirm + strconv.FormatInt(room.RoomID, 10)
	h.send(callbackUpdate(customerID, data))
	assert.Equal(t, []string{"cb-" + data}, h.api.answered)

	stored, err := h.repo.GetRoom(ctx, room.RoomID)
	require.NoError(t, err)
	assert.False(t, stored.Active())
	p := h.pending(t, customerID)
	require.NotNil(t, p)
	assert.Equal(t, session.ActionAddReview, p.Kind)

	h.send(textUpdate(customerID, "great work"))
	assert.Nil(t, h.pending(t, customerID))
	reviews, err := h.lifecycle.Reviews(ctx, adminID)
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	assert.Equal(t, "great work", reviews[0].Text)

	h.send(callbackUpdate(customerID, telegram.CallbackAddReview+strconv.FormatInt(room.RoomID, 10)))
	assert.Contains(t, h.api.last(customerID), "уже оставили отзыв")
	assert.Nil(t, h.pending(t, customerID))

	h.send(callbackUpdate(customerID, data))
	assert.Contains(t, h.api.last(customerID), "уже закрыт")
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, err := h.members.CreateRoom(ctx, adminID, "Shop", customerID)
	require.NoError(t, err)

	h.send(textUpdate(adminID, "/enter "+strconv.FormatInt(room.RoomID, 10)))
	assert.Contains(t, h.api.last(adminID), "Вы вошли")
	h.send(textUpdate(adminID, "/rename "+strconv.FormatInt(room.RoomID, 10)))
	require.NotNil(t, h.pending(t, adminID))

	h.send(textUpdate(adminID, "/cancel"))
	assert.Contains(t, h.api.last(adminID), "Действие отменено")
	st, _ := h.sessions.Get(ctx, adminID)
	assert.Equal(t, room.RoomID, st.ActiveRoom, "cancel drops the pending action first")

	h.send(textUpdate(adminID, "/cancel"))
	assert.Contains(t, h.api.last(adminID), "вышли из комнаты")
	h.send(textUpdate(adminID, "/cancel"))
	assert.Contains(t, h.api.last(adminID), "Нечего отменять")
}

func TestRoomMessagesReachMembers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, err := h.members.CreateRoom(ctx, adminID, "Shop", customerID)
	require.NoError(t, err)

	h.send(textUpdate(customerID, "/enter "+strconv.FormatInt(room.RoomID, 10)))
	h.send(textUpdate(customerID, "when is the release?"))

	sent := h.rec.To(adminID)
	require.NotEmpty(t, sent)
	assert.Equal(t, notify.HeaderCustomer, sent[0].Header)
	assert.Equal(t, 1, h.rec.Notices(customerID, notify.NoticeDeliveredToDevelopers))
}

func TestInboxAndReplyFailure(t *testing.T) {
	h := newHarness(t)

	h.send(textUpdate(userID, "I need a bot"))
	sent := h.rec.To(adminID)
	require.Len(t, sent, 1)
	assert.Equal(t, notify.HeaderInbox, sent[0].Header)

	h.send(textUpdate(adminID, "/chat "+strconv.FormatInt(userID, 10)))
	assert.Contains(t, h.api.last(adminID), "I need a bot")

	h.rec.Fail(userID)
	h.send(textUpdate(adminID, "sure, tell me more"))
	assert.Contains(t, h.api.last(adminID), "Не удалось доставить")
}

func TestGrantCommandWithInlineUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, err := h.members.CreateRoom(ctx, adminID, "Shop", 0)
	require.NoError(t, err)

	h.send(textUpdate(adminID, "/grant "+strconv.FormatInt(room.RoomID, 10)+" developer 300"))
	assert.Nil(t, h.pending(t, adminID))
	access, err := h.members.Access(ctx, room.RoomID, 300)
	require.NoError(t, err)
	assert.Equal(t, model.AccessDeveloper, access.Kind)

	h.send(textUpdate(adminID, "/grant "+strconv.FormatInt(room.RoomID, 10)+" boss"))
	assert.Contains(t, h.api.last(adminID), "Неверный ввод")
}

func TestInlineCommandSupersedesArmedFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first, err := h.members.CreateRoom(ctx, adminID, "Shop", 0)
	require.NoError(t, err)
	second, err := h.members.CreateRoom(ctx, adminID, "Site", customerID)
	require.NoError(t, err)

	h.send(textUpdate(adminID, "/grant "+strconv.FormatInt(first.RoomID, 10)+" developer"))
	p := h.pending(t, adminID)
	require.NotNil(t, p)
	assert.Equal(t, session.ActionGrantAccess, p.Kind)

	h.send(textUpdate(adminID, "/rename "+strconv.FormatInt(second.RoomID, 10)+" Renamed"))
	assert.Nil(t, h.pending(t, adminID))
	renamed, err := h.repo.GetRoom(ctx, second.RoomID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", renamed.Name)

	h.send(textUpdate(adminID, "/enter "+strconv.FormatInt(second.RoomID, 10)))
	h.send(textUpdate(adminID, "hello room"))
	assert.Nil(t, h.pending(t, adminID))
	relayed := false
	for _, env := range h.rec.To(customerID) {
		if !env.IsNotice() && env.Content.Body() == "hello room" {
			relayed = true
		}
	}
	assert.True(t, relayed, "room text is relayed, not read as flow input")
}

func TestConsoleAndUnknownCommand(t *testing.T) {
	h := newHarness(t)

	h.send(textUpdate(adminID, "/console"))
	assert.Contains(t, h.api.last(adminID), "token-1")

	h.send(textUpdate(adminID, "/nope"))
	assert.Contains(t, h.api.last(adminID), "Неизвестная команда")
}
