package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
	"github.com/ThomasGodWeb/WorkBot/internal/keylock"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/notify/notifytest"
	"github.com/ThomasGodWeb/WorkBot/internal/queue"
	"github.com/ThomasGodWeb/WorkBot/internal/service/inbox"
	"github.com/ThomasGodWeb/WorkBot/internal/service/lifecycle"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"
	"github.com/ThomasGodWeb/WorkBot/internal/session"
	"github.com/ThomasGodWeb/WorkBot/internal/store"

	"github.com/rs/zerolog"
)

const (
	adminID int64 = 1
	custA   int64 = 100
	devB    int64 = 200
	devC    int64 = 300
)

type harness struct {
	engine    *Engine
	members   *membership.Service
	lifecycle *lifecycle.Service
	repo      *store.MemoryStore
	sessions  *session.MemoryStore
	rec       *notifytest.Recorder
	room      model.RoomItem
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemoryStore()
	sessions := session.NewMemoryStore()
	rec := notifytest.NewRecorder()
	pool := queue.NewNamed("deliveries", 32, 4, zerolog.Nop())
	t.Cleanup(pool.Shutdown)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var ticks int64
	clock := func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&ticks, 1)) * time.Millisecond)
	}
	fanout := notify.NewFanout(rec, pool, nil, zerolog.Nop())
	rooms := keylock.New(8)
	members := membership.NewWithClock(repo, sessions, []int64{adminID}, zerolog.Nop(), clock)
	inboxSvc := inbox.New(inbox.Deps{Repo: repo, Members: members, Sessions: sessions, Fanout: fanout, Log: zerolog.Nop(), Now: clock})
	life := lifecycle.New(lifecycle.Deps{Repo: repo, Members: members, Sessions: sessions, Fanout: fanout, Rooms: rooms, Log: zerolog.Nop(), Now: clock})
	engine := New(Deps{
		Repo:     repo,
		Members:  members,
		Sessions: sessions,
		Inbox:    inboxSvc,
		Fanout:   fanout,
		Rooms:    rooms,
		Events:   rec,
		Log:      zerolog.Nop(),
		Now:      clock,
	})

	room, err := members.CreateRoom(ctx, adminID, "Shop", custA)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, id := range []int64{devB, devC} {
		if _, err := members.Grant(ctx, adminID, room.RoomID, id, model.AccessDeveloper); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}
	// the creator membership is not part of these scenarios
	if _, err := members.Revoke(ctx, adminID, room.RoomID, adminID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	return &harness{engine: engine, members: members, lifecycle: life, repo: repo, sessions: sessions, rec: rec, room: room}
}

func (h *harness) enter(t *testing.T, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		if _, err := h.engine.EnterRoom(context.Background(), id, h.room.RoomID); err != nil {
			t.Fatalf("enter %d: %v", id, err)
		}
	}
}

func TestRelayNeverDeliversToSender(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enter(t, custA)

	out, err := h.engine.Route(ctx, Inbound{Sender: membership.Profile{UserID: custA}, Content: notify.Text("hi")})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if out.Route != RouteRoom || out.Room == nil {
		t.Fatalf("expected room route, got %+v", out)
	}
	if h.rec.Messages(devB) != 1 || h.rec.Messages(devC) != 1 {
		t.Fatalf("each developer gets exactly one delivery: B=%d C=%d", h.rec.Messages(devB), h.rec.Messages(devC))
	}
	if h.rec.Messages(custA) != 0 {
		t.Fatal("sender must not receive their own message")
	}
	if h.rec.Notices(custA, notify.NoticeDeliveredToDevelopers) != 1 {
		t.Fatal("customer sender gets one confirmation")
	}
	st, _ := h.sessions.Get(ctx, custA)
	if st.ActiveRoom != h.room.RoomID {
		t.Fatal("sender pointer must stay")
	}
	if out.Room.Header != notify.HeaderCustomer {
		t.Fatalf("expected customer header, got %q", out.Room.Header)
	}
}

func TestAbsentRecipientGetsNotice(t *testing.T) {
	h := newHarness(t)
	h.enter(t, devB, custA)

	receipt, err := h.engine.Relay(context.Background(), devB, h.room.RoomID, notify.Text("update"))
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if h.rec.Notices(custA, notify.NoticeNewMessage) != 0 {
		t.Fatal("present recipient gets no extra notice")
	}
	if h.rec.Notices(devC, notify.NoticeNewMessage) != 1 || h.rec.Messages(devC) != 1 {
		t.Fatal("absent recipient gets content then a notice")
	}
	sent := h.rec.To(devC)
	if sent[0].IsNotice() || !sent[1].IsNotice() {
		t.Fatal("the notice follows the content")
	}
	if h.rec.Notices(devB, notify.NoticeDeliveredToRoom) != 1 {
		t.Fatal("developer sender gets the room confirmation")
	}
	if len(receipt.Present) != 1 || receipt.Present[0] != custA {
		t.Fatalf("unexpected presence %+v", receipt.Present)
	}
}

func TestAdminPreferenceSuppressesOnlyWhenAbsent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.members.SetUserRole(ctx, adminID, devB, model.RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if err := h.members.SetNotification(ctx, devB, h.room.RoomID, false); err != nil {
		t.Fatalf("set notification: %v", err)
	}

	receipt, err := h.engine.Relay(ctx, custA, h.room.RoomID, notify.Text("one"))
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if len(h.rec.To(devB)) != 0 {
		t.Fatal("muted absent admin gets nothing")
	}
	if len(receipt.Suppressed) != 1 || receipt.Suppressed[0] != devB {
		t.Fatalf("expected devB suppressed, got %+v", receipt.Suppressed)
	}
	messages, _ := h.repo.ListMessages(ctx, h.room.RoomID, 0)
	if len(messages) != 1 {
		t.Fatal("message is stored even when suppressed")
	}

	h.enter(t, devB)
	if _, err := h.engine.Relay(ctx, custA, h.room.RoomID, notify.Text("two")); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if h.rec.Messages(devB) != 1 || h.rec.Notices(devB, notify.NoticeNewMessage) != 0 {
		t.Fatal("present admin gets the full payload regardless of preference")
	}
}

func TestNonAdminCannotMute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.repo.SetNotification(ctx, devC, h.room.RoomID, false); err != nil {
		t.Fatalf("set notification: %v", err)
	}
	if _, err := h.engine.Relay(ctx, custA, h.room.RoomID, notify.Text("hi")); err != nil {
		t.Fatalf("relay: %v", err)
	}
	if h.rec.Messages(devC) != 1 {
		t.Fatal("non admin members always get deliveries")
	}
}

func TestRecipientFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.rec.Fail(devB)

	receipt, err := h.engine.Relay(context.Background(), custA, h.room.RoomID, notify.Media(notify.KindPhoto, "file-1", "look"))
	if err != nil {
		t.Fatalf("delivery failure must not fail the relay: %v", err)
	}
	if len(notify.Failed(receipt.Results)) != 1 {
		t.Fatalf("expected one failed recipient, got %+v", receipt.Results)
	}
	if h.rec.Messages(devC) != 1 || !receipt.Ack.OK() {
		t.Fatal("other recipients and the sender ack still go out")
	}
}

func TestPendingActionRoutesToFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enter(t, custA)
	_ = h.sessions.SetPending(ctx, custA, session.PendingAction{Kind: session.ActionAddReview, RoomID: h.room.RoomID})

	out, err := h.engine.Route(ctx, Inbound{Sender: membership.Profile{UserID: custA}, Content: notify.Text("great job")})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if out.Route != RouteFlow || out.Pending == nil || out.Pending.Kind != session.ActionAddReview {
		t.Fatalf("expected flow route, got %+v", out)
	}
	if len(h.rec.All()) != 0 {
		t.Fatal("flow input never enters the relay")
	}
}

func TestNoRoomRoutesToInboxAndOpenThreadToReply(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	out, err := h.engine.Route(ctx, Inbound{Sender: membership.Profile{UserID: 900}, Content: notify.Text("hello?")})
	if err != nil || out.Route != RouteInbox || out.Inbox == nil {
		t.Fatalf("expected inbox route, got %+v (%v)", out, err)
	}
	if h.rec.Messages(adminID) != 1 {
		t.Fatal("admins get the inbox payload")
	}

	if err := h.sessions.SetActiveThread(ctx, adminID, 900); err != nil {
		t.Fatalf("set thread: %v", err)
	}
	out, err = h.engine.Route(ctx, Inbound{Sender: membership.Profile{UserID: adminID}, Content: notify.Text("hi there")})
	if err != nil || out.Route != RouteReply || out.Reply == nil || out.Reply.UserID != 900 {
		t.Fatalf("expected reply route, got %+v (%v)", out, err)
	}
}

func TestDeletedRoomClearsPointer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enter(t, custA)
	if _, err := h.lifecycle.PurgeRoom(ctx, adminID, h.room.RoomID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	_ = h.sessions.SetActiveRoom(ctx, custA, h.room.RoomID)

	if _, err := h.engine.Relay(ctx, custA, h.room.RoomID, notify.Text("hi")); !apperror.Is(err, apperror.ErrorCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	st, _ := h.sessions.Get(ctx, custA)
	if st.ActiveRoom != 0 {
		t.Fatal("dangling pointer should be cleared")
	}
}

func TestClosedRoomRejectsMessages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.lifecycle.CloseByAdmin(ctx, adminID, h.room.RoomID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := h.engine.Relay(ctx, custA, h.room.RoomID, notify.Text("hi")); !apperror.Is(err, apperror.ErrorCodeAlreadyClosed) {
		t.Fatalf("expected already closed, got %v", err)
	}
	if _, err := h.engine.EnterRoom(ctx, custA, h.room.RoomID); !apperror.Is(err, apperror.ErrorCodeAlreadyClosed) {
		t.Fatalf("expected already closed, got %v", err)
	}
}

func TestRevokedMemberCannotPost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if _, err := h.members.Revoke(ctx, adminID, h.room.RoomID, devC); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := h.engine.Relay(ctx, devC, h.room.RoomID, notify.Text("hi")); !apperror.Is(err, apperror.ErrorCodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := h.engine.EnterRoom(ctx, devC, h.room.RoomID); !apperror.Is(err, apperror.ErrorCodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestEnterRoomReplaysHistoryAndExit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := h.engine.Relay(ctx, custA, h.room.RoomID, notify.Text("msg")); err != nil {
			t.Fatalf("relay: %v", err)
		}
	}
	_ = h.sessions.SetActiveThread(ctx, adminID, 900)

	entered, err := h.engine.EnterRoom(ctx, adminID, h.room.RoomID)
	if err != nil {
		t.Fatalf("admin may enter any room: %v", err)
	}
	if entered.Kind != membership.KindAdmin || len(entered.Messages) != 3 {
		t.Fatalf("unexpected entered %+v", entered)
	}
	st, _ := h.sessions.Get(ctx, adminID)
	if st.ActiveThread != 0 {
		t.Fatal("entering a room closes the open thread")
	}

	was, err := h.engine.ExitRoom(ctx, adminID)
	if err != nil || was != h.room.RoomID {
		t.Fatalf("exit: %d (%v)", was, err)
	}
	was, _ = h.engine.ExitRoom(ctx, adminID)
	if was != 0 {
		t.Fatal("second exit has nothing to leave")
	}
}

func TestConcurrentRelayAndClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.Relay(ctx, custA, h.room.RoomID, notify.Text("race"))
			if err != nil && !apperror.Is(err, apperror.ErrorCodeAlreadyClosed) {
				t.Errorf("unexpected relay error: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := h.lifecycle.CloseByAdmin(ctx, adminID, h.room.RoomID); err != nil {
			t.Errorf("close: %v", err)
		}
	}()
	wg.Wait()

	entry, err := h.repo.GetHistoryByRoom(ctx, h.room.RoomID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	closedAt, _ := time.Parse(time.RFC3339Nano, entry.ClosedAt)
	messages, _ := h.repo.ListMessages(ctx, h.room.RoomID, 0)
	for _, m := range messages {
		createdAt, _ := time.Parse(time.RFC3339Nano, m.CreatedAt)
		if createdAt.After(closedAt) {
			t.Fatalf("message stored after close: %+v", m)
		}
	}
}

func TestRoomMessagesIsAdminOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := h.engine.Relay(ctx, custA, h.room.RoomID, notify.Text("msg")); err != nil {
			t.Fatalf("relay: %v", err)
		}
	}

	messages, err := h.engine.RoomMessages(ctx, adminID, h.room.RoomID, 2)
	if err != nil || len(messages) != 2 {
		t.Fatalf("admin reads a capped page: %d (%v)", len(messages), err)
	}
	if _, err := h.engine.RoomMessages(ctx, devB, h.room.RoomID, 0); !apperror.Is(err, apperror.ErrorCodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := h.engine.RoomMessages(ctx, adminID, 9999, 0); !apperror.Is(err, apperror.ErrorCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
