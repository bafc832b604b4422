package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
	"github.com/ThomasGodWeb/WorkBot/internal/keylock"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/notify/notifytest"
	"github.com/ThomasGodWeb/WorkBot/internal/queue"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"
	"github.com/ThomasGodWeb/WorkBot/internal/session"
	"github.com/ThomasGodWeb/WorkBot/internal/store"

	"github.com/rs/zerolog"
)

const (
	adminID    int64 = 1
	customerID int64 = 100
	devID      int64 = 200
)

type harness struct {
	svc      *Service
	members  *membership.Service
	repo     *store.MemoryStore
	sessions *session.MemoryStore
	rec      *notifytest.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := store.NewMemoryStore()
	sessions := session.NewMemoryStore()
	rec := notifytest.NewRecorder()
	pool := queue.NewNamed("deliveries", 16, 4, zerolog.Nop())
	t.Cleanup(pool.Shutdown)

	clock := func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	members := membership.NewWithClock(repo, sessions, []int64{adminID}, zerolog.Nop(), clock)
	svc := New(Deps{
		Repo:     repo,
		Members:  members,
		Sessions: sessions,
		Fanout:   notify.NewFanout(rec, pool, nil, zerolog.Nop()),
		Rooms:    keylock.New(8),
		Events:   rec,
		Log:      zerolog.Nop(),
		Now:      clock,
	})
	return &harness{svc: svc, members: members, repo: repo, sessions: sessions, rec: rec}
}

func (h *harness) room(t *testing.T) model.RoomItem {
	t.Helper()
	ctx := context.Background()
	room, err := h.members.CreateRoom(ctx, adminID, "Shop", customerID)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	if _, err := h.members.Grant(ctx, adminID, room.RoomID, devID, model.AccessDeveloper); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := h.repo.AppendMessage(ctx, model.MessageItem{PK: "m1", MessageID: "m1", RoomID: room.RoomID, SenderID: customerID, Body: "hi", CreatedAt: "2025-03-01T11:00:00Z"}); err != nil {
		t.Fatalf("append message: %v", err)
	}
	return room
}

func TestCloseTwiceFailsAndKeepsRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.room(t)

	if err := h.sessions.SetActiveRoom(ctx, devID, room.RoomID); err != nil {
		t.Fatalf("set active room: %v", err)
	}

	closure, err := h.svc.CloseByAdmin(ctx, adminID, room.RoomID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closure.Entry.RoomID != room.RoomID || closure.Entry.ClosedBy != adminID || closure.CustomerID != customerID {
		t.Fatalf("unexpected history entry %+v", closure.Entry)
	}

	stored, _ := h.repo.GetRoom(ctx, room.RoomID)
	if stored.Active() {
		t.Fatal("room should be closed")
	}
	st, _ := h.sessions.Get(ctx, devID)
	if st.ActiveRoom != 0 {
		t.Fatal("active room pointer should be cleared")
	}

	h.rec.Reset()
	if _, err := h.svc.CloseByAdmin(ctx, adminID, room.RoomID); !apperror.Is(err, apperror.ErrorCodeAlreadyClosed) {
		t.Fatalf("expected already closed, got %v", err)
	}
	if len(h.rec.All()) != 0 || len(h.rec.Events()) != 0 {
		t.Fatal("second close must have no side effects")
	}

	access, messages := h.repo.Counts(room.RoomID)
	if access != 3 || messages != 1 {
		t.Fatalf("close must keep rows, got access=%d messages=%d", access, messages)
	}
}

func TestAdminCloseNotifiesMembersAndPromptsCustomer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.room(t)

	closure, err := h.svc.CloseByAdmin(ctx, adminID, room.RoomID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !closure.Prompted {
		t.Fatal("customer should be prompted for a review")
	}
	for _, id := range []int64{adminID, customerID, devID} {
		if h.rec.Notices(id, notify.NoticeRoomClosed) != 1 {
			t.Fatalf("member %d should get one close notice", id)
		}
	}
	if h.rec.Notices(customerID, notify.NoticeReviewPrompt) != 1 {
		t.Fatal("customer should get the review prompt")
	}
	if h.rec.Notices(devID, notify.NoticeReviewPrompt) != 0 {
		t.Fatal("developers never get the review prompt")
	}
	if events := h.rec.Events(); len(events) != 1 || events[0].Type != notify.EventRoomClosed {
		t.Fatalf("expected one close event, got %+v", events)
	}
}

func TestCloseSurvivesUnreachableMember(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.room(t)
	h.rec.Fail(devID)

	closure, err := h.svc.CloseByAdmin(ctx, adminID, room.RoomID)
	if err != nil {
		t.Fatalf("delivery failure must not fail the close: %v", err)
	}
	if len(notify.Failed(closure.Results)) != 1 {
		t.Fatalf("expected one failed delivery, got %+v", closure.Results)
	}
	if h.rec.Notices(customerID, notify.NoticeRoomClosed) != 1 {
		t.Fatal("other members still get the notice")
	}
	if _, err := h.repo.GetHistoryByRoom(ctx, room.RoomID); err != nil {
		t.Fatalf("history entry must stay: %v", err)
	}
}

func TestCustomerClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.room(t)

	if _, err := h.svc.CloseByCustomer(ctx, devID, "Dev", room.RoomID); !apperror.Is(err, apperror.ErrorCodeForbidden) {
		t.Fatalf("developer cannot use the customer path, got %v", err)
	}
	if _, err := h.svc.CloseByCustomer(ctx, 999, "Stranger", room.RoomID); !apperror.Is(err, apperror.ErrorCodeForbidden) {
		t.Fatalf("non member cannot close, got %v", err)
	}

	closure, err := h.svc.CloseByCustomer(ctx, customerID, "Anna", room.RoomID)
	if err != nil {
		t.Fatalf("customer close without an active room: %v", err)
	}
	if closure.Prompted {
		t.Fatal("customer closer is not prompted by notice")
	}
	st, _ := h.sessions.Get(ctx, customerID)
	if st.Pending == nil || st.Pending.Kind != session.ActionAddReview || st.Pending.RoomID != room.RoomID {
		t.Fatalf("expected pending review, got %+v", st.Pending)
	}
	sent := h.rec.To(devID)
	if len(sent) != 1 || sent[0].Detail != "Anna" {
		t.Fatalf("developer should learn who closed, got %+v", sent)
	}
}

func TestCloseUnknownRoom(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.CloseByAdmin(context.Background(), adminID, 42); !apperror.Is(err, apperror.ErrorCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := h.svc.CloseByAdmin(context.Background(), devID, 42); !apperror.Is(err, apperror.ErrorCodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestArchiveThenPurgeRemovesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.room(t)

	closure, err := h.svc.Archive(ctx, adminID, room.RoomID)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if h.rec.Notices(devID, notify.NoticeRoomDeleted) != 1 {
		t.Fatal("members should hear the room was deleted")
	}

	if _, err := h.svc.Purge(ctx, adminID, closure.Entry.HistoryID); err != nil {
		t.Fatalf("purge: %v", err)
	}
	access, messages := h.repo.Counts(room.RoomID)
	if access != 0 || messages != 0 {
		t.Fatalf("purge must remove rows, got access=%d messages=%d", access, messages)
	}
	rooms, _ := h.members.AllRooms(ctx, adminID)
	if len(rooms) != 0 {
		t.Fatalf("room should be gone, got %+v", rooms)
	}
	history, _ := h.svc.History(ctx, adminID)
	if len(history) != 0 {
		t.Fatalf("history should be empty, got %+v", history)
	}
	if _, err := h.svc.Purge(ctx, adminID, closure.Entry.HistoryID); !apperror.Is(err, apperror.ErrorCodeNotFound) {
		t.Fatalf("second purge should be not found, got %v", err)
	}
}

func TestPurgeRoomSkipsHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.room(t)
	_ = h.sessions.SetActiveRoom(ctx, customerID, room.RoomID)

	if _, err := h.svc.PurgeRoom(ctx, adminID, room.RoomID); err != nil {
		t.Fatalf("purge room: %v", err)
	}
	if _, err := h.repo.GetRoom(ctx, room.RoomID); err == nil {
		t.Fatal("room should be deleted")
	}
	history, _ := h.svc.History(ctx, adminID)
	if len(history) != 0 {
		t.Fatal("legacy delete writes no history")
	}
	st, _ := h.sessions.Get(ctx, customerID)
	if st.ActiveRoom != 0 {
		t.Fatal("pointers at the purged room must be cleared")
	}
	if _, err := h.svc.PurgeRoom(ctx, adminID, room.RoomID); !apperror.Is(err, apperror.ErrorCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReviews(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.room(t)

	if _, err := h.svc.SubmitReview(ctx, customerID, room.RoomID, "great"); !apperror.Is(err, apperror.ErrorCodeForbidden) {
		t.Fatalf("open room cannot be reviewed, got %v", err)
	}
	if _, err := h.svc.CloseByAdmin(ctx, adminID, room.RoomID); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := h.svc.StartReview(ctx, customerID, room.RoomID); err != nil {
		t.Fatalf("start review: %v", err)
	}
	if _, err := h.svc.SubmitReview(ctx, customerID, room.RoomID, "   "); !apperror.Is(err, apperror.ErrorCodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	review, err := h.svc.SubmitReview(ctx, customerID, room.RoomID, " great work ")
	if err != nil {
		t.Fatalf("submit review: %v", err)
	}
	if review.Text != "great work" {
		t.Fatalf("unexpected review %+v", review)
	}
	if _, err := h.svc.SubmitReview(ctx, customerID, room.RoomID, "again"); !apperror.Is(err, apperror.ErrorCodeDuplicateReview) {
		t.Fatalf("expected duplicate review, got %v", err)
	}

	orders, err := h.svc.CustomerHistory(ctx, customerID)
	if err != nil || len(orders) != 1 || !orders[0].HasReview {
		t.Fatalf("unexpected orders %+v (%v)", orders, err)
	}
	reviews, err := h.svc.Reviews(ctx, adminID)
	if err != nil || len(reviews) != 1 {
		t.Fatalf("unexpected reviews %+v (%v)", reviews, err)
	}
}
