package inbox

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
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
	adminA int64 = 1
	adminB int64 = 2
	userID int64 = 500
	devID  int64 = 600
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

	tick := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	members := membership.NewWithClock(repo, sessions, []int64{adminA, adminB}, zerolog.Nop(), clock)
	svc := New(Deps{
		Repo:     repo,
		Members:  members,
		Sessions: sessions,
		Fanout:   notify.NewFanout(rec, pool, nil, zerolog.Nop()),
		Events:   rec,
		Log:      zerolog.Nop(),
		Now:      clock,
	})
	return &harness{svc: svc, members: members, repo: repo, sessions: sessions, rec: rec}
}

func TestReceiveFromNewUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	receipt, err := h.svc.Receive(ctx, membership.Profile{UserID: userID, Username: "anna"}, notify.Text("need a site"))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if receipt.Thread.UnreadCount != 1 {
		t.Fatalf("expected unread=1, got %d", receipt.Thread.UnreadCount)
	}
	if receipt.User.Role != model.RoleUser {
		t.Fatalf("new user should have role user, got %q", receipt.User.Role)
	}
	for _, id := range []int64{adminA, adminB} {
		sent := h.rec.To(id)
		if len(sent) != 1 || sent[0].Header != notify.HeaderInbox || sent[0].Sender == nil || sent[0].Sender.UserID != userID {
			t.Fatalf("admin %d should get the payload with sender, got %+v", id, sent)
		}
	}
	if h.rec.Notices(userID, notify.NoticeReceived) != 1 {
		t.Fatal("sender should be acknowledged")
	}
	if _, err := h.repo.GetCustomer(ctx, userID); err != nil {
		t.Fatalf("customer record expected: %v", err)
	}
}

func TestReceiveSkipsCustomerRecordForStaff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.members.SetUserRole(ctx, adminA, devID, model.RoleDeveloper); err != nil {
		t.Fatalf("set role: %v", err)
	}
	if _, err := h.svc.Receive(ctx, membership.Profile{UserID: devID}, notify.Text("hello")); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, err := h.repo.GetCustomer(ctx, devID); err == nil {
		t.Fatal("developers are not customers")
	}

	if _, err := h.svc.Receive(ctx, membership.Profile{UserID: adminB}, notify.Text("note to self")); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, err := h.repo.GetCustomer(ctx, adminB); err == nil {
		t.Fatal("admins are not customers")
	}
}

func TestReceiveOneAdminUnreachable(t *testing.T) {
	h := newHarness(t)
	h.rec.Fail(adminA)

	receipt, err := h.svc.Receive(context.Background(), membership.Profile{UserID: userID}, notify.Media(notify.KindPhoto, "file", ""))
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(notify.Failed(receipt.Results)) != 1 {
		t.Fatalf("expected one failure, got %+v", receipt.Results)
	}
	if len(h.rec.To(adminB)) != 1 {
		t.Fatal("second admin still gets the payload")
	}
	if receipt.Thread.UnreadCount != 0 {
		t.Fatal("media without caption stores no text")
	}
}

func TestOpenReplyClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.Receive(ctx, membership.Profile{UserID: userID}, notify.Text("hi")); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if _, err := h.svc.Reply(ctx, adminA, notify.Text("hello")); !apperror.Is(err, apperror.ErrorCodeNotFound) {
		t.Fatalf("reply without open chat should fail, got %v", err)
	}

	opened, err := h.svc.OpenThread(ctx, adminA, userID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.Thread.UnreadCount != 0 || len(opened.Messages) != 1 {
		t.Fatalf("unexpected opened thread %+v", opened)
	}

	h.rec.Reset()
	receipt, err := h.svc.Reply(ctx, adminA, notify.Text("we can help"))
	if err != nil || !receipt.Result.OK() {
		t.Fatalf("reply: %+v (%v)", receipt, err)
	}
	sent := h.rec.To(userID)
	if len(sent) != 1 || sent[0].Header != notify.HeaderAdminReply {
		t.Fatalf("user should get the reply, got %+v", sent)
	}
	thread, _ := h.repo.GetThread(ctx, userID)
	if thread.UnreadCount != 0 {
		t.Fatal("admin replies do not count as unread")
	}

	h.rec.Fail(userID)
	receipt, err = h.svc.Reply(ctx, adminA, notify.Text("still there?"))
	if err != nil || receipt.Result.OK() {
		t.Fatalf("failed delivery should be reported in the receipt: %+v (%v)", receipt, err)
	}

	if err := h.svc.CloseThread(ctx, adminA); err != nil {
		t.Fatalf("close: %v", err)
	}
	st, _ := h.sessions.Get(ctx, adminA)
	if st.ActiveThread != 0 {
		t.Fatal("thread pointer should be cleared")
	}
}

func TestOpenThreadRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.OpenThread(context.Background(), userID, userID); !apperror.Is(err, apperror.ErrorCodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := h.svc.OpenThread(context.Background(), adminA, 12345); !apperror.Is(err, apperror.ErrorCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestThreadsOrderedByActivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.svc.Receive(ctx, membership.Profile{UserID: userID, FullName: "Anna"}, notify.Text("first"))
	_, _ = h.svc.Receive(ctx, membership.Profile{UserID: 700}, notify.Text("second"))

	threads, err := h.svc.Threads(ctx, adminA)
	if err != nil {
		t.Fatalf("threads: %v", err)
	}
	if len(threads) != 2 || threads[0].Thread.UserID != 700 || threads[1].User.FullName != "Anna" {
		t.Fatalf("unexpected threads %+v", threads)
	}
}

func TestCreateRoomFromThread(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _ = h.svc.Receive(ctx, membership.Profile{UserID: userID}, notify.Text("hi"))

	if _, err := h.svc.CreateRoomFromThread(ctx, adminA, userID, "boss", "Shop"); !apperror.Is(err, apperror.ErrorCodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	room, err := h.svc.CreateRoomFromThread(ctx, adminA, userID, model.AccessCustomer, "Shop")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	access, err := h.members.Access(ctx, room.RoomID, userID)
	if err != nil || access.Kind != model.AccessCustomer {
		t.Fatalf("thread owner should be customer, got %+v (%v)", access, err)
	}
	if h.rec.Notices(userID, notify.NoticeAccessGranted) != 1 {
		t.Fatal("thread owner should be told about the room")
	}

	_, _ = h.svc.Receive(ctx, membership.Profile{UserID: devID}, notify.Text("i code"))
	room, err = h.svc.CreateRoomFromThread(ctx, adminA, devID, model.AccessDeveloper, "Team")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	access, _ = h.members.Access(ctx, room.RoomID, devID)
	if access.Kind != model.AccessDeveloper {
		t.Fatalf("expected developer, got %+v", access)
	}
	if _, err := h.repo.GetCustomer(ctx, devID); err == nil {
		t.Fatal("developer grant should drop the prospect record")
	}
}

type stuckThreadSessions struct {
	*session.MemoryStore
}

func (stuckThreadSessions) ClearActiveThread(ctx context.Context, actor int64) error {
	return errors.New("session backend down")
}

func TestReplyToMissingThreadLogsStuckPointer(t *testing.T) {
	repo := store.NewMemoryStore()
	sessions := stuckThreadSessions{MemoryStore: session.NewMemoryStore()}
	rec := notifytest.NewRecorder()
	pool := queue.NewNamed("deliveries", 4, 1, zerolog.Nop())
	t.Cleanup(pool.Shutdown)

	var logs bytes.Buffer
	members := membership.New(repo, sessions, []int64{adminA}, zerolog.Nop())
	svc := New(Deps{
		Repo:     repo,
		Members:  members,
		Sessions: sessions,
		Fanout:   notify.NewFanout(rec, pool, nil, zerolog.Nop()),
		Log:      zerolog.New(&logs),
	})
	ctx := context.Background()

	if err := sessions.SetActiveThread(ctx, adminA, userID); err != nil {
		t.Fatalf("set active thread: %v", err)
	}
	_, err := svc.Reply(ctx, adminA, notify.Text("hello?"))
	if !apperror.Is(err, apperror.ErrorCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !strings.Contains(logs.String(), "failed to clear active thread pointer") {
		t.Fatalf("expected a warning, got %q", logs.String())
	}
}
