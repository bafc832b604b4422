// Package inbox holds contact from users who have no room yet and lets admins
// answer it or turn it into a room.
package inbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"
	"github.com/ThomasGodWeb/WorkBot/internal/session"
	"github.com/ThomasGodWeb/WorkBot/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HistoryLimit caps the messages returned when a thread is opened.
const HistoryLimit = 50

type Deps struct {
	Repo     Repository
	Members  *membership.Service
	Sessions session.Store
	Fanout   *notify.Fanout
	Events   notify.EventSink
	Log      zerolog.Logger
	Now      func() time.Time
}

type Service struct {
	repo     Repository
	members  *membership.Service
	sessions session.Store
	fanout   *notify.Fanout
	events   notify.EventSink
	log      zerolog.Logger
	now      func() time.Time
}

func New(d Deps) *Service {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Events == nil {
		d.Events = notify.NopSink{}
	}
	return &Service{
		repo:     d.Repo,
		members:  d.Members,
		sessions: d.Sessions,
		fanout:   d.Fanout,
		events:   d.Events,
		log:      d.Log.With().Str("service", "inbox").Logger(),
		now:      d.Now,
	}
}

type Receipt struct {
	Thread  model.ThreadItem
	User    model.UserItem
	Results []notify.Result
	Ack     notify.Result
}

type ReplyReceipt struct {
	UserID int64
	Result notify.Result
}

type ThreadView struct {
	Thread model.ThreadItem
	User   model.UserItem
}

type Opened struct {
	ThreadView
	Messages []model.ThreadMessageItem
}

func (s *Service) message(userID, senderID int64, body string, fromUser bool) model.ThreadMessageItem {
	id := uuid.NewString()
	return model.ThreadMessageItem{
		PK:        model.ScopedPK(userID, id),
		UserID:    userID,
		SenderID:  senderID,
		Body:      body,
		FromUser:  fromUser,
		CreatedAt: model.Timestamp(s.now()),
	}
}

// Receive files contact from a user without a room and forwards it to every
// configured admin. Each admin delivery is independent.
func (s *Service) Receive(ctx context.Context, p membership.Profile, content notify.Content) (Receipt, error) {
	if content.Empty() {
		return Receipt{}, apperror.Validation("message is empty")
	}

	user, err := s.members.EnsureUser(ctx, p)
	if err != nil {
		return Receipt{}, err
	}

	now := model.Timestamp(s.now())
	thread, err := s.repo.GetOrCreateThread(ctx, user.UserID, now)
	if err != nil {
		return Receipt{}, apperror.Internal("failed to open chat", err)
	}

	if body := content.Body(); body != "" {
		if err := s.repo.AppendThreadMessage(ctx, s.message(user.UserID, user.UserID, body, true), true); err != nil {
			return Receipt{}, apperror.Internal("failed to save chat message", err)
		}
		if thread, err = s.repo.GetThread(ctx, user.UserID); err != nil {
			return Receipt{}, apperror.Internal("failed to load chat", err)
		}
	}

	role, err := s.members.Role(ctx, user.UserID)
	if err != nil {
		return Receipt{}, err
	}
	if role != model.RoleAdmin && role != model.RoleDeveloper {
		if err := s.repo.UpsertCustomer(ctx, user.UserID, now); err != nil {
			return Receipt{}, apperror.Internal("failed to record customer", err)
		}
	}

	env := notify.Message(notify.HeaderInbox, 0, "", content)
	env.Sender = &notify.Sender{UserID: user.UserID, Username: p.Username, FullName: p.FullName}
	admins := s.members.StaticAdmins()
	deliveries := make([]notify.Delivery, 0, len(admins))
	for _, id := range admins {
		deliveries = append(deliveries, notify.Delivery{Recipient: id, Envelopes: []notify.Envelope{env}})
	}
	results := s.fanout.Send(ctx, deliveries)

	ack := s.fanout.Send(ctx, []notify.Delivery{{
		Recipient: user.UserID,
		Envelopes: []notify.Envelope{notify.Notice(notify.NoticeReceived, 0, "")},
	}})

	if err := s.events.Publish(ctx, notify.Event{
		Type:      notify.EventInbox,
		SenderID:  user.UserID,
		Body:      content.Body(),
		Kind:      string(content.Kind),
		Timestamp: now,
	}); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.UserID).Msg("failed to publish event")
	}

	s.log.Debug().Int64("user_id", user.UserID).Int("admins", len(admins)).Msg("inbox message received")
	return Receipt{Thread: thread, User: user, Results: results, Ack: ack[0]}, nil
}

// OpenThread points the admin at the thread so their next messages answer it.
func (s *Service) OpenThread(ctx context.Context, admin, userID int64) (Opened, error) {
	if err := s.members.RequireAdmin(ctx, admin); err != nil {
		return Opened{}, err
	}
	thread, err := s.repo.GetThread(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Opened{}, apperror.NotFound("chat not found", err)
		}
		return Opened{}, apperror.Internal("failed to load chat", err)
	}

	_, err = s.sessions.Update(ctx, admin, func(st *session.State) error {
		st.ActiveRoom = 0
		st.ActiveThread = userID
		return nil
	})
	if err != nil {
		return Opened{}, apperror.Internal("failed to open chat", err)
	}
	if err := s.repo.MarkThreadRead(ctx, userID); err != nil {
		return Opened{}, apperror.Internal("failed to mark chat read", err)
	}
	thread.UnreadCount = 0

	messages, err := s.repo.ListThreadMessages(ctx, userID, HistoryLimit)
	if err != nil {
		return Opened{}, apperror.Internal("failed to list chat messages", err)
	}
	return Opened{ThreadView: ThreadView{Thread: thread, User: s.user(ctx, userID)}, Messages: messages}, nil
}

func (s *Service) CloseThread(ctx context.Context, admin int64) error {
	if err := s.sessions.ClearActiveThread(ctx, admin); err != nil {
		return apperror.Internal("failed to close chat", err)
	}
	return nil
}

// Reply answers the admin's open thread. A failed delivery is reported in the
// receipt, not as an error.
func (s *Service) Reply(ctx context.Context, admin int64, content notify.Content) (ReplyReceipt, error) {
	st, err := s.sessions.Get(ctx, admin)
	if err != nil {
		return ReplyReceipt{}, apperror.Internal("failed to load session", err)
	}
	if st.ActiveThread == 0 {
		return ReplyReceipt{}, apperror.NotFound("no chat is open", nil)
	}
	if content.Empty() {
		return ReplyReceipt{}, apperror.Validation("message is empty")
	}
	userID := st.ActiveThread

	if _, err := s.repo.GetThread(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if clearErr := s.sessions.ClearActiveThread(ctx, admin); clearErr != nil {
				s.log.Warn().Err(clearErr).Int64("actor_id", admin).Msg("failed to clear active thread pointer")
			}
			return ReplyReceipt{}, apperror.NotFound("chat not found", err)
		}
		return ReplyReceipt{}, apperror.Internal("failed to load chat", err)
	}

	if body := content.Body(); body != "" {
		if err := s.repo.AppendThreadMessage(ctx, s.message(userID, admin, body, false), false); err != nil {
			return ReplyReceipt{}, apperror.Internal("failed to save reply", err)
		}
	}

	results := s.fanout.Send(ctx, []notify.Delivery{{
		Recipient: userID,
		Envelopes: []notify.Envelope{notify.Message(notify.HeaderAdminReply, 0, "", content)},
	}})
	return ReplyReceipt{UserID: userID, Result: results[0]}, nil
}

// Threads lists every inbox thread, most recent activity first.
func (s *Service) Threads(ctx context.Context, admin int64) ([]ThreadView, error) {
	if err := s.members.RequireAdmin(ctx, admin); err != nil {
		return nil, err
	}
	threads, err := s.repo.ListThreads(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to list chats", err)
	}
	views := make([]ThreadView, 0, len(threads))
	for _, t := range threads {
		views = append(views, ThreadView{Thread: t, User: s.user(ctx, t.UserID)})
	}
	return views, nil
}

func (s *Service) user(ctx context.Context, userID int64) model.UserItem {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return model.UserItem{UserID: userID}
	}
	return user
}

// CreateRoomFromThread opens a room for the thread owner, who joins as the
// room's customer or as a developer.
func (s *Service) CreateRoomFromThread(ctx context.Context, admin, userID int64, kind model.AccessKind, name string) (model.RoomItem, error) {
	if err := s.members.RequireAdmin(ctx, admin); err != nil {
		return model.RoomItem{}, err
	}
	if !kind.Valid() {
		return model.RoomItem{}, apperror.Validation("role must be customer or developer")
	}
	if strings.TrimSpace(name) == "" {
		return model.RoomItem{}, apperror.Validation("room name is required")
	}
	if _, err := s.repo.GetThread(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.RoomItem{}, apperror.NotFound("chat not found", err)
		}
		return model.RoomItem{}, apperror.Internal("failed to load chat", err)
	}

	var (
		room model.RoomItem
		err  error
	)
	if kind == model.AccessCustomer {
		room, err = s.members.CreateRoom(ctx, admin, name, userID)
	} else {
		room, err = s.members.CreateRoom(ctx, admin, name, 0)
		if err == nil {
			room, err = s.members.Grant(ctx, admin, room.RoomID, userID, model.AccessDeveloper)
		}
	}
	if err != nil {
		return model.RoomItem{}, err
	}

	s.fanout.Send(ctx, []notify.Delivery{{
		Recipient: userID,
		Envelopes: []notify.Envelope{notify.Notice(notify.NoticeAccessGranted, room.RoomID, room.Name)},
	}})
	s.log.Info().Int64("room_id", room.RoomID).Int64("user_id", userID).Str("kind", string(kind)).Msg("room created from chat")
	return room, nil
}
