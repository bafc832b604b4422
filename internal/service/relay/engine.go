// Package relay routes inbound content and fans room messages out to members.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
	"github.com/ThomasGodWeb/WorkBot/internal/keylock"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/service/inbox"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"
	"github.com/ThomasGodWeb/WorkBot/internal/session"
	"github.com/ThomasGodWeb/WorkBot/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HistoryLimit caps the messages replayed when entering a room.
const HistoryLimit = 50

type Route int

const (
	// RouteFlow means the sender is mid-flow; the caller resumes the pending action.
	RouteFlow Route = iota
	RouteInbox
	RouteReply
	RouteRoom
)

func (r Route) String() string {
	switch r {
	case RouteFlow:
		return "flow"
	case RouteInbox:
		return "inbox"
	case RouteReply:
		return "reply"
	case RouteRoom:
		return "room"
	}
	return "unknown"
}

type Inbound struct {
	Sender  membership.Profile
	Content notify.Content
}

type Outcome struct {
	Route   Route
	Pending *session.PendingAction
	Room    *Receipt
	Inbox   *inbox.Receipt
	Reply   *inbox.ReplyReceipt
}

// Receipt describes one relayed room message.
type Receipt struct {
	Room    model.RoomItem
	Message model.MessageItem
	Header  notify.HeaderKind
	// Present members saw the message live; Suppressed ones were skipped by preference.
	Present    []int64
	Suppressed []int64
	Results    []notify.Result
	Ack        notify.Result
}

type Entered struct {
	Room     model.RoomItem
	Kind     string
	Messages []model.MessageItem
}

type Deps struct {
	Repo     Repository
	Members  *membership.Service
	Sessions session.Store
	Inbox    *inbox.Service
	Fanout   *notify.Fanout
	Rooms    *keylock.Striped
	Events   notify.EventSink
	Log      zerolog.Logger
	Now      func() time.Time
}

type Engine struct {
	repo     Repository
	members  *membership.Service
	sessions session.Store
	inbox    *inbox.Service
	fanout   *notify.Fanout
	rooms    *keylock.Striped
	events   notify.EventSink
	log      zerolog.Logger
	now      func() time.Time
}

func New(d Deps) *Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Events == nil {
		d.Events = notify.NopSink{}
	}
	if d.Rooms == nil {
		d.Rooms = keylock.New(keylock.DefaultStripes)
	}
	return &Engine{
		repo:     d.Repo,
		members:  d.Members,
		sessions: d.Sessions,
		inbox:    d.Inbox,
		fanout:   d.Fanout,
		rooms:    d.Rooms,
		events:   d.Events,
		log:      d.Log.With().Str("service", "relay").Logger(),
		now:      d.Now,
	}
}

// Route decides where free content from a sender goes. A pending action wins,
// then the active room, then an admin's open thread, then the inbox.
func (e *Engine) Route(ctx context.Context, in Inbound) (Outcome, error) {
	st, err := e.sessions.Get(ctx, in.Sender.UserID)
	if err != nil {
		return Outcome{}, apperror.Internal("failed to load session", err)
	}

	if st.Pending != nil {
		return Outcome{Route: RouteFlow, Pending: st.Pending}, nil
	}

	if st.ActiveRoom != 0 {
		receipt, err := e.Relay(ctx, in.Sender.UserID, st.ActiveRoom, in.Content)
		if err != nil {
			return Outcome{Route: RouteRoom}, err
		}
		return Outcome{Route: RouteRoom, Room: &receipt}, nil
	}

	if st.ActiveThread != 0 {
		isAdmin, err := e.members.IsAdmin(ctx, in.Sender.UserID)
		if err != nil {
			return Outcome{}, err
		}
		if isAdmin {
			reply, err := e.inbox.Reply(ctx, in.Sender.UserID, in.Content)
			if err != nil {
				return Outcome{Route: RouteReply}, err
			}
			return Outcome{Route: RouteReply, Reply: &reply}, nil
		}
	}

	receipt, err := e.inbox.Receive(ctx, in.Sender, in.Content)
	if err != nil {
		return Outcome{Route: RouteInbox}, err
	}
	return Outcome{Route: RouteInbox, Inbox: &receipt}, nil
}

type plan struct {
	receipt    Receipt
	deliveries []notify.Delivery
	ack        notify.NoticeKind
}

// Relay posts content into roomID on behalf of sender. Delivery failures are
// collected in the receipt and never returned.
func (e *Engine) Relay(ctx context.Context, sender, roomID int64, content notify.Content) (Receipt, error) {
	if content.Empty() {
		return Receipt{}, apperror.Validation("message is empty")
	}

	var p plan
	e.rooms.RLock(roomID)
	err := e.prepare(ctx, sender, roomID, content, &p)
	e.rooms.RUnlock(roomID)
	if err != nil {
		return Receipt{}, err
	}

	p.receipt.Results = e.fanout.Send(ctx, p.deliveries)
	ack := e.fanout.Send(ctx, []notify.Delivery{{
		Recipient: sender,
		Envelopes: []notify.Envelope{notify.Notice(p.ack, roomID, p.receipt.Room.Name)},
	}})
	p.receipt.Ack = ack[0]

	if err := e.events.Publish(ctx, notify.Event{
		Type:      notify.EventRoomMessage,
		RoomID:    roomID,
		RoomName:  p.receipt.Room.Name,
		SenderID:  sender,
		Body:      content.Body(),
		Kind:      string(content.Kind),
		Timestamp: model.Timestamp(e.now()),
	}); err != nil {
		e.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to publish event")
	}

	e.log.Debug().
		Int64("room_id", roomID).
		Int64("sender_id", sender).
		Int("recipients", len(p.deliveries)).
		Int("failed", len(notify.Failed(p.receipt.Results))).
		Msg("message relayed")
	return p.receipt, nil
}

// prepare runs under the room's read guard so a close cannot land half way.
func (e *Engine) prepare(ctx context.Context, sender, roomID int64, content notify.Content, p *plan) error {
	room, err := e.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.dropPointer(ctx, sender, roomID)
			return apperror.NotFound("room no longer exists", err)
		}
		return apperror.Internal("failed to load room", err)
	}
	if !room.Active() {
		e.dropPointer(ctx, sender, roomID)
		return apperror.New(apperror.ErrorCodeAlreadyClosed, "this order is closed", nil)
	}

	members, err := e.repo.ListAccessByRoom(ctx, roomID)
	if err != nil {
		return apperror.Internal("failed to list members", err)
	}

	var senderKind model.AccessKind
	for _, m := range members {
		if m.UserID == sender {
			senderKind = m.Kind
		}
	}
	if senderKind == "" {
		isAdmin, err := e.members.IsAdmin(ctx, sender)
		if err != nil {
			return err
		}
		if !isAdmin {
			e.dropPointer(ctx, sender, roomID)
			return apperror.Forbidden("you no longer have access to this room")
		}
		senderKind = model.AccessDeveloper
	}

	header, ack := notify.HeaderDeveloper, notify.NoticeDeliveredToRoom
	if senderKind == model.AccessCustomer {
		header, ack = notify.HeaderCustomer, notify.NoticeDeliveredToDevelopers
	}

	msg := model.MessageItem{
		MessageID:    uuid.NewString(),
		RoomID:       roomID,
		SenderID:     sender,
		Body:         content.Body(),
		FromCustomer: senderKind == model.AccessCustomer,
		CreatedAt:    model.Timestamp(e.now()),
	}
	msg.PK = model.ScopedPK(roomID, msg.MessageID)
	if msg.Body != "" {
		if err := e.repo.AppendMessage(ctx, msg); err != nil {
			return apperror.Internal("failed to save message", err)
		}
	}

	inRoom, err := e.sessions.ActorsInRoom(ctx, roomID)
	if err != nil {
		return apperror.Internal("failed to load room presence", err)
	}
	present := make(map[int64]bool, len(inRoom))
	for _, id := range inRoom {
		present[id] = true
	}

	env := notify.Message(header, roomID, room.Name, content)
	p.receipt = Receipt{Room: room, Message: msg, Header: header, Present: []int64{}, Suppressed: []int64{}}
	p.ack = ack
	p.deliveries = make([]notify.Delivery, 0, len(members))

	for _, m := range members {
		if m.UserID == sender {
			continue
		}
		if present[m.UserID] {
			p.receipt.Present = append(p.receipt.Present, m.UserID)
			p.deliveries = append(p.deliveries, notify.Delivery{Recipient: m.UserID, Envelopes: []notify.Envelope{env}})
			continue
		}

		// only admins may mute a room they are not in
		isAdmin, err := e.members.IsAdmin(ctx, m.UserID)
		if err != nil {
			return err
		}
		if isAdmin {
			enabled, err := e.members.NotificationEnabled(ctx, m.UserID, roomID)
			if err != nil {
				return err
			}
			if !enabled {
				p.receipt.Suppressed = append(p.receipt.Suppressed, m.UserID)
				continue
			}
		}
		p.deliveries = append(p.deliveries, notify.Delivery{
			Recipient: m.UserID,
			Envelopes: []notify.Envelope{env, notify.Notice(notify.NoticeNewMessage, roomID, room.Name)},
		})
	}
	return nil
}

func (e *Engine) dropPointer(ctx context.Context, actor, roomID int64) {
	_, err := e.sessions.Update(ctx, actor, func(st *session.State) error {
		if st.ActiveRoom == roomID {
			st.ActiveRoom = 0
		}
		return nil
	})
	if err != nil {
		e.log.Warn().Err(err).Int64("actor_id", actor).Int64("room_id", roomID).Msg("failed to clear active room")
	}
}

// EnterRoom points the actor at an active room they may post in and returns
// its recent messages. Entering a room closes an open inbox thread.
func (e *Engine) EnterRoom(ctx context.Context, actor, roomID int64) (Entered, error) {
	e.rooms.RLock(roomID)
	defer e.rooms.RUnlock(roomID)

	room, err := e.members.Room(ctx, roomID)
	if err != nil {
		return Entered{}, err
	}
	if !room.Active() {
		return Entered{}, apperror.New(apperror.ErrorCodeAlreadyClosed, "this order is closed", nil)
	}

	kind := membership.KindAdmin
	access, err := e.members.Access(ctx, roomID, actor)
	switch {
	case err == nil:
		kind = string(access.Kind)
	case apperror.Is(err, apperror.ErrorCodeNotFound):
		isAdmin, adminErr := e.members.IsAdmin(ctx, actor)
		if adminErr != nil {
			return Entered{}, adminErr
		}
		if !isAdmin {
			return Entered{}, apperror.Forbidden("you have no access to this room")
		}
	default:
		return Entered{}, err
	}

	if err := e.sessions.SetActiveRoom(ctx, actor, roomID); err != nil {
		return Entered{}, apperror.Internal("failed to enter room", err)
	}
	messages, err := e.repo.ListMessages(ctx, roomID, HistoryLimit)
	if err != nil {
		return Entered{}, apperror.Internal("failed to list messages", err)
	}
	return Entered{Room: room, Kind: kind, Messages: messages}, nil
}

// ExitRoom clears the actor's active room and reports which room it was.
func (e *Engine) ExitRoom(ctx context.Context, actor int64) (int64, error) {
	var was int64
	_, err := e.sessions.Update(ctx, actor, func(st *session.State) error {
		was = st.ActiveRoom
		st.ActiveRoom = 0
		return nil
	})
	if err != nil {
		return 0, apperror.Internal("failed to exit room", err)
	}
	return was, nil
}

// RoomMessages lists up to limit recent messages of a room for an admin.
// Closed rooms stay readable until they are purged.
func (e *Engine) RoomMessages(ctx context.Context, actor, roomID int64, limit int) ([]model.MessageItem, error) {
	if err := e.members.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if _, err := e.members.Room(ctx, roomID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > HistoryLimit {
		limit = HistoryLimit
	}
	messages, err := e.repo.ListMessages(ctx, roomID, limit)
	if err != nil {
		return nil, apperror.Internal("failed to list messages", err)
	}
	return messages, nil
}
