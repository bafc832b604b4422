// Package lifecycle moves rooms from active to closed and removes them for good.
package lifecycle

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
	"github.com/ThomasGodWeb/WorkBot/internal/keylock"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"
	"github.com/ThomasGodWeb/WorkBot/internal/session"
	"github.com/ThomasGodWeb/WorkBot/internal/store"

	"github.com/rs/zerolog"
)

type Deps struct {
	Repo     Repository
	Members  *membership.Service
	Sessions session.Store
	Fanout   *notify.Fanout
	// Rooms is the per-room guard shared with the relay engine.
	Rooms  *keylock.Striped
	Events notify.EventSink
	Log    zerolog.Logger
	Now    func() time.Time
}

type Service struct {
	repo     Repository
	members  *membership.Service
	sessions session.Store
	fanout   *notify.Fanout
	rooms    *keylock.Striped
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
	if d.Rooms == nil {
		d.Rooms = keylock.New(keylock.DefaultStripes)
	}
	return &Service{
		repo:     d.Repo,
		members:  d.Members,
		sessions: d.Sessions,
		fanout:   d.Fanout,
		rooms:    d.Rooms,
		events:   d.Events,
		log:      d.Log.With().Str("service", "lifecycle").Logger(),
		now:      d.Now,
	}
}

type reason int

const (
	reasonAdmin reason = iota
	reasonCustomer
	reasonArchive
)

// Closure reports what a close did. Results hold one entry per notified member.
type Closure struct {
	Room       model.RoomItem
	Entry      model.HistoryItem
	Members    []model.AccessItem
	Cleared    []int64
	CustomerID int64
	Prompted   bool
	Results    []notify.Result
}

type Order struct {
	Entry     model.HistoryItem
	HasReview bool
}

func (s *Service) CloseByAdmin(ctx context.Context, actor, roomID int64) (Closure, error) {
	if err := s.members.RequireAdmin(ctx, actor); err != nil {
		return Closure{}, err
	}
	return s.close(ctx, actor, roomID, reasonAdmin, "")
}

// CloseByCustomer lets the room's customer close it without entering it. The
// customer is then asked for a review through their pending action.
func (s *Service) CloseByCustomer(ctx context.Context, actor int64, closerName string, roomID int64) (Closure, error) {
	access, err := s.members.Access(ctx, roomID, actor)
	if err != nil {
		if apperror.Is(err, apperror.ErrorCodeNotFound) {
			if _, roomErr := s.members.Room(ctx, roomID); roomErr != nil {
				return Closure{}, roomErr
			}
			return Closure{}, apperror.Forbidden("only the customer can close this order")
		}
		return Closure{}, err
	}
	if access.Kind != model.AccessCustomer {
		return Closure{}, apperror.Forbidden("only the customer can close this order")
	}

	closure, err := s.close(ctx, actor, roomID, reasonCustomer, closerName)
	if err != nil {
		return Closure{}, err
	}
	if err := s.sessions.SetPending(ctx, actor, session.PendingAction{Kind: session.ActionAddReview, RoomID: roomID}); err != nil {
		s.log.Warn().Err(err).Int64("room_id", roomID).Int64("actor_id", actor).Msg("failed to start review flow")
	}
	return closure, nil
}

// Archive is the button-driven delete: the room is closed into history and
// members are told it was deleted. Compare PurgeRoom.
func (s *Service) Archive(ctx context.Context, actor, roomID int64) (Closure, error) {
	if err := s.members.RequireAdmin(ctx, actor); err != nil {
		return Closure{}, err
	}
	return s.close(ctx, actor, roomID, reasonArchive, "")
}

func (s *Service) close(ctx context.Context, actor, roomID int64, why reason, closerName string) (Closure, error) {
	var out Closure

	err := s.rooms.With(roomID, func() error {
		room, err := s.repo.GetRoom(ctx, roomID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperror.NotFound("room not found", err)
			}
			return apperror.Internal("failed to load room", err)
		}

		_, err = s.repo.GetHistoryByRoom(ctx, roomID)
		switch {
		case err == nil:
			return apperror.New(apperror.ErrorCodeAlreadyClosed, "this order is already closed", nil)
		case !errors.Is(err, store.ErrNotFound):
			return apperror.Internal("failed to check history", err)
		}
		if !room.Active() {
			return apperror.New(apperror.ErrorCodeAlreadyClosed, "this order is already closed", nil)
		}

		members, err := s.repo.ListAccessByRoom(ctx, roomID)
		if err != nil {
			return apperror.Internal("failed to list members", err)
		}
		sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
		customerID := customerOf(room, members)

		historyID, err := s.repo.NextID(ctx, model.HistorySequence)
		if err != nil {
			return apperror.Internal("failed to allocate history id", err)
		}
		entry := model.HistoryItem{
			HistoryID:     historyID,
			RoomID:        room.RoomID,
			RoomName:      room.Name,
			CustomerID:    customerID,
			CreatedBy:     room.CreatedBy,
			ClosedBy:      actor,
			RoomCreatedAt: room.CreatedAt,
			ClosedAt:      model.Timestamp(s.now()),
		}
		if err := s.repo.ArchiveRoom(ctx, entry); err != nil {
			switch {
			case errors.Is(err, store.ErrConflict):
				return apperror.New(apperror.ErrorCodeAlreadyClosed, "this order is already closed", err)
			case errors.Is(err, store.ErrNotFound):
				return apperror.NotFound("room not found", err)
			}
			return apperror.Internal("failed to archive room", err)
		}
		room.Status = model.RoomStatusClosed

		cleared, err := s.sessions.ClearRoom(ctx, roomID)
		if err != nil {
			// the relay also refuses closed rooms, so stale pointers heal on next use
			s.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to clear active room pointers")
		}

		out = Closure{Room: room, Entry: entry, Members: members, Cleared: cleared, CustomerID: customerID}
		return nil
	})
	if err != nil {
		return Closure{}, err
	}

	s.log.Info().Int64("room_id", roomID).Int64("actor_id", actor).Int64("history_id", out.Entry.HistoryID).Msg("room closed")
	s.announce(ctx, &out, why, closerName)
	return out, nil
}

func customerOf(room model.RoomItem, members []model.AccessItem) int64 {
	first := int64(0)
	for _, m := range members {
		if m.Kind != model.AccessCustomer {
			continue
		}
		if m.UserID == room.CustomerID {
			return m.UserID
		}
		if first == 0 {
			first = m.UserID
		}
	}
	return first
}

// announce runs after the transition is stored; nothing here can undo it.
func (s *Service) announce(ctx context.Context, c *Closure, why reason, closerName string) {
	var env notify.Envelope
	switch why {
	case reasonCustomer:
		env = notify.Notice(notify.NoticeRoomClosedByCustomer, c.Room.RoomID, c.Room.Name)
		env.Detail = closerName
	case reasonArchive:
		env = notify.Notice(notify.NoticeRoomDeleted, c.Room.RoomID, c.Room.Name)
	default:
		env = notify.Notice(notify.NoticeRoomClosed, c.Room.RoomID, c.Room.Name)
	}

	prompt := false
	if c.CustomerID != 0 && c.CustomerID != c.Entry.ClosedBy {
		_, err := s.repo.FindReview(ctx, c.Room.RoomID, c.CustomerID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			prompt = true
		case err != nil:
			s.log.Warn().Err(err).Int64("room_id", c.Room.RoomID).Msg("failed to check review")
		}
	}

	deliveries := make([]notify.Delivery, 0, len(c.Members))
	for _, m := range c.Members {
		d := notify.Delivery{Recipient: m.UserID, Envelopes: []notify.Envelope{env}}
		if prompt && m.UserID == c.CustomerID {
			d.Envelopes = append(d.Envelopes, notify.Notice(notify.NoticeReviewPrompt, c.Room.RoomID, c.Room.Name))
		}
		deliveries = append(deliveries, d)
	}
	if prompt && !hasMember(c.Members, c.CustomerID) {
		deliveries = append(deliveries, notify.Delivery{
			Recipient: c.CustomerID,
			Envelopes: []notify.Envelope{notify.Notice(notify.NoticeReviewPrompt, c.Room.RoomID, c.Room.Name)},
		})
	}

	c.Prompted = prompt
	c.Results = s.fanout.Send(ctx, deliveries)
	s.publish(ctx, notify.Event{
		Type:     notify.EventRoomClosed,
		RoomID:   c.Room.RoomID,
		RoomName: c.Room.Name,
		SenderID: c.Entry.ClosedBy,
	})
}

func hasMember(members []model.AccessItem, userID int64) bool {
	for _, m := range members {
		if m.UserID == userID {
			return true
		}
	}
	return false
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	ev.Timestamp = model.Timestamp(s.now())
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Int64("room_id", ev.RoomID).Str("event", string(ev.Type)).Msg("failed to publish event")
	}
}

// Purge removes a closed room for good: history entry, room, members,
// messages and notification settings.
func (s *Service) Purge(ctx context.Context, actor, historyID int64) (model.HistoryItem, error) {
	if err := s.members.RequireAdmin(ctx, actor); err != nil {
		return model.HistoryItem{}, err
	}
	entry, err := s.repo.GetHistory(ctx, historyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.HistoryItem{}, apperror.NotFound("order not found in history", err)
		}
		return model.HistoryItem{}, apperror.Internal("failed to load history", err)
	}

	err = s.rooms.With(entry.RoomID, func() error {
		if err := s.repo.PurgeHistory(ctx, historyID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperror.NotFound("order not found in history", err)
			}
			return apperror.Internal("failed to purge order", err)
		}
		if _, err := s.sessions.ClearRoom(ctx, entry.RoomID); err != nil {
			s.log.Warn().Err(err).Int64("room_id", entry.RoomID).Msg("failed to clear active room pointers")
		}
		return nil
	})
	if err != nil {
		return model.HistoryItem{}, err
	}

	s.log.Info().Int64("room_id", entry.RoomID).Int64("history_id", historyID).Int64("actor_id", actor).Msg("order purged")
	s.publish(ctx, notify.Event{Type: notify.EventRoomPurged, RoomID: entry.RoomID, RoomName: entry.RoomName, SenderID: actor})
	return entry, nil
}

// PurgeRoom backs the legacy /delete_room command. It deletes the room with its
// members and messages immediately and writes no history entry, unlike Archive.
// Product has not confirmed whether the two delete paths should differ.
func (s *Service) PurgeRoom(ctx context.Context, actor, roomID int64) (model.RoomItem, error) {
	if err := s.members.RequireAdmin(ctx, actor); err != nil {
		return model.RoomItem{}, err
	}

	var room model.RoomItem
	err := s.rooms.With(roomID, func() error {
		var err error
		room, err = s.repo.GetRoom(ctx, roomID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperror.NotFound("room not found", err)
			}
			return apperror.Internal("failed to load room", err)
		}
		if err := s.repo.DeleteRoom(ctx, roomID); err != nil {
			return apperror.Internal("failed to delete room", err)
		}
		if _, err := s.sessions.ClearRoom(ctx, roomID); err != nil {
			s.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to clear active room pointers")
		}
		return nil
	})
	if err != nil {
		return model.RoomItem{}, err
	}

	s.log.Info().Int64("room_id", roomID).Int64("actor_id", actor).Msg("room purged without history")
	s.publish(ctx, notify.Event{Type: notify.EventRoomPurged, RoomID: roomID, RoomName: room.Name, SenderID: actor})
	return room, nil
}

func (s *Service) History(ctx context.Context, actor int64) ([]model.HistoryItem, error) {
	if err := s.members.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListHistory(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to list history", err)
	}
	return entries, nil
}

// CustomerHistory lists the closed orders of one customer, newest first.
func (s *Service) CustomerHistory(ctx context.Context, customerID int64) ([]Order, error) {
	entries, err := s.repo.ListHistory(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to list history", err)
	}
	orders := make([]Order, 0)
	for _, e := range entries {
		if e.CustomerID != customerID {
			continue
		}
		_, err := s.repo.FindReview(ctx, e.RoomID, customerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, apperror.Internal("failed to check review", err)
		}
		orders = append(orders, Order{Entry: e, HasReview: err == nil})
	}
	return orders, nil
}

func (s *Service) order(ctx context.Context, actor, roomID int64) (Order, error) {
	orders, err := s.CustomerHistory(ctx, actor)
	if err != nil {
		return Order{}, err
	}
	for _, o := range orders {
		if o.Entry.RoomID == roomID {
			return o, nil
		}
	}
	return Order{}, apperror.Forbidden("you have no closed order for this room")
}

// StartReview arms the review flow for a closed order of the actor.
func (s *Service) StartReview(ctx context.Context, actor, roomID int64) (model.HistoryItem, error) {
	o, err := s.order(ctx, actor, roomID)
	if err != nil {
		return model.HistoryItem{}, err
	}
	if o.HasReview {
		return model.HistoryItem{}, apperror.New(apperror.ErrorCodeDuplicateReview, "you already reviewed this order", nil)
	}
	if err := s.sessions.SetPending(ctx, actor, session.PendingAction{Kind: session.ActionAddReview, RoomID: roomID}); err != nil {
		return model.HistoryItem{}, apperror.Internal("failed to start review", err)
	}
	return o.Entry, nil
}

func (s *Service) SubmitReview(ctx context.Context, actor, roomID int64, text string) (model.ReviewItem, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ReviewItem{}, apperror.Validation("review must not be empty")
	}

	var review model.ReviewItem
	err := s.rooms.With(roomID, func() error {
		o, err := s.order(ctx, actor, roomID)
		if err != nil {
			return err
		}
		if o.HasReview {
			return apperror.New(apperror.ErrorCodeDuplicateReview, "you already reviewed this order", nil)
		}

		reviewID, err := s.repo.NextID(ctx, model.ReviewSequence)
		if err != nil {
			return apperror.Internal("failed to allocate review id", err)
		}
		review = model.ReviewItem{
			ReviewID:  reviewID,
			UserID:    actor,
			RoomID:    roomID,
			Text:      text,
			CreatedAt: model.Timestamp(s.now()),
		}
		if err := s.repo.CreateReview(ctx, review); err != nil {
			return apperror.Internal("failed to save review", err)
		}
		return nil
	})
	if err != nil {
		return model.ReviewItem{}, err
	}
	s.log.Info().Int64("room_id", roomID).Int64("review_id", review.ReviewID).Msg("review added")
	return review, nil
}

func (s *Service) Reviews(ctx context.Context, actor int64) ([]model.ReviewItem, error) {
	if err := s.members.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	reviews, err := s.repo.ListReviews(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to list reviews", err)
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].ReviewID > reviews[j].ReviewID })
	return reviews, nil
}
