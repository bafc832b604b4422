package membership

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/session"
	"github.com/ThomasGodWeb/WorkBot/internal/store"

	"github.com/rs/zerolog"
)

// KindAdmin marks a room an admin sees without holding a membership row.
const KindAdmin = "admin"

type Profile struct {
	UserID   int64
	Username string
	FullName string
}

type RoomView struct {
	Room model.RoomItem
	Kind string
}

type NotificationView struct {
	Room    model.RoomItem
	Enabled bool
}

type Service struct {
	repo     Repository
	sessions session.Store
	admins   map[int64]struct{}
	log      zerolog.Logger
	now      func() time.Time
}

func New(repo Repository, sessions session.Store, adminIDs []int64, log zerolog.Logger) *Service {
	return NewWithClock(repo, sessions, adminIDs, log, time.Now)
}

func NewWithClock(repo Repository, sessions session.Store, adminIDs []int64, log zerolog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &Service{
		repo:     repo,
		sessions: sessions,
		admins:   admins,
		log:      log.With().Str("service", "membership").Logger(),
		now:      now,
	}
}

func (s *Service) stamp() string {
	return model.Timestamp(s.now())
}

// StaticAdmins returns the configured admin ids in ascending order.
func (s *Service) StaticAdmins() []int64 {
	ids := make([]int64, 0, len(s.admins))
	for id := range s.admins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Service) IsStaticAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

func (s *Service) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if s.IsStaticAdmin(userID) {
		return true, nil
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, apperror.Internal("failed to load user", err)
	}
	return user.Role == model.RoleAdmin, nil
}

func (s *Service) RequireAdmin(ctx context.Context, actor int64) error {
	ok, err := s.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Forbidden("only administrators can do this")
	}
	return nil
}

// Role reports the stored role, or the default for an unknown user.
func (s *Service) Role(ctx context.Context, userID int64) (model.Role, error) {
	if s.IsStaticAdmin(userID) {
		return model.RoleAdmin, nil
	}
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.RoleUser, nil
		}
		return "", apperror.Internal("failed to load user", err)
	}
	return user.Role, nil
}

// EnsureUser creates the user on first contact and refreshes names later.
func (s *Service) EnsureUser(ctx context.Context, p Profile) (model.UserItem, error) {
	user, err := s.repo.GetUser(ctx, p.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return model.UserItem{}, apperror.Internal("failed to load user", err)
	}

	if errors.Is(err, store.ErrNotFound) {
		role := model.RoleUser
		if s.IsStaticAdmin(p.UserID) {
			role = model.RoleAdmin
		}
		user = model.UserItem{
			UserID:    p.UserID,
			Username:  p.Username,
			FullName:  p.FullName,
			Role:      role,
			CreatedAt: s.stamp(),
		}
		if err := s.repo.PutUser(ctx, user); err != nil {
			return model.UserItem{}, apperror.Internal("failed to create user", err)
		}
		s.log.Info().Int64("user_id", p.UserID).Str("role", string(role)).Msg("user registered")
		return user, nil
	}

	changed := false
	if p.Username != "" && p.Username != user.Username {
		user.Username = p.Username
		changed = true
	}
	if p.FullName != "" && p.FullName != user.FullName {
		user.FullName = p.FullName
		changed = true
	}
	if s.IsStaticAdmin(p.UserID) && user.Role != model.RoleAdmin {
		user.Role = model.RoleAdmin
		changed = true
	}
	if changed {
		if err := s.repo.PutUser(ctx, user); err != nil {
			return model.UserItem{}, apperror.Internal("failed to update user", err)
		}
	}
	return user, nil
}

func (s *Service) CreateRoom(ctx context.Context, actor int64, name string, customerID int64) (model.RoomItem, error) {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return model.RoomItem{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.RoomItem{}, apperror.Validation("room name is required")
	}
	if customerID < 0 {
		return model.RoomItem{}, apperror.Validation("customer id is malformed")
	}

	roomID, err := s.repo.NextID(ctx, model.RoomSequence)
	if err != nil {
		return model.RoomItem{}, apperror.Internal("failed to allocate room id", err)
	}

	now := s.stamp()
	room := model.RoomItem{
		RoomID:     roomID,
		Name:       name,
		CustomerID: customerID,
		CreatedBy:  actor,
		Status:     model.RoomStatusActive,
		CreatedAt:  now,
	}
	grants := []model.AccessItem{accessItem(roomID, actor, model.AccessDeveloper, now)}
	if customerID != 0 {
		if customerID == actor {
			grants = nil
		}
		grants = append(grants, accessItem(roomID, customerID, model.AccessCustomer, now))
	}

	if err := s.repo.CreateRoom(ctx, room, grants); err != nil {
		return model.RoomItem{}, apperror.Internal("failed to create room", err)
	}
	if customerID != 0 {
		if err := s.cascadeKind(ctx, customerID, model.AccessCustomer); err != nil {
			return room, err
		}
	}

	s.log.Info().Int64("room_id", roomID).Int64("actor_id", actor).Int64("customer_id", customerID).Msg("room created")
	return room, nil
}

func accessItem(roomID, userID int64, kind model.AccessKind, now string) model.AccessItem {
	return model.AccessItem{
		PK:        model.PairPK(roomID, userID),
		RoomID:    roomID,
		UserID:    userID,
		Kind:      kind,
		GrantedAt: now,
	}
}

// cascadeKind keeps the user's global role in line with a membership kind.
// A customer grant demotes anyone but a configured admin. A developer grant
// leaves admins as they are.
func (s *Service) cascadeKind(ctx context.Context, userID int64, kind model.AccessKind) error {
	now := s.stamp()

	switch kind {
	case model.AccessCustomer:
		if !s.IsStaticAdmin(userID) {
			if err := s.repo.SetRole(ctx, userID, model.RoleCustomer, now); err != nil {
				return apperror.Internal("failed to set role", err)
			}
		}
		if err := s.repo.UpsertCustomer(ctx, userID, now); err != nil {
			return apperror.Internal("failed to upsert customer", err)
		}
	case model.AccessDeveloper:
		isAdmin, err := s.IsAdmin(ctx, userID)
		if err != nil {
			return err
		}
		if !isAdmin {
			if err := s.repo.SetRole(ctx, userID, model.RoleDeveloper, now); err != nil {
				return apperror.Internal("failed to set role", err)
			}
		}
		if err := s.repo.RemoveCustomer(ctx, userID); err != nil {
			return apperror.Internal("failed to remove customer", err)
		}
	}
	return nil
}

func (s *Service) Room(ctx context.Context, roomID int64) (model.RoomItem, error) {
	room, err := s.repo.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.RoomItem{}, apperror.NotFound("room not found", err)
		}
		return model.RoomItem{}, apperror.Internal("failed to load room", err)
	}
	return room, nil
}

// Grant upserts the membership, overwriting the kind of an existing member.
func (s *Service) Grant(ctx context.Context, actor, roomID, userID int64, kind model.AccessKind) (model.RoomItem, error) {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return model.RoomItem{}, err
	}
	if userID <= 0 {
		return model.RoomItem{}, apperror.Validation("user id is malformed")
	}
	if !kind.Valid() {
		return model.RoomItem{}, apperror.Validation("access kind must be customer or developer")
	}
	room, err := s.Room(ctx, roomID)
	if err != nil {
		return model.RoomItem{}, err
	}

	grantedAt := s.stamp()
	if existing, err := s.repo.GetAccess(ctx, roomID, userID); err == nil {
		grantedAt = existing.GrantedAt
	} else if !errors.Is(err, store.ErrNotFound) {
		return model.RoomItem{}, apperror.Internal("failed to load access", err)
	}

	if err := s.repo.PutAccess(ctx, accessItem(roomID, userID, kind, grantedAt)); err != nil {
		return model.RoomItem{}, apperror.Internal("failed to grant access", err)
	}
	if err := s.cascadeKind(ctx, userID, kind); err != nil {
		return room, err
	}

	s.log.Info().Int64("room_id", roomID).Int64("user_id", userID).Str("kind", string(kind)).Msg("access granted")
	return room, nil
}

// ChangeKind is Grant restricted to existing members.
func (s *Service) ChangeKind(ctx context.Context, actor, roomID, userID int64, kind model.AccessKind) (model.RoomItem, error) {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return model.RoomItem{}, err
	}
	if _, err := s.Access(ctx, roomID, userID); err != nil {
		return model.RoomItem{}, err
	}
	return s.Grant(ctx, actor, roomID, userID, kind)
}

func (s *Service) Revoke(ctx context.Context, actor, roomID, userID int64) (model.RoomItem, error) {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return model.RoomItem{}, err
	}
	if userID <= 0 {
		return model.RoomItem{}, apperror.Validation("user id is malformed")
	}
	room, err := s.Room(ctx, roomID)
	if err != nil {
		return model.RoomItem{}, err
	}
	if err := s.repo.DeleteAccess(ctx, roomID, userID); err != nil {
		return model.RoomItem{}, apperror.Internal("failed to revoke access", err)
	}

	_, err = s.sessions.Update(ctx, userID, func(st *session.State) error {
		if st.ActiveRoom == roomID {
			st.ActiveRoom = 0
		}
		return nil
	})
	if err != nil {
		return room, apperror.Internal("failed to clear active room", err)
	}

	s.log.Info().Int64("room_id", roomID).Int64("user_id", userID).Msg("access revoked")
	return room, nil
}

func (s *Service) Rename(ctx context.Context, actor, roomID int64, name string) (model.RoomItem, error) {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return model.RoomItem{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.RoomItem{}, apperror.Validation("room name is required")
	}
	if err := s.repo.RenameRoom(ctx, roomID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.RoomItem{}, apperror.NotFound("room not found", err)
		}
		return model.RoomItem{}, apperror.Internal("failed to rename room", err)
	}
	return s.Room(ctx, roomID)
}

func (s *Service) Access(ctx context.Context, roomID, userID int64) (model.AccessItem, error) {
	access, err := s.repo.GetAccess(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.AccessItem{}, apperror.NotFound("no access to this room", err)
		}
		return model.AccessItem{}, apperror.Internal("failed to load access", err)
	}
	return access, nil
}

func (s *Service) Members(ctx context.Context, roomID int64) ([]model.AccessItem, error) {
	members, err := s.repo.ListAccessByRoom(ctx, roomID)
	if err != nil {
		return nil, apperror.Internal("failed to list members", err)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// VisibleRooms lists active rooms the user may enter. Admins see every room.
func (s *Service) VisibleRooms(ctx context.Context, userID int64) ([]RoomView, error) {
	access, err := s.repo.ListAccessByUser(ctx, userID)
	if err != nil {
		return nil, apperror.Internal("failed to list access", err)
	}
	kinds := make(map[int64]model.AccessKind, len(access))
	for _, a := range access {
		kinds[a.RoomID] = a.Kind
	}

	isAdmin, err := s.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]RoomView, 0)
	if isAdmin {
		rooms, err := s.repo.ListRooms(ctx)
		if err != nil {
			return nil, apperror.Internal("failed to list rooms", err)
		}
		for _, room := range rooms {
			if !room.Active() {
				continue
			}
			kind := KindAdmin
			if k, ok := kinds[room.RoomID]; ok {
				kind = string(k)
			}
			views = append(views, RoomView{Room: room, Kind: kind})
		}
		return views, nil
	}

	for roomID, kind := range kinds {
		room, err := s.repo.GetRoom(ctx, roomID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, apperror.Internal("failed to load room", err)
		}
		if !room.Active() {
			continue
		}
		views = append(views, RoomView{Room: room, Kind: string(kind)})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Room.RoomID > views[j].Room.RoomID })
	return views, nil
}

func (s *Service) AllRooms(ctx context.Context, actor int64) ([]model.RoomItem, error) {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	rooms, err := s.repo.ListRooms(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to list rooms", err)
	}
	return rooms, nil
}

// SetUserRole assigns a global role; customer records follow the role.
func (s *Service) SetUserRole(ctx context.Context, actor, userID int64, role model.Role) error {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if userID <= 0 {
		return apperror.Validation("user id is malformed")
	}
	if !role.Valid() {
		return apperror.Validation("unknown role")
	}
	if s.IsStaticAdmin(userID) && role != model.RoleAdmin {
		return apperror.Forbidden("configured administrators keep their role")
	}

	now := s.stamp()
	if err := s.repo.SetRole(ctx, userID, role, now); err != nil {
		return apperror.Internal("failed to set role", err)
	}
	switch role {
	case model.RoleCustomer:
		if err := s.repo.UpsertCustomer(ctx, userID, now); err != nil {
			return apperror.Internal("failed to upsert customer", err)
		}
	case model.RoleDeveloper, model.RoleAdmin:
		if err := s.repo.RemoveCustomer(ctx, userID); err != nil {
			return apperror.Internal("failed to remove customer", err)
		}
	}

	s.log.Info().Int64("actor_id", actor).Int64("user_id", userID).Str("role", string(role)).Msg("role changed")
	return nil
}

func (s *Service) RemoveUserRole(ctx context.Context, actor, userID int64) error {
	return s.SetUserRole(ctx, actor, userID, model.RoleUser)
}

func (s *Service) SetNotification(ctx context.Context, actor, roomID int64, enabled bool) error {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if _, err := s.Room(ctx, roomID); err != nil {
		return err
	}
	if err := s.repo.SetNotification(ctx, actor, roomID, enabled); err != nil {
		return apperror.Internal("failed to save notification setting", err)
	}
	return nil
}

func (s *Service) NotificationEnabled(ctx context.Context, userID, roomID int64) (bool, error) {
	enabled, err := s.repo.GetNotification(ctx, userID, roomID)
	if err != nil {
		return false, apperror.Internal("failed to load notification setting", err)
	}
	return enabled, nil
}

func (s *Service) Notifications(ctx context.Context, actor int64) ([]NotificationView, error) {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	rooms, err := s.VisibleRooms(ctx, actor)
	if err != nil {
		return nil, err
	}
	views := make([]NotificationView, 0, len(rooms))
	for _, r := range rooms {
		enabled, err := s.NotificationEnabled(ctx, actor, r.Room.RoomID)
		if err != nil {
			return nil, err
		}
		views = append(views, NotificationView{Room: r.Room, Enabled: enabled})
	}
	return views, nil
}

func (s *Service) UpdateCustomerNotes(ctx context.Context, actor, userID int64, notes string) error {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return err
	}
	if userID <= 0 {
		return apperror.Validation("user id is malformed")
	}
	if err := s.repo.UpdateCustomerNotes(ctx, userID, strings.TrimSpace(notes), s.stamp()); err != nil {
		return apperror.Internal("failed to save notes", err)
	}
	return nil
}

func (s *Service) Customers(ctx context.Context, actor int64) ([]model.CustomerItem, error) {
	if err := s.RequireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to list customers", err)
	}
	sort.Slice(customers, func(i, j int) bool { return customers[i].UpdatedAt > customers[j].UpdatedAt })
	return customers, nil
}
