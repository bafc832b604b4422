package membership

import (
	"context"

	"github.com/ThomasGodWeb/WorkBot/internal/model"
)

// Repository is the slice of store.Store the membership service needs.
type Repository interface {
	NextID(ctx context.Context, sequence string) (int64, error)

	GetUser(ctx context.Context, userID int64) (model.UserItem, error)
	PutUser(ctx context.Context, user model.UserItem) error
	SetRole(ctx context.Context, userID int64, role model.Role, now string) error

	CreateRoom(ctx context.Context, room model.RoomItem, grants []model.AccessItem) error
	GetRoom(ctx context.Context, roomID int64) (model.RoomItem, error)
	ListRooms(ctx context.Context) ([]model.RoomItem, error)
	RenameRoom(ctx context.Context, roomID int64, name string) error

	PutAccess(ctx context.Context, access model.AccessItem) error
	GetAccess(ctx context.Context, roomID, userID int64) (model.AccessItem, error)
	DeleteAccess(ctx context.Context, roomID, userID int64) error
	ListAccessByRoom(ctx context.Context, roomID int64) ([]model.AccessItem, error)
	ListAccessByUser(ctx context.Context, userID int64) ([]model.AccessItem, error)

	GetNotification(ctx context.Context, userID, roomID int64) (bool, error)
	SetNotification(ctx context.Context, userID, roomID int64, enabled bool) error

	UpsertCustomer(ctx context.Context, userID int64, now string) error
	UpdateCustomerNotes(ctx context.Context, userID int64, notes, now string) error
	RemoveCustomer(ctx context.Context, userID int64) error
	ListCustomers(ctx context.Context) ([]model.CustomerItem, error)
}
