package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/model"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: conflict")
)

// Store is the persistence collaborator shared by the services. Every call is
// durable on return.
type Store interface {
	NextID(ctx context.Context, sequence string) (int64, error)

	GetUser(ctx context.Context, userID int64) (model.UserItem, error)
	PutUser(ctx context.Context, user model.UserItem) error
	SetRole(ctx context.Context, userID int64, role model.Role, now string) error
	ListUsersByRole(ctx context.Context, role model.Role) ([]model.UserItem, error)

	CreateRoom(ctx context.Context, room model.RoomItem, grants []model.AccessItem) error
	GetRoom(ctx context.Context, roomID int64) (model.RoomItem, error)
	ListRooms(ctx context.Context) ([]model.RoomItem, error)
	RenameRoom(ctx context.Context, roomID int64, name string) error
	DeleteRoom(ctx context.Context, roomID int64) error

	PutAccess(ctx context.Context, access model.AccessItem) error
	GetAccess(ctx context.Context, roomID, userID int64) (model.AccessItem, error)
	DeleteAccess(ctx context.Context, roomID, userID int64) error
	ListAccessByRoom(ctx context.Context, roomID int64) ([]model.AccessItem, error)
	ListAccessByUser(ctx context.Context, userID int64) ([]model.AccessItem, error)

	AppendMessage(ctx context.Context, message model.MessageItem) error
	ListMessages(ctx context.Context, roomID int64, limit int) ([]model.MessageItem, error)

	GetOrCreateThread(ctx context.Context, userID int64, now string) (model.ThreadItem, error)
	GetThread(ctx context.Context, userID int64) (model.ThreadItem, error)
	AppendThreadMessage(ctx context.Context, message model.ThreadMessageItem, bumpUnread bool) error
	MarkThreadRead(ctx context.Context, userID int64) error
	ListThreads(ctx context.Context) ([]model.ThreadItem, error)
	ListThreadMessages(ctx context.Context, userID int64, limit int) ([]model.ThreadMessageItem, error)

	GetNotification(ctx context.Context, userID, roomID int64) (bool, error)
	SetNotification(ctx context.Context, userID, roomID int64, enabled bool) error

	UpsertCustomer(ctx context.Context, userID int64, now string) error
	UpdateCustomerNotes(ctx context.Context, userID int64, notes, now string) error
	RemoveCustomer(ctx context.Context, userID int64) error
	GetCustomer(ctx context.Context, userID int64) (model.CustomerItem, error)
	ListCustomers(ctx context.Context) ([]model.CustomerItem, error)

	CreateReview(ctx context.Context, review model.ReviewItem) error
	FindReview(ctx context.Context, roomID, userID int64) (model.ReviewItem, error)
	ListReviews(ctx context.Context) ([]model.ReviewItem, error)

	// ArchiveRoom stores the history entry and flips the room to closed as one
	// write. ErrConflict means the room was not active.
	ArchiveRoom(ctx context.Context, entry model.HistoryItem) error
	GetHistory(ctx context.Context, historyID int64) (model.HistoryItem, error)
	GetHistoryByRoom(ctx context.Context, roomID int64) (model.HistoryItem, error)
	ListHistory(ctx context.Context) ([]model.HistoryItem, error)
	// PurgeHistory removes the entry and every row of its room.
	PurgeHistory(ctx context.Context, historyID int64) error
}

func parseTime(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}
	}
	return t
}

func sortRooms(rooms []model.RoomItem) {
	sort.SliceStable(rooms, func(i, j int) bool {
		return rooms[i].RoomID > rooms[j].RoomID
	})
}

func sortMessages(messages []model.MessageItem, limit int) []model.MessageItem {
	sort.SliceStable(messages, func(i, j int) bool {
		return parseTime(messages[i].CreatedAt).Before(parseTime(messages[j].CreatedAt))
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}

func sortThreadMessages(messages []model.ThreadMessageItem, limit int) []model.ThreadMessageItem {
	sort.SliceStable(messages, func(i, j int) bool {
		return parseTime(messages[i].CreatedAt).Before(parseTime(messages[j].CreatedAt))
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages
}

func sortThreads(threads []model.ThreadItem) {
	sort.SliceStable(threads, func(i, j int) bool {
		return parseTime(threads[i].LastMessageAt).After(parseTime(threads[j].LastMessageAt))
	})
}

func sortHistory(entries []model.HistoryItem) {
	sort.SliceStable(entries, func(i, j int) bool {
		return parseTime(entries[i].ClosedAt).After(parseTime(entries[j].ClosedAt))
	})
}
