package lifecycle

import (
	"context"

	"github.com/ThomasGodWeb/WorkBot/internal/model"
)

type Repository interface {
	NextID(ctx context.Context, sequence string) (int64, error)

	GetRoom(ctx context.Context, roomID int64) (model.RoomItem, error)
	DeleteRoom(ctx context.Context, roomID int64) error
	ListAccessByRoom(ctx context.Context, roomID int64) ([]model.AccessItem, error)

	ArchiveRoom(ctx context.Context, entry model.HistoryItem) error
	GetHistory(ctx context.Context, historyID int64) (model.HistoryItem, error)
	GetHistoryByRoom(ctx context.Context, roomID int64) (model.HistoryItem, error)
	ListHistory(ctx context.Context) ([]model.HistoryItem, error)
	PurgeHistory(ctx context.Context, historyID int64) error

	CreateReview(ctx context.Context, review model.ReviewItem) error
	FindReview(ctx context.Context, roomID, userID int64) (model.ReviewItem, error)
	ListReviews(ctx context.Context) ([]model.ReviewItem, error)
}
