package relay

import (
	"context"

	"github.com/ThomasGodWeb/WorkBot/internal/model"
)

type Repository interface {
	GetRoom(ctx context.Context, roomID int64) (model.RoomItem, error)
	ListAccessByRoom(ctx context.Context, roomID int64) ([]model.AccessItem, error)
	AppendMessage(ctx context.Context, message model.MessageItem) error
	ListMessages(ctx context.Context, roomID int64, limit int) ([]model.MessageItem, error)
}
