package inbox

import (
	"context"

	"github.com/ThomasGodWeb/WorkBot/internal/model"
)

type Repository interface {
	GetUser(ctx context.Context, userID int64) (model.UserItem, error)
	UpsertCustomer(ctx context.Context, userID int64, now string) error

	GetOrCreateThread(ctx context.Context, userID int64, now string) (model.ThreadItem, error)
	GetThread(ctx context.Context, userID int64) (model.ThreadItem, error)
	AppendThreadMessage(ctx context.Context, message model.ThreadMessageItem, bumpUnread bool) error
	MarkThreadRead(ctx context.Context, userID int64) error
	ListThreads(ctx context.Context) ([]model.ThreadItem, error)
	ListThreadMessages(ctx context.Context, userID int64, limit int) ([]model.ThreadMessageItem, error)
}
