package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThomasGodWeb/WorkBot/internal/database"
	"github.com/ThomasGodWeb/WorkBot/internal/model"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type DynamoStore struct {
	db *database.Database
}

func NewDynamoStore(db *database.Database) *DynamoStore {
	return &DynamoStore{db: db}
}

// DynamoTables lists the tables and indexes DynamoStore reads and writes.
func DynamoTables(db *database.Database) []database.TableSpec {
	n, s := types.ScalarAttributeTypeN, types.ScalarAttributeTypeS
	byRoom := database.IndexSpec{Name: model.ByRoomIndex, Key: "roomId", KeyType: n}
	byUser := database.IndexSpec{Name: model.ByUserIndex, Key: "userId", KeyType: n}
	return []database.TableSpec{
		{Name: db.Table(model.UsersTable), Key: "userId", KeyType: n},
		{Name: db.Table(model.RoomsTable), Key: "roomId", KeyType: n},
		{Name: db.Table(model.RoomAccessTable), Key: "pk", KeyType: s, Indexes: []database.IndexSpec{byRoom, byUser}},
		{Name: db.Table(model.MessagesTable), Key: "pk", KeyType: s, Indexes: []database.IndexSpec{byRoom}},
		{Name: db.Table(model.ThreadsTable), Key: "userId", KeyType: n},
		{Name: db.Table(model.ThreadMessageTable), Key: "pk", KeyType: s, Indexes: []database.IndexSpec{byUser}},
		{Name: db.Table(model.CustomersTable), Key: "userId", KeyType: n},
		{Name: db.Table(model.NotificationsTable), Key: "pk", KeyType: s, Indexes: []database.IndexSpec{byRoom}},
		{Name: db.Table(model.ReviewsTable), Key: "reviewId", KeyType: n, Indexes: []database.IndexSpec{byRoom}},
		{Name: db.Table(model.HistoryTable), Key: "historyId", KeyType: n, Indexes: []database.IndexSpec{byRoom}},
		{Name: db.Table(model.CountersTable), Key: "name", KeyType: s},
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrItemNotFound)
}

func (r *DynamoStore) table(name string) string {
	return r.db.Table(name)
}

func (r *DynamoStore) get(ctx context.Context, table, keyName string, key types.AttributeValue, out interface{}) error {
	err := r.db.Client.GetItem(ctx, r.table(table), map[string]types.AttributeValue{keyName: key}, out)
	if err != nil {
		if isNotFound(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r *DynamoStore) queryByRoom(ctx context.Context, table string, roomID int64) ([]map[string]types.AttributeValue, error) {
	return r.db.Client.QueryAll(
		ctx,
		r.table(table),
		aws.String(model.ByRoomIndex),
		"roomId = :roomId",
		nil,
		map[string]types.AttributeValue{":roomId": database.AttrInt(roomID)},
		nil,
	)
}

func (r *DynamoStore) queryByUser(ctx context.Context, table string, userID int64) ([]map[string]types.AttributeValue, error) {
	return r.db.Client.QueryAll(
		ctx,
		r.table(table),
		aws.String(model.ByUserIndex),
		"userId = :userId",
		nil,
		map[string]types.AttributeValue{":userId": database.AttrInt(userID)},
		nil,
	)
}

func (r *DynamoStore) NextID(ctx context.Context, sequence string) (int64, error) {
	return r.db.Client.NextSequence(ctx, r.table(model.CountersTable), sequence)
}

func (r *DynamoStore) GetUser(ctx context.Context, userID int64) (model.UserItem, error) {
	var user model.UserItem
	if err := r.get(ctx, model.UsersTable, "userId", database.AttrInt(userID), &user); err != nil {
		return model.UserItem{}, err
	}
	return user, nil
}

func (r *DynamoStore) PutUser(ctx context.Context, user model.UserItem) error {
	return r.db.Client.PutItem(ctx, r.table(model.UsersTable), user)
}

func (r *DynamoStore) SetRole(ctx context.Context, userID int64, role model.Role, now string) error {
	return r.db.Client.UpdateItem(
		ctx,
		r.table(model.UsersTable),
		map[string]types.AttributeValue{"userId": database.AttrInt(userID)},
		"SET #role = :role, createdAt = if_not_exists(createdAt, :now)",
		"",
		map[string]types.AttributeValue{
			":role": database.AttrString(string(role)),
			":now":  database.AttrString(now),
		},
		map[string]string{"#role": "role"},
		nil,
	)
}

func (r *DynamoStore) ListUsersByRole(ctx context.Context, role model.Role) ([]model.UserItem, error) {
	items, err := r.db.Client.ScanAll(ctx, r.table(model.UsersTable))
	if err != nil {
		return nil, err
	}
	var all []model.UserItem
	if err := attributevalue.UnmarshalListOfMaps(items, &all); err != nil {
		return nil, fmt.Errorf("unmarshal users: %w", err)
	}
	users := make([]model.UserItem, 0)
	for _, u := range all {
		if u.Role == role {
			users = append(users, u)
		}
	}
	return users, nil
}

func (r *DynamoStore) CreateRoom(ctx context.Context, room model.RoomItem, grants []model.AccessItem) error {
	roomAV, err := attributevalue.MarshalMap(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(r.table(model.RoomsTable)),
			Item:                roomAV,
			ConditionExpression: aws.String("attribute_not_exists(roomId)"),
		},
	}}
	for _, g := range grants {
		av, err := attributevalue.MarshalMap(g)
		if err != nil {
			return fmt.Errorf("marshal access: %w", err)
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{TableName: aws.String(r.table(model.RoomAccessTable)), Item: av},
		})
	}

	if err := r.db.Client.TransactWrite(ctx, items); err != nil {
		if errors.Is(err, database.ErrConditionFailed) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *DynamoStore) GetRoom(ctx context.Context, roomID int64) (model.RoomItem, error) {
	var room model.RoomItem
	if err := r.get(ctx, model.RoomsTable, "roomId", database.AttrInt(roomID), &room); err != nil {
		return model.RoomItem{}, err
	}
	return room, nil
}

func (r *DynamoStore) ListRooms(ctx context.Context) ([]model.RoomItem, error) {
	items, err := r.db.Client.ScanAll(ctx, r.table(model.RoomsTable))
	if err != nil {
		return nil, err
	}
	rooms := make([]model.RoomItem, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &rooms); err != nil {
		return nil, fmt.Errorf("unmarshal rooms: %w", err)
	}
	sortRooms(rooms)
	return rooms, nil
}

func (r *DynamoStore) RenameRoom(ctx context.Context, roomID int64, name string) error {
	err := r.db.Client.UpdateItem(
		ctx,
		r.table(model.RoomsTable),
		map[string]types.AttributeValue{"roomId": database.AttrInt(roomID)},
		"SET #name = :name",
		"attribute_exists(roomId)",
		map[string]types.AttributeValue{":name": database.AttrString(name)},
		map[string]string{"#name": "name"},
		nil,
	)
	if errors.Is(err, database.ErrConditionFailed) {
		return ErrNotFound
	}
	return err
}

func (r *DynamoStore) DeleteRoom(ctx context.Context, roomID int64) error {
	cascade := []string{model.RoomAccessTable, model.MessagesTable, model.NotificationsTable}
	for _, table := range cascade {
		items, err := r.queryByRoom(ctx, table, roomID)
		if err != nil {
			return err
		}
		keys := make([]map[string]types.AttributeValue, 0, len(items))
		for _, item := range items {
			keys = append(keys, map[string]types.AttributeValue{"pk": item["pk"]})
		}
		if err := r.db.Client.BatchDeleteItems(ctx, r.table(table), keys); err != nil {
			return err
		}
	}

	return r.db.Client.DeleteItem(ctx, r.table(model.RoomsTable), map[string]types.AttributeValue{
		"roomId": database.AttrInt(roomID),
	})
}

func (r *DynamoStore) PutAccess(ctx context.Context, access model.AccessItem) error {
	return r.db.Client.PutItem(ctx, r.table(model.RoomAccessTable), access)
}

func (r *DynamoStore) GetAccess(ctx context.Context, roomID, userID int64) (model.AccessItem, error) {
	var access model.AccessItem
	if err := r.get(ctx, model.RoomAccessTable, "pk", database.AttrString(model.PairPK(roomID, userID)), &access); err != nil {
		return model.AccessItem{}, err
	}
	return access, nil
}

func (r *DynamoStore) DeleteAccess(ctx context.Context, roomID, userID int64) error {
	return r.db.Client.DeleteItem(ctx, r.table(model.RoomAccessTable), map[string]types.AttributeValue{
		"pk": database.AttrString(model.PairPK(roomID, userID)),
	})
}

func (r *DynamoStore) ListAccessByRoom(ctx context.Context, roomID int64) ([]model.AccessItem, error) {
	items, err := r.queryByRoom(ctx, model.RoomAccessTable, roomID)
	if err != nil {
		return nil, err
	}
	access := make([]model.AccessItem, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &access); err != nil {
		return nil, fmt.Errorf("unmarshal access: %w", err)
	}
	return access, nil
}

func (r *DynamoStore) ListAccessByUser(ctx context.Context, userID int64) ([]model.AccessItem, error) {
	items, err := r.queryByUser(ctx, model.RoomAccessTable, userID)
	if err != nil {
		return nil, err
	}
	access := make([]model.AccessItem, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &access); err != nil {
		return nil, fmt.Errorf("unmarshal access: %w", err)
	}
	return access, nil
}

func (r *DynamoStore) AppendMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.Client.PutItem(ctx, r.table(model.MessagesTable), message)
}

func (r *DynamoStore) ListMessages(ctx context.Context, roomID int64, limit int) ([]model.MessageItem, error) {
	items, err := r.queryByRoom(ctx, model.MessagesTable, roomID)
	if err != nil {
		return nil, err
	}
	messages := make([]model.MessageItem, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return sortMessages(messages, limit), nil
}

func (r *DynamoStore) GetOrCreateThread(ctx context.Context, userID int64, now string) (model.ThreadItem, error) {
	thread := model.ThreadItem{UserID: userID, CreatedAt: now, LastMessageAt: now}
	err := r.db.Client.PutItemIf(ctx, r.table(model.ThreadsTable), thread, "attribute_not_exists(userId)", nil, nil)
	if err == nil {
		return thread, nil
	}
	if !errors.Is(err, database.ErrConditionFailed) {
		return model.ThreadItem{}, err
	}
	return r.GetThread(ctx, userID)
}

func (r *DynamoStore) GetThread(ctx context.Context, userID int64) (model.ThreadItem, error) {
	var thread model.ThreadItem
	if err := r.get(ctx, model.ThreadsTable, "userId", database.AttrInt(userID), &thread); err != nil {
		return model.ThreadItem{}, err
	}
	return thread, nil
}

func (r *DynamoStore) AppendThreadMessage(ctx context.Context, message model.ThreadMessageItem, bumpUnread bool) error {
	av, err := attributevalue.MarshalMap(message)
	if err != nil {
		return fmt.Errorf("marshal thread message: %w", err)
	}

	increment := int64(0)
	if bumpUnread {
		increment = 1
	}
	items := []types.TransactWriteItem{
		{Put: &types.Put{TableName: aws.String(r.table(model.ThreadMessageTable)), Item: av}},
		{Update: &types.Update{
			TableName:           aws.String(r.table(model.ThreadsTable)),
			Key:                 map[string]types.AttributeValue{"userId": database.AttrInt(message.UserID)},
			UpdateExpression:    aws.String("SET lastMessageAt = :ts ADD unreadCount :inc"),
			ConditionExpression: aws.String("attribute_exists(userId)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":ts":  database.AttrString(message.CreatedAt),
				":inc": database.AttrInt(increment),
			},
		}},
	}

	if err := r.db.Client.TransactWrite(ctx, items); err != nil {
		if errors.Is(err, database.ErrConditionFailed) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (r *DynamoStore) MarkThreadRead(ctx context.Context, userID int64) error {
	err := r.db.Client.UpdateItem(
		ctx,
		r.table(model.ThreadsTable),
		map[string]types.AttributeValue{"userId": database.AttrInt(userID)},
		"SET unreadCount = :zero",
		"attribute_exists(userId)",
		map[string]types.AttributeValue{":zero": database.AttrInt(0)},
		nil,
		nil,
	)
	if errors.Is(err, database.ErrConditionFailed) {
		return ErrNotFound
	}
	return err
}

func (r *DynamoStore) ListThreads(ctx context.Context) ([]model.ThreadItem, error) {
	items, err := r.db.Client.ScanAll(ctx, r.table(model.ThreadsTable))
	if err != nil {
		return nil, err
	}
	threads := make([]model.ThreadItem, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &threads); err != nil {
		return nil, fmt.Errorf("unmarshal threads: %w", err)
	}
	sortThreads(threads)
	return threads, nil
}

func (r *DynamoStore) ListThreadMessages(ctx context.Context, userID int64, limit int) ([]model.ThreadMessageItem, error) {
	items, err := r.queryByUser(ctx, model.ThreadMessageTable, userID)
	if err != nil {
		return nil, err
	}
	messages := make([]model.ThreadMessageItem, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &messages); err != nil {
		return nil, fmt.Errorf("unmarshal thread messages: %w", err)
	}
	return sortThreadMessages(messages, limit), nil
}

func (r *DynamoStore) GetNotification(ctx context.Context, userID, roomID int64) (bool, error) {
	var item model.NotificationItem
	err := r.get(ctx, model.NotificationsTable, "pk", database.AttrString(model.PairPK(userID, roomID)), &item)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return true, nil
		}
		return false, err
	}
	return item.Enabled, nil
}

func (r *DynamoStore) SetNotification(ctx context.Context, userID, roomID int64, enabled bool) error {
	return r.db.Client.PutItem(ctx, r.table(model.NotificationsTable), model.NotificationItem{
		PK:      model.PairPK(userID, roomID),
		UserID:  userID,
		RoomID:  roomID,
		Enabled: enabled,
	})
}

func (r *DynamoStore) UpsertCustomer(ctx context.Context, userID int64, now string) error {
	return r.db.Client.UpdateItem(
		ctx,
		r.table(model.CustomersTable),
		map[string]types.AttributeValue{"userId": database.AttrInt(userID)},
		"SET updatedAt = :now, createdAt = if_not_exists(createdAt, :now)",
		"",
		map[string]types.AttributeValue{":now": database.AttrString(now)},
		nil,
		nil,
	)
}

func (r *DynamoStore) UpdateCustomerNotes(ctx context.Context, userID int64, notes, now string) error {
	return r.db.Client.UpdateItem(
		ctx,
		r.table(model.CustomersTable),
		map[string]types.AttributeValue{"userId": database.AttrInt(userID)},
		"SET notes = :notes, updatedAt = :now, createdAt = if_not_exists(createdAt, :now)",
		"",
		map[string]types.AttributeValue{
			":notes": database.AttrString(notes),
			":now":   database.AttrString(now),
		},
		nil,
		nil,
	)
}

func (r *DynamoStore) RemoveCustomer(ctx context.Context, userID int64) error {
	return r.db.Client.DeleteItem(ctx, r.table(model.CustomersTable), map[string]types.AttributeValue{
		"userId": database.AttrInt(userID),
	})
}

func (r *DynamoStore) GetCustomer(ctx context.Context, userID int64) (model.CustomerItem, error) {
	var customer model.CustomerItem
	if err := r.get(ctx, model.CustomersTable, "userId", database.AttrInt(userID), &customer); err != nil {
		return model.CustomerItem{}, err
	}
	return customer, nil
}

func (r *DynamoStore) ListCustomers(ctx context.Context) ([]model.CustomerItem, error) {
	items, err := r.db.Client.ScanAll(ctx, r.table(model.CustomersTable))
	if err != nil {
		return nil, err
	}
	customers := make([]model.CustomerItem, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &customers); err != nil {
		return nil, fmt.Errorf("unmarshal customers: %w", err)
	}
	return customers, nil
}

func (r *DynamoStore) CreateReview(ctx context.Context, review model.ReviewItem) error {
	return r.db.Client.PutItem(ctx, r.table(model.ReviewsTable), review)
}

func (r *DynamoStore) FindReview(ctx context.Context, roomID, userID int64) (model.ReviewItem, error) {
	items, err := r.db.Client.QueryAll(
		ctx,
		r.table(model.ReviewsTable),
		aws.String(model.ByRoomIndex),
		"roomId = :roomId",
		aws.String("userId = :userId"),
		map[string]types.AttributeValue{
			":roomId": database.AttrInt(roomID),
			":userId": database.AttrInt(userID),
		},
		nil,
	)
	if err != nil {
		return model.ReviewItem{}, err
	}
	if len(items) == 0 {
		return model.ReviewItem{}, ErrNotFound
	}
	var review model.ReviewItem
	if err := attributevalue.UnmarshalMap(items[0], &review); err != nil {
		return model.ReviewItem{}, fmt.Errorf("unmarshal review: %w", err)
	}
	return review, nil
}

func (r *DynamoStore) ListReviews(ctx context.Context) ([]model.ReviewItem, error) {
	items, err := r.db.Client.ScanAll(ctx, r.table(model.ReviewsTable))
	if err != nil {
		return nil, err
	}
	reviews := make([]model.ReviewItem, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &reviews); err != nil {
		return nil, fmt.Errorf("unmarshal reviews: %w", err)
	}
	return reviews, nil
}

func (r *DynamoStore) ArchiveRoom(ctx context.Context, entry model.HistoryItem) error {
	if _, err := r.GetRoom(ctx, entry.RoomID); err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(entry)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	items := []types.TransactWriteItem{
		{Put: &types.Put{
			TableName:           aws.String(r.table(model.HistoryTable)),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(historyId)"),
		}},
		{Update: &types.Update{
			TableName:           aws.String(r.table(model.RoomsTable)),
			Key:                 map[string]types.AttributeValue{"roomId": database.AttrInt(entry.RoomID)},
			UpdateExpression:    aws.String("SET #status = :closed"),
			ConditionExpression: aws.String("#status = :active"),
			ExpressionAttributeNames: map[string]string{
				"#status": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":closed": database.AttrString(string(model.RoomStatusClosed)),
				":active": database.AttrString(string(model.RoomStatusActive)),
			},
		}},
	}

	if err := r.db.Client.TransactWrite(ctx, items); err != nil {
		if errors.Is(err, database.ErrConditionFailed) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *DynamoStore) GetHistory(ctx context.Context, historyID int64) (model.HistoryItem, error) {
	var entry model.HistoryItem
	if err := r.get(ctx, model.HistoryTable, "historyId", database.AttrInt(historyID), &entry); err != nil {
		return model.HistoryItem{}, err
	}
	return entry, nil
}

func (r *DynamoStore) GetHistoryByRoom(ctx context.Context, roomID int64) (model.HistoryItem, error) {
	items, err := r.queryByRoom(ctx, model.HistoryTable, roomID)
	if err != nil {
		return model.HistoryItem{}, err
	}
	if len(items) == 0 {
		return model.HistoryItem{}, ErrNotFound
	}
	var entry model.HistoryItem
	if err := attributevalue.UnmarshalMap(items[0], &entry); err != nil {
		return model.HistoryItem{}, fmt.Errorf("unmarshal history: %w", err)
	}
	return entry, nil
}

func (r *DynamoStore) ListHistory(ctx context.Context) ([]model.HistoryItem, error) {
	items, err := r.db.Client.ScanAll(ctx, r.table(model.HistoryTable))
	if err != nil {
		return nil, err
	}
	entries := make([]model.HistoryItem, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	sortHistory(entries)
	return entries, nil
}

func (r *DynamoStore) PurgeHistory(ctx context.Context, historyID int64) error {
	entry, err := r.GetHistory(ctx, historyID)
	if err != nil {
		return err
	}
	// the entry goes last so a failed purge can be retried from history
	if err := r.DeleteRoom(ctx, entry.RoomID); err != nil {
		return err
	}
	return r.db.Client.DeleteItem(ctx, r.table(model.HistoryTable), map[string]types.AttributeValue{
		"historyId": database.AttrInt(historyID),
	})
}
