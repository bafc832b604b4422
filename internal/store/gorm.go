package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/model"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists to Postgres. Multi-row operations run in one transaction.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// OpenPostgres connects and tunes the pool.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxIdleTime(300 * time.Second)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info().Msg("postgres connection established")
	return db, nil
}

// Models lists every table GormStore touches, in migration order.
func Models() []interface{} {
	return []interface{}{
		&model.CounterItem{},
		&model.UserItem{},
		&model.RoomItem{},
		&model.AccessItem{},
		&model.MessageItem{},
		&model.ThreadItem{},
		&model.ThreadMessageItem{},
		&model.CustomerItem{},
		&model.NotificationItem{},
		&model.ReviewItem{},
		&model.HistoryItem{},
	}
}

func (r *GormStore) AutoMigrate() error {
	if err := r.db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func mapGormError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *GormStore) NextID(ctx context.Context, sequence string) (int64, error) {
	var counter model.CounterItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"seq": gorm.Expr("counters.seq + 1")}),
		}).Create(&model.CounterItem{Name: sequence, Seq: 1}).Error; err != nil {
			return err
		}
		return tx.Where("name = ?", sequence).First(&counter).Error
	})
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", sequence, err)
	}
	return counter.Seq, nil
}

func (r *GormStore) GetUser(ctx context.Context, userID int64) (model.UserItem, error) {
	var user model.UserItem
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		return model.UserItem{}, mapGormError(err)
	}
	return user, nil
}

func (r *GormStore) PutUser(ctx context.Context, user model.UserItem) error {
	return r.db.WithContext(ctx).Save(&user).Error
}

func (r *GormStore) SetRole(ctx context.Context, userID int64, role model.Role, now string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(&model.UserItem{UserID: userID, Role: role, CreatedAt: now}).Error
}

func (r *GormStore) ListUsersByRole(ctx context.Context, role model.Role) ([]model.UserItem, error) {
	users := make([]model.UserItem, 0)
	if err := r.db.WithContext(ctx).Where("role = ?", role).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (r *GormStore) CreateRoom(ctx context.Context, room model.RoomItem, grants []model.AccessItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.RoomItem{}).Where("room_id = ?", room.RoomID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrConflict
		}
		if err := tx.Create(&room).Error; err != nil {
			return err
		}
		for i := range grants {
			if err := tx.Save(&grants[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *GormStore) GetRoom(ctx context.Context, roomID int64) (model.RoomItem, error) {
	var room model.RoomItem
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error; err != nil {
		return model.RoomItem{}, mapGormError(err)
	}
	return room, nil
}

func (r *GormStore) ListRooms(ctx context.Context) ([]model.RoomItem, error) {
	rooms := make([]model.RoomItem, 0)
	if err := r.db.WithContext(ctx).Find(&rooms).Error; err != nil {
		return nil, err
	}
	sortRooms(rooms)
	return rooms, nil
}

func (r *GormStore) RenameRoom(ctx context.Context, roomID int64, name string) error {
	res := r.db.WithContext(ctx).Model(&model.RoomItem{}).Where("room_id = ?", roomID).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormStore) DeleteRoom(ctx context.Context, roomID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteRoomTx(tx, roomID)
	})
}

func deleteRoomTx(tx *gorm.DB, roomID int64) error {
	for _, m := range []interface{}{&model.AccessItem{}, &model.MessageItem{}, &model.NotificationItem{}, &model.RoomItem{}} {
		if err := tx.Where("room_id = ?", roomID).Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *GormStore) PutAccess(ctx context.Context, access model.AccessItem) error {
	return r.db.WithContext(ctx).Save(&access).Error
}

func (r *GormStore) GetAccess(ctx context.Context, roomID, userID int64) (model.AccessItem, error) {
	var access model.AccessItem
	if err := r.db.WithContext(ctx).Where("pk = ?", model.PairPK(roomID, userID)).First(&access).Error; err != nil {
		return model.AccessItem{}, mapGormError(err)
	}
	return access, nil
}

func (r *GormStore) DeleteAccess(ctx context.Context, roomID, userID int64) error {
	return r.db.WithContext(ctx).Where("pk = ?", model.PairPK(roomID, userID)).Delete(&model.AccessItem{}).Error
}

func (r *GormStore) ListAccessByRoom(ctx context.Context, roomID int64) ([]model.AccessItem, error) {
	access := make([]model.AccessItem, 0)
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&access).Error; err != nil {
		return nil, err
	}
	return access, nil
}

func (r *GormStore) ListAccessByUser(ctx context.Context, userID int64) ([]model.AccessItem, error) {
	access := make([]model.AccessItem, 0)
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&access).Error; err != nil {
		return nil, err
	}
	return access, nil
}

func (r *GormStore) AppendMessage(ctx context.Context, message model.MessageItem) error {
	return r.db.WithContext(ctx).Create(&message).Error
}

func (r *GormStore) ListMessages(ctx context.Context, roomID int64, limit int) ([]model.MessageItem, error) {
	messages := make([]model.MessageItem, 0)
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Find(&messages).Error; err != nil {
		return nil, err
	}
	return sortMessages(messages, limit), nil
}

func (r *GormStore) GetOrCreateThread(ctx context.Context, userID int64, now string) (model.ThreadItem, error) {
	thread := model.ThreadItem{UserID: userID, CreatedAt: now, LastMessageAt: now}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&thread).Error
	if err != nil {
		return model.ThreadItem{}, err
	}
	return r.GetThread(ctx, userID)
}

func (r *GormStore) GetThread(ctx context.Context, userID int64) (model.ThreadItem, error) {
	var thread model.ThreadItem
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&thread).Error; err != nil {
		return model.ThreadItem{}, mapGormError(err)
	}
	return thread, nil
}

func (r *GormStore) AppendThreadMessage(ctx context.Context, message model.ThreadMessageItem, bumpUnread bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"last_message_at": message.CreatedAt}
		if bumpUnread {
			updates["unread_count"] = gorm.Expr("unread_count + 1")
		}
		res := tx.Model(&model.ThreadItem{}).Where("user_id = ?", message.UserID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Create(&message).Error
	})
}

func (r *GormStore) MarkThreadRead(ctx context.Context, userID int64) error {
	res := r.db.WithContext(ctx).Model(&model.ThreadItem{}).Where("user_id = ?", userID).Update("unread_count", 0)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormStore) ListThreads(ctx context.Context) ([]model.ThreadItem, error) {
	threads := make([]model.ThreadItem, 0)
	if err := r.db.WithContext(ctx).Find(&threads).Error; err != nil {
		return nil, err
	}
	sortThreads(threads)
	return threads, nil
}

func (r *GormStore) ListThreadMessages(ctx context.Context, userID int64, limit int) ([]model.ThreadMessageItem, error) {
	messages := make([]model.ThreadMessageItem, 0)
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&messages).Error; err != nil {
		return nil, err
	}
	return sortThreadMessages(messages, limit), nil
}

func (r *GormStore) GetNotification(ctx context.Context, userID, roomID int64) (bool, error) {
	var item model.NotificationItem
	err := r.db.WithContext(ctx).Where("pk = ?", model.PairPK(userID, roomID)).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}
	return item.Enabled, nil
}

func (r *GormStore) SetNotification(ctx context.Context, userID, roomID int64, enabled bool) error {
	return r.db.WithContext(ctx).Save(&model.NotificationItem{
		PK:      model.PairPK(userID, roomID),
		UserID:  userID,
		RoomID:  roomID,
		Enabled: enabled,
	}).Error
}

func (r *GormStore) UpsertCustomer(ctx context.Context, userID int64, now string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(&model.CustomerItem{UserID: userID, CreatedAt: now, UpdatedAt: now}).Error
}

func (r *GormStore) UpdateCustomerNotes(ctx context.Context, userID int64, notes, now string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"notes", "updated_at"}),
	}).Create(&model.CustomerItem{UserID: userID, Notes: notes, CreatedAt: now, UpdatedAt: now}).Error
}

func (r *GormStore) RemoveCustomer(ctx context.Context, userID int64) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CustomerItem{}).Error
}

func (r *GormStore) GetCustomer(ctx context.Context, userID int64) (model.CustomerItem, error) {
	var customer model.CustomerItem
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&customer).Error; err != nil {
		return model.CustomerItem{}, mapGormError(err)
	}
	return customer, nil
}

func (r *GormStore) ListCustomers(ctx context.Context) ([]model.CustomerItem, error) {
	customers := make([]model.CustomerItem, 0)
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *GormStore) CreateReview(ctx context.Context, review model.ReviewItem) error {
	return r.db.WithContext(ctx).Create(&review).Error
}

func (r *GormStore) FindReview(ctx context.Context, roomID, userID int64) (model.ReviewItem, error) {
	var review model.ReviewItem
	err := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&review).Error
	if err != nil {
		return model.ReviewItem{}, mapGormError(err)
	}
	return review, nil
}

func (r *GormStore) ListReviews(ctx context.Context) ([]model.ReviewItem, error) {
	reviews := make([]model.ReviewItem, 0)
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&reviews).Error; err != nil {
		return nil, err
	}
	return reviews, nil
}

func (r *GormStore) ArchiveRoom(ctx context.Context, entry model.HistoryItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room model.RoomItem
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("room_id = ?", entry.RoomID).First(&room).Error
		if err != nil {
			return mapGormError(err)
		}
		if !room.Active() {
			return ErrConflict
		}
		if err := tx.Model(&model.RoomItem{}).
			Where("room_id = ?", entry.RoomID).
			Update("status", model.RoomStatusClosed).Error; err != nil {
			return err
		}
		return tx.Create(&entry).Error
	})
}

func (r *GormStore) GetHistory(ctx context.Context, historyID int64) (model.HistoryItem, error) {
	var entry model.HistoryItem
	if err := r.db.WithContext(ctx).Where("history_id = ?", historyID).First(&entry).Error; err != nil {
		return model.HistoryItem{}, mapGormError(err)
	}
	return entry, nil
}

func (r *GormStore) GetHistoryByRoom(ctx context.Context, roomID int64) (model.HistoryItem, error) {
	var entry model.HistoryItem
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).First(&entry).Error; err != nil {
		return model.HistoryItem{}, mapGormError(err)
	}
	return entry, nil
}

func (r *GormStore) ListHistory(ctx context.Context) ([]model.HistoryItem, error) {
	entries := make([]model.HistoryItem, 0)
	if err := r.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, err
	}
	sortHistory(entries)
	return entries, nil
}

func (r *GormStore) PurgeHistory(ctx context.Context, historyID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.HistoryItem
		if err := tx.Where("history_id = ?", historyID).First(&entry).Error; err != nil {
			return mapGormError(err)
		}
		if err := deleteRoomTx(tx, entry.RoomID); err != nil {
			return err
		}
		return tx.Delete(&entry).Error
	})
}
