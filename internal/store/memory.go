package store

import (
	"context"
	"sync"

	"github.com/ThomasGodWeb/WorkBot/internal/model"
)

// MemoryStore keeps everything in process. It backs tests and single-instance
// local runs.
type MemoryStore struct {
	mu             sync.Mutex
	sequences      map[string]int64
	users          map[int64]model.UserItem
	rooms          map[int64]model.RoomItem
	access         map[string]model.AccessItem
	messages       map[int64][]model.MessageItem
	threads        map[int64]model.ThreadItem
	threadMessages map[int64][]model.ThreadMessageItem
	notifications  map[string]model.NotificationItem
	customers      map[int64]model.CustomerItem
	reviews        map[int64]model.ReviewItem
	history        map[int64]model.HistoryItem
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sequences:      make(map[string]int64),
		users:          make(map[int64]model.UserItem),
		rooms:          make(map[int64]model.RoomItem),
		access:         make(map[string]model.AccessItem),
		messages:       make(map[int64][]model.MessageItem),
		threads:        make(map[int64]model.ThreadItem),
		threadMessages: make(map[int64][]model.ThreadMessageItem),
		notifications:  make(map[string]model.NotificationItem),
		customers:      make(map[int64]model.CustomerItem),
		reviews:        make(map[int64]model.ReviewItem),
		history:        make(map[int64]model.HistoryItem),
	}
}

func (m *MemoryStore) NextID(ctx context.Context, sequence string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sequences[sequence]++
	return m.sequences[sequence], nil
}

func (m *MemoryStore) GetUser(ctx context.Context, userID int64) (model.UserItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return model.UserItem{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) PutUser(ctx context.Context, user model.UserItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.UserID] = user
	return nil
}

func (m *MemoryStore) SetRole(ctx context.Context, userID int64, role model.Role, now string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		user = model.UserItem{UserID: userID, CreatedAt: now}
	}
	user.Role = role
	m.users[userID] = user
	return nil
}

func (m *MemoryStore) ListUsersByRole(ctx context.Context, role model.Role) ([]model.UserItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]model.UserItem, 0)
	for _, u := range m.users {
		if u.Role == role {
			users = append(users, u)
		}
	}
	return users, nil
}

func (m *MemoryStore) CreateRoom(ctx context.Context, room model.RoomItem, grants []model.AccessItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[room.RoomID]; exists {
		return ErrConflict
	}
	m.rooms[room.RoomID] = room
	for _, g := range grants {
		m.access[g.PK] = g
	}
	return nil
}

func (m *MemoryStore) GetRoom(ctx context.Context, roomID int64) (model.RoomItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return model.RoomItem{}, ErrNotFound
	}
	return room, nil
}

func (m *MemoryStore) ListRooms(ctx context.Context) ([]model.RoomItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rooms := make([]model.RoomItem, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	sortRooms(rooms)
	return rooms, nil
}

func (m *MemoryStore) RenameRoom(ctx context.Context, roomID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	room.Name = name
	m.rooms[roomID] = room
	return nil
}

func (m *MemoryStore) DeleteRoom(ctx context.Context, roomID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteRoomLocked(roomID)
	return nil
}

func (m *MemoryStore) deleteRoomLocked(roomID int64) {
	for pk, a := range m.access {
		if a.RoomID == roomID {
			delete(m.access, pk)
		}
	}
	for pk, n := range m.notifications {
		if n.RoomID == roomID {
			delete(m.notifications, pk)
		}
	}
	delete(m.messages, roomID)
	delete(m.rooms, roomID)
}

func (m *MemoryStore) PutAccess(ctx context.Context, access model.AccessItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access[access.PK] = access
	return nil
}

func (m *MemoryStore) GetAccess(ctx context.Context, roomID, userID int64) (model.AccessItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.access[model.PairPK(roomID, userID)]
	if !ok {
		return model.AccessItem{}, ErrNotFound
	}
	return a, nil
}

func (m *MemoryStore) DeleteAccess(ctx context.Context, roomID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.access, model.PairPK(roomID, userID))
	return nil
}

func (m *MemoryStore) ListAccessByRoom(ctx context.Context, roomID int64) ([]model.AccessItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]model.AccessItem, 0)
	for _, a := range m.access {
		if a.RoomID == roomID {
			items = append(items, a)
		}
	}
	return items, nil
}

func (m *MemoryStore) ListAccessByUser(ctx context.Context, userID int64) ([]model.AccessItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]model.AccessItem, 0)
	for _, a := range m.access {
		if a.UserID == userID {
			items = append(items, a)
		}
	}
	return items, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, message model.MessageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[message.RoomID] = append(m.messages[message.RoomID], message)
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, roomID int64, limit int) ([]model.MessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]model.MessageItem(nil), m.messages[roomID]...)
	return sortMessages(items, limit), nil
}

func (m *MemoryStore) GetOrCreateThread(ctx context.Context, userID int64, now string) (model.ThreadItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if thread, ok := m.threads[userID]; ok {
		return thread, nil
	}
	thread := model.ThreadItem{UserID: userID, CreatedAt: now, LastMessageAt: now}
	m.threads[userID] = thread
	return thread, nil
}

func (m *MemoryStore) GetThread(ctx context.Context, userID int64) (model.ThreadItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread, ok := m.threads[userID]
	if !ok {
		return model.ThreadItem{}, ErrNotFound
	}
	return thread, nil
}

func (m *MemoryStore) AppendThreadMessage(ctx context.Context, message model.ThreadMessageItem, bumpUnread bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread, ok := m.threads[message.UserID]
	if !ok {
		return ErrNotFound
	}
	m.threadMessages[message.UserID] = append(m.threadMessages[message.UserID], message)
	thread.LastMessageAt = message.CreatedAt
	if bumpUnread {
		thread.UnreadCount++
	}
	m.threads[message.UserID] = thread
	return nil
}

func (m *MemoryStore) MarkThreadRead(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread, ok := m.threads[userID]
	if !ok {
		return ErrNotFound
	}
	thread.UnreadCount = 0
	m.threads[userID] = thread
	return nil
}

func (m *MemoryStore) ListThreads(ctx context.Context) ([]model.ThreadItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	threads := make([]model.ThreadItem, 0, len(m.threads))
	for _, t := range m.threads {
		threads = append(threads, t)
	}
	sortThreads(threads)
	return threads, nil
}

func (m *MemoryStore) ListThreadMessages(ctx context.Context, userID int64, limit int) ([]model.ThreadMessageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := append([]model.ThreadMessageItem(nil), m.threadMessages[userID]...)
	return sortThreadMessages(items, limit), nil
}

func (m *MemoryStore) GetNotification(ctx context.Context, userID, roomID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[model.PairPK(userID, roomID)]
	if !ok {
		return true, nil
	}
	return n.Enabled, nil
}

func (m *MemoryStore) SetNotification(ctx context.Context, userID, roomID int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[model.PairPK(userID, roomID)] = model.NotificationItem{
		PK:      model.PairPK(userID, roomID),
		UserID:  userID,
		RoomID:  roomID,
		Enabled: enabled,
	}
	return nil
}

func (m *MemoryStore) UpsertCustomer(ctx context.Context, userID int64, now string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[userID]
	if !ok {
		c = model.CustomerItem{UserID: userID, CreatedAt: now}
	}
	c.UpdatedAt = now
	m.customers[userID] = c
	return nil
}

func (m *MemoryStore) UpdateCustomerNotes(ctx context.Context, userID int64, notes, now string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[userID]
	if !ok {
		c = model.CustomerItem{UserID: userID, CreatedAt: now}
	}
	c.Notes = notes
	c.UpdatedAt = now
	m.customers[userID] = c
	return nil
}

func (m *MemoryStore) RemoveCustomer(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.customers, userID)
	return nil
}

func (m *MemoryStore) GetCustomer(ctx context.Context, userID int64) (model.CustomerItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[userID]
	if !ok {
		return model.CustomerItem{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) ListCustomers(ctx context.Context) ([]model.CustomerItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]model.CustomerItem, 0, len(m.customers))
	for _, c := range m.customers {
		items = append(items, c)
	}
	return items, nil
}

func (m *MemoryStore) CreateReview(ctx context.Context, review model.ReviewItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reviews[review.ReviewID] = review
	return nil
}

func (m *MemoryStore) FindReview(ctx context.Context, roomID, userID int64) (model.ReviewItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reviews {
		if r.RoomID == roomID && r.UserID == userID {
			return r, nil
		}
	}
	return model.ReviewItem{}, ErrNotFound
}

func (m *MemoryStore) ListReviews(ctx context.Context) ([]model.ReviewItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]model.ReviewItem, 0, len(m.reviews))
	for _, r := range m.reviews {
		items = append(items, r)
	}
	return items, nil
}

func (m *MemoryStore) ArchiveRoom(ctx context.Context, entry model.HistoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[entry.RoomID]
	if !ok {
		return ErrNotFound
	}
	if !room.Active() {
		return ErrConflict
	}
	room.Status = model.RoomStatusClosed
	m.rooms[room.RoomID] = room
	m.history[entry.HistoryID] = entry
	return nil
}

func (m *MemoryStore) GetHistory(ctx context.Context, historyID int64) (model.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.history[historyID]
	if !ok {
		return model.HistoryItem{}, ErrNotFound
	}
	return h, nil
}

func (m *MemoryStore) GetHistoryByRoom(ctx context.Context, roomID int64) (model.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.history {
		if h.RoomID == roomID {
			return h, nil
		}
	}
	return model.HistoryItem{}, ErrNotFound
}

func (m *MemoryStore) ListHistory(ctx context.Context) ([]model.HistoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]model.HistoryItem, 0, len(m.history))
	for _, h := range m.history {
		items = append(items, h)
	}
	sortHistory(items)
	return items, nil
}

func (m *MemoryStore) PurgeHistory(ctx context.Context, historyID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.history[historyID]
	if !ok {
		return ErrNotFound
	}
	delete(m.history, historyID)
	m.deleteRoomLocked(h.RoomID)
	return nil
}

// Counts reports row totals for a room; tests use it to check purge effects.
func (m *MemoryStore) Counts(roomID int64) (access, messages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.access {
		if a.RoomID == roomID {
			access++
		}
	}
	return access, len(m.messages[roomID])
}
