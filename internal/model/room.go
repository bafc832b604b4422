package model

type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusClosed RoomStatus = "closed"
)

type AccessKind string

const (
	AccessCustomer  AccessKind = "customer"
	AccessDeveloper AccessKind = "developer"
)

func (k AccessKind) Valid() bool {
	return k == AccessCustomer || k == AccessDeveloper
}

type RoomItem struct {
	RoomID     int64      `dynamodbav:"roomId" gorm:"primaryKey;autoIncrement:false"`
	Name       string     `dynamodbav:"name"`
	CustomerID int64      `dynamodbav:"customerId,omitempty"`
	CreatedBy  int64      `dynamodbav:"createdBy"`
	Status     RoomStatus `dynamodbav:"status"`
	CreatedAt  string     `dynamodbav:"createdAt"`
}

func (RoomItem) TableName() string { return "rooms" }

func (r RoomItem) Active() bool {
	return r.Status == "" || r.Status == RoomStatusActive
}

// AccessItem is the membership row; PK is room#user so a second grant overwrites.
type AccessItem struct {
	PK        string     `dynamodbav:"pk" gorm:"primaryKey"`
	RoomID    int64      `dynamodbav:"roomId" gorm:"index"`
	UserID    int64      `dynamodbav:"userId" gorm:"index"`
	Kind      AccessKind `dynamodbav:"accessType"`
	GrantedAt string     `dynamodbav:"grantedAt"`
}

func (AccessItem) TableName() string { return "room_access" }

type MessageItem struct {
	PK           string `dynamodbav:"pk" gorm:"primaryKey"`
	MessageID    string `dynamodbav:"messageId"`
	RoomID       int64  `dynamodbav:"roomId" gorm:"index"`
	SenderID     int64  `dynamodbav:"senderId"`
	Body         string `dynamodbav:"body"`
	FromCustomer bool   `dynamodbav:"fromCustomer"`
	CreatedAt    string `dynamodbav:"createdAt"`
}

func (MessageItem) TableName() string { return "messages" }

type NotificationItem struct {
	PK      string `dynamodbav:"pk" gorm:"primaryKey"`
	UserID  int64  `dynamodbav:"userId" gorm:"index"`
	RoomID  int64  `dynamodbav:"roomId" gorm:"index"`
	Enabled bool   `dynamodbav:"enabled"`
}

func (NotificationItem) TableName() string { return "room_notifications" }

type ReviewItem struct {
	ReviewID   int64  `dynamodbav:"reviewId" gorm:"primaryKey;autoIncrement:false"`
	UserID     int64  `dynamodbav:"userId" gorm:"index"`
	RoomID     int64  `dynamodbav:"roomId" gorm:"index"`
	Text       string `dynamodbav:"text"`
	AdminReply string `dynamodbav:"adminReply,omitempty"`
	CreatedAt  string `dynamodbav:"createdAt"`
}

func (ReviewItem) TableName() string { return "reviews" }

// HistoryItem is the archive snapshot of a closed room.
type HistoryItem struct {
	HistoryID     int64  `dynamodbav:"historyId" gorm:"primaryKey;autoIncrement:false"`
	RoomID        int64  `dynamodbav:"roomId" gorm:"uniqueIndex"`
	RoomName      string `dynamodbav:"roomName"`
	CustomerID    int64  `dynamodbav:"customerId,omitempty"`
	CreatedBy     int64  `dynamodbav:"createdBy"`
	ClosedBy      int64  `dynamodbav:"closedBy"`
	RoomCreatedAt string `dynamodbav:"roomCreatedAt"`
	ClosedAt      string `dynamodbav:"closedAt"`
}

func (HistoryItem) TableName() string { return "order_history" }
