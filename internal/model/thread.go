package model

// ThreadItem is the pre-room inbox of one user, keyed by that user's id.
type ThreadItem struct {
	UserID        int64  `dynamodbav:"userId" gorm:"primaryKey;autoIncrement:false"`
	UnreadCount   int    `dynamodbav:"unreadCount"`
	LastMessageAt string `dynamodbav:"lastMessageAt"`
	CreatedAt     string `dynamodbav:"createdAt"`
}

func (ThreadItem) TableName() string { return "chats" }

type ThreadMessageItem struct {
	PK        string `dynamodbav:"pk" gorm:"primaryKey"`
	UserID    int64  `dynamodbav:"userId" gorm:"index"`
	SenderID  int64  `dynamodbav:"senderId"`
	Body      string `dynamodbav:"body"`
	FromUser  bool   `dynamodbav:"fromUser"`
	CreatedAt string `dynamodbav:"createdAt"`
}

func (ThreadMessageItem) TableName() string { return "chat_messages" }
