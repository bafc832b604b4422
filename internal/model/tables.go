package model

import (
	"fmt"
	"time"
)

const (
	UsersTable         = "Users"
	RoomsTable         = "Rooms"
	RoomAccessTable    = "RoomAccess"
	MessagesTable      = "Messages"
	ThreadsTable       = "Threads"
	ThreadMessageTable = "ThreadMessages"
	CustomersTable     = "Customers"
	NotificationsTable = "RoomNotifications"
	ReviewsTable       = "Reviews"
	HistoryTable       = "OrderHistory"
	CountersTable      = "Counters"
)

const (
	ByRoomIndex = "byRoom"
	ByUserIndex = "byUser"
)

const (
	RoomSequence    = "room"
	HistorySequence = "history"
	ReviewSequence  = "review"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleCustomer  Role = "customer"
	RoleUser      Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDeveloper, RoleCustomer, RoleUser:
		return true
	}
	return false
}

type UserItem struct {
	UserID    int64  `dynamodbav:"userId" gorm:"primaryKey;autoIncrement:false"`
	Username  string `dynamodbav:"username,omitempty"`
	FullName  string `dynamodbav:"fullName,omitempty"`
	Role      Role   `dynamodbav:"role" gorm:"index"`
	CreatedAt string `dynamodbav:"createdAt"`
}

func (UserItem) TableName() string { return "users" }

type CustomerItem struct {
	UserID    int64  `dynamodbav:"userId" gorm:"primaryKey;autoIncrement:false"`
	Notes     string `dynamodbav:"notes,omitempty"`
	CreatedAt string `dynamodbav:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

func (CustomerItem) TableName() string { return "customers" }

type CounterItem struct {
	Name string `dynamodbav:"name" gorm:"primaryKey"`
	Seq  int64  `dynamodbav:"seq"`
}

func (CounterItem) TableName() string { return "counters" }

func PairPK(a, b int64) string {
	return fmt.Sprintf("%d#%d", a, b)
}

func ScopedPK(scope int64, id string) string {
	return fmt.Sprintf("%d#%s", scope, id)
}

// Timestamp is the stored form of every time field.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
