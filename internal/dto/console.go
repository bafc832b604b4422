package dto

type HistoryResponse struct {
	HistoryID     int64  `json:"historyId"`
	RoomID        int64  `json:"roomId"`
	RoomName      string `json:"roomName"`
	CustomerID    int64  `json:"customerId,omitempty"`
	CreatedBy     int64  `json:"createdBy"`
	ClosedBy      int64  `json:"closedBy"`
	RoomCreatedAt string `json:"roomCreatedAt"`
	ClosedAt      string `json:"closedAt"`
}

type ListHistoryResponse struct {
	History []HistoryResponse `json:"history"`
}

type ReviewResponse struct {
	ReviewID  int64  `json:"reviewId"`
	UserID    int64  `json:"userId"`
	RoomID    int64  `json:"roomId"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type ListReviewsResponse struct {
	Reviews []ReviewResponse `json:"reviews"`
}

type ThreadResponse struct {
	UserID        int64  `json:"userId"`
	Username      string `json:"username,omitempty"`
	FullName      string `json:"fullName,omitempty"`
	UnreadCount   int    `json:"unreadCount"`
	LastMessageAt string `json:"lastMessageAt"`
}

type ListThreadsResponse struct {
	Threads []ThreadResponse `json:"threads"`
}

// SessionResponse describes the operator behind a console token.
type SessionResponse struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
}
