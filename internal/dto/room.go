package dto

type RoomResponse struct {
	RoomID     int64  `json:"roomId"`
	Name       string `json:"name"`
	CustomerID int64  `json:"customerId,omitempty"`
	CreatedBy  int64  `json:"createdBy"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
}

type ListRoomsResponse struct {
	Rooms []RoomResponse `json:"rooms"`
}

type MemberResponse struct {
	UserID    int64  `json:"userId"`
	Kind      string `json:"kind"`
	GrantedAt string `json:"grantedAt"`
}

type MessageResponse struct {
	MessageID    string `json:"messageId"`
	RoomID       int64  `json:"roomId"`
	SenderID     int64  `json:"senderId"`
	Body         string `json:"body"`
	FromCustomer bool   `json:"fromCustomer"`
	CreatedAt    string `json:"createdAt"`
}

type RoomDetailResponse struct {
	Room     RoomResponse      `json:"room"`
	Members  []MemberResponse  `json:"members"`
	Messages []MessageResponse `json:"messages"`
}

// CloseRoomResponse reports a close triggered from the console.
type CloseRoomResponse struct {
	Room      RoomResponse `json:"room"`
	HistoryID int64        `json:"historyId"`
	Notified  int          `json:"notified"`
	Failed    int          `json:"failed"`
}
