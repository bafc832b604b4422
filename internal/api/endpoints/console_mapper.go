package endpoints

import (
	"github.com/ThomasGodWeb/WorkBot/internal/dto"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/service/inbox"
)

func toRoomResponse(room model.RoomItem) dto.RoomResponse {
	return dto.RoomResponse{
		RoomID:     room.RoomID,
		Name:       room.Name,
		CustomerID: room.CustomerID,
		CreatedBy:  room.CreatedBy,
		Status:     string(room.Status),
		CreatedAt:  room.CreatedAt,
	}
}

func toMemberResponse(access model.AccessItem) dto.MemberResponse {
	return dto.MemberResponse{
		UserID:    access.UserID,
		Kind:      string(access.Kind),
		GrantedAt: access.GrantedAt,
	}
}

func toMessageResponse(msg model.MessageItem) dto.MessageResponse {
	return dto.MessageResponse{
		MessageID:    msg.MessageID,
		RoomID:       msg.RoomID,
		SenderID:     msg.SenderID,
		Body:         msg.Body,
		FromCustomer: msg.FromCustomer,
		CreatedAt:    msg.CreatedAt,
	}
}

func toHistoryResponse(entry model.HistoryItem) dto.HistoryResponse {
	return dto.HistoryResponse{
		HistoryID:     entry.HistoryID,
		RoomID:        entry.RoomID,
		RoomName:      entry.RoomName,
		CustomerID:    entry.CustomerID,
		CreatedBy:     entry.CreatedBy,
		ClosedBy:      entry.ClosedBy,
		RoomCreatedAt: entry.RoomCreatedAt,
		ClosedAt:      entry.ClosedAt,
	}
}

func toReviewResponse(review model.ReviewItem) dto.ReviewResponse {
	return dto.ReviewResponse{
		ReviewID:  review.ReviewID,
		UserID:    review.UserID,
		RoomID:    review.RoomID,
		Text:      review.Text,
		CreatedAt: review.CreatedAt,
	}
}

func toThreadResponse(view inbox.ThreadView) dto.ThreadResponse {
	return dto.ThreadResponse{
		UserID:        view.Thread.UserID,
		Username:      view.User.Username,
		FullName:      view.User.FullName,
		UnreadCount:   view.Thread.UnreadCount,
		LastMessageAt: view.Thread.LastMessageAt,
	}
}
