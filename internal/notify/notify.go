// Package notify describes what gets delivered to a recipient and fans
// deliveries out over a Channel.
package notify

import (
	"context"
	"strings"
)

type ContentKind string

const (
	KindText      ContentKind = "text"
	KindPhoto     ContentKind = "photo"
	KindVideo     ContentKind = "video"
	KindDocument  ContentKind = "document"
	KindAudio     ContentKind = "audio"
	KindVoice     ContentKind = "voice"
	KindVideoNote ContentKind = "video_note"
	KindSticker   ContentKind = "sticker"
)

// Content is an inbound payload: text, or a media reference with an optional caption.
type Content struct {
	Kind   ContentKind
	Text   string
	FileID string
}

func Text(text string) Content {
	return Content{Kind: KindText, Text: text}
}

func Media(kind ContentKind, fileID, caption string) Content {
	return Content{Kind: kind, FileID: fileID, Text: caption}
}

func (c Content) HasMedia() bool {
	return c.Kind != KindText && c.Kind != "" && c.FileID != ""
}

// Body is the text persisted to history.
func (c Content) Body() string {
	return strings.TrimSpace(c.Text)
}

func (c Content) Empty() bool {
	return !c.HasMedia() && c.Body() == ""
}

type HeaderKind string

const (
	HeaderNone       HeaderKind = ""
	HeaderCustomer   HeaderKind = "customer"
	HeaderDeveloper  HeaderKind = "developer"
	HeaderAdminReply HeaderKind = "admin_reply"
	HeaderInbox      HeaderKind = "inbox"
)

type NoticeKind string

const (
	NoticeNone                  NoticeKind = ""
	NoticeNewMessage            NoticeKind = "new_message"
	NoticeDeliveredToDevelopers NoticeKind = "delivered_to_developers"
	NoticeDeliveredToRoom       NoticeKind = "delivered_to_room"
	NoticeReceived              NoticeKind = "received"
	NoticeRoomClosed            NoticeKind = "room_closed"
	NoticeRoomClosedByCustomer  NoticeKind = "room_closed_by_customer"
	NoticeRoomDeleted           NoticeKind = "room_deleted"
	NoticeReviewPrompt          NoticeKind = "review_prompt"
	NoticeAccessGranted         NoticeKind = "access_granted"
	NoticeAccessRevoked         NoticeKind = "access_revoked"
)

type Sender struct {
	UserID   int64
	Username string
	FullName string
}

// Envelope is one delivery unit. It carries either a headed Content or a Notice.
type Envelope struct {
	Header   HeaderKind
	Notice   NoticeKind
	RoomID   int64
	RoomName string
	Sender   *Sender
	Content  Content
	// Detail is free text for notices that name someone, e.g. who closed a room.
	Detail string
}

func Message(header HeaderKind, roomID int64, roomName string, content Content) Envelope {
	return Envelope{Header: header, RoomID: roomID, RoomName: roomName, Content: content}
}

func Notice(kind NoticeKind, roomID int64, roomName string) Envelope {
	return Envelope{Notice: kind, RoomID: roomID, RoomName: roomName}
}

func (e Envelope) IsNotice() bool {
	return e.Notice != NoticeNone
}

// Label names the envelope for metrics and logs.
func (e Envelope) Label() string {
	if e.IsNotice() {
		return "notice_" + string(e.Notice)
	}
	if e.Content.Kind == "" {
		return string(KindText)
	}
	return string(e.Content.Kind)
}

// Channel delivers one envelope to one recipient. It makes no ordering or
// delivery guarantees across calls.
type Channel interface {
	Deliver(ctx context.Context, recipient int64, env Envelope) error
}

type ChannelFunc func(ctx context.Context, recipient int64, env Envelope) error

func (f ChannelFunc) Deliver(ctx context.Context, recipient int64, env Envelope) error {
	return f(ctx, recipient, env)
}
