package bot

import (
	"strings"

	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func ProfileOf(u *tgbotapi.User) membership.Profile {
	if u == nil {
		return membership.Profile{}
	}
	return membership.Profile{
		UserID:   u.ID,
		Username: u.UserName,
		FullName: strings.TrimSpace(u.FirstName + " " + u.LastName),
	}
}

// ContentOf extracts the relayable payload of a message. Photos use the
// largest size Telegram sent.
func ContentOf(m *tgbotapi.Message) notify.Content {
	switch {
	case len(m.Photo) > 0:
		return notify.Media(notify.KindPhoto, m.Photo[len(m.Photo)-1].FileID, m.Caption)
	case m.Video != nil:
		return notify.Media(notify.KindVideo, m.Video.FileID, m.Caption)
	case m.Document != nil:
		return notify.Media(notify.KindDocument, m.Document.FileID, m.Caption)
	case m.Audio != nil:
		return notify.Media(notify.KindAudio, m.Audio.FileID, m.Caption)
	case m.Voice != nil:
		return notify.Media(notify.KindVoice, m.Voice.FileID, m.Caption)
	case m.VideoNote != nil:
		return notify.Media(notify.KindVideoNote, m.VideoNote.FileID, "")
	case m.Sticker != nil:
		return notify.Media(notify.KindSticker, m.Sticker.FileID, "")
	}
	return notify.Text(m.Text)
}
