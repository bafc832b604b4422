package telegram

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ThomasGodWeb/WorkBot/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	CallbackAddReview    = "add_review_"
	CallbackCloseConfirm = "room_close_confirm_"
)

func header(env notify.Envelope) string {
	room := html.EscapeString(env.RoomName)
	switch env.Header {
	case notify.HeaderCustomer:
		return fmt.Sprintf("💬 <b>Сообщение из комнаты '%s':</b>\n\n", room)
	case notify.HeaderDeveloper:
		return fmt.Sprintf("👨‍💻 <b>Разработчик в комнате '%s':</b>\n\n", room)
	case notify.HeaderAdminReply:
		return "💬 <b>Ответ от администратора:</b>\n\n"
	case notify.HeaderInbox:
		return "💬 <b>Новое сообщение от пользователя:</b>\n\n" + senderInfo(env.Sender)
	}
	return ""
}

func senderInfo(s *notify.Sender) string {
	if s == nil {
		return ""
	}
	name := s.FullName
	if name == "" {
		name = "Без имени"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👤 <b>Пользователь:</b> %s\n", html.EscapeString(name))
	if s.Username != "" {
		fmt.Fprintf(&b, "📱 <b>Username:</b> @%s\n", html.EscapeString(s.Username))
	}
	fmt.Fprintf(&b, "🆔 <b>ID:</b> <code>%d</code>\n\n", s.UserID)
	return b.String()
}

// Render turns an envelope into the Telegram calls that deliver it, in order.
func Render(chatID int64, env notify.Envelope) []tgbotapi.Chattable {
	if env.IsNotice() {
		return []tgbotapi.Chattable{renderNotice(chatID, env)}
	}
	return renderContent(chatID, env)
}

func textMessage(chatID int64, text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	return msg
}

func renderContent(chatID int64, env notify.Envelope) []tgbotapi.Chattable {
	head := header(env)
	body := html.EscapeString(env.Content.Body())
	withBody := head + body
	caption := strings.TrimRight(head, "\n")
	if body != "" {
		caption = withBody
	}
	file := tgbotapi.FileID(env.Content.FileID)

	if !env.Content.HasMedia() {
		if body == "" {
			return nil
		}
		return []tgbotapi.Chattable{textMessage(chatID, withBody)}
	}

	switch env.Content.Kind {
	case notify.KindPhoto:
		cfg := tgbotapi.NewPhoto(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, tgbotapi.ModeHTML
		return []tgbotapi.Chattable{cfg}
	case notify.KindVideo:
		cfg := tgbotapi.NewVideo(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, tgbotapi.ModeHTML
		return []tgbotapi.Chattable{cfg}
	case notify.KindDocument:
		cfg := tgbotapi.NewDocument(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, tgbotapi.ModeHTML
		return []tgbotapi.Chattable{cfg}
	case notify.KindAudio:
		cfg := tgbotapi.NewAudio(chatID, file)
		cfg.Caption, cfg.ParseMode = caption, tgbotapi.ModeHTML
		return []tgbotapi.Chattable{cfg}
	case notify.KindVoice:
		// the header rides on the voice only when there is no text to follow
		cfg := tgbotapi.NewVoice(chatID, file)
		cfg.ParseMode = tgbotapi.ModeHTML
		if body == "" {
			cfg.Caption = strings.TrimRight(head, "\n")
			return []tgbotapi.Chattable{cfg}
		}
		return []tgbotapi.Chattable{cfg, textMessage(chatID, withBody)}
	case notify.KindVideoNote:
		out := []tgbotapi.Chattable{tgbotapi.NewVideoNote(chatID, 0, file)}
		if body != "" {
			out = append(out, textMessage(chatID, withBody))
		}
		return out
	case notify.KindSticker:
		out := []tgbotapi.Chattable{tgbotapi.NewSticker(chatID, file)}
		if body != "" {
			out = append(out, textMessage(chatID, withBody))
		}
		return out
	}

	if body == "" {
		return nil
	}
	return []tgbotapi.Chattable{textMessage(chatID, withBody)}
}

func renderNotice(chatID int64, env notify.Envelope) tgbotapi.Chattable {
	room := html.EscapeString(env.RoomName)
	switch env.Notice {
	case notify.NoticeNewMessage:
		return textMessage(chatID, fmt.Sprintf(
			"🔔 <b>Новое сообщение в комнате</b>\n\n🏠 <b>Комната:</b> %s\n💬 Используйте <code>/my_rooms</code> чтобы войти в комнату.", room))
	case notify.NoticeDeliveredToDevelopers:
		return textMessage(chatID, "✅ <b>Сообщение отправлено</b>\n\n👨‍💻 Ваше сообщение доставлено разработчикам.")
	case notify.NoticeDeliveredToRoom:
		return textMessage(chatID, "✅ <b>Сообщение отправлено</b>\n\n💬 Ваше сообщение доставлено в комнату.")
	case notify.NoticeReceived:
		return textMessage(chatID, "✅ <b>Сообщение получено</b>\n\n💬 Ваше сообщение доставлено администраторам.\n⏳ Мы свяжемся с вами в ближайшее время.")
	case notify.NoticeRoomClosed:
		return textMessage(chatID, fmt.Sprintf(
			"✅ <b>Заказ закрыт</b>\n\n🏠 Комната: <b>%s</b>\n\n💡 Заказ был закрыт администратором и перемещен в историю.", room))
	case notify.NoticeRoomClosedByCustomer:
		return textMessage(chatID, fmt.Sprintf(
			"✅ <b>Заказ закрыт</b>\n\n🏠 Комната: <b>%s</b>\n\n👤 Закрыл клиент: <b>%s</b>\n\n💡 Заказ был закрыт клиентом и перемещен в историю.",
			room, html.EscapeString(env.Detail)))
	case notify.NoticeRoomDeleted:
		return textMessage(chatID, fmt.Sprintf(
			"🗑️ <b>Комната удалена</b>\n\n🏠 Комната: <b>%s</b>\n\n💡 Комната была удалена администратором и перемещена в историю заказов.", room))
	case notify.NoticeReviewPrompt:
		msg := textMessage(chatID, fmt.Sprintf(
			"✅ <b>Заказ закрыт</b>\n\n🏠 Комната: <b>%s</b>\n\n⭐ <b>Оставить отзыв</b>\n\n💬 Поделитесь вашим мнением о работе или нажмите кнопку ниже:", room))
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("⭐ Оставить отзыв", CallbackAddReview+strconv.FormatInt(env.RoomID, 10)),
			),
		)
		return msg
	case notify.NoticeAccessGranted:
		return textMessage(chatID, fmt.Sprintf(
			"🔑 <b>Доступ предоставлен</b>\n\n🏠 Комната: <b>%s</b>\n💬 Используйте <code>/my_rooms</code> чтобы войти в комнату.", room))
	case notify.NoticeAccessRevoked:
		return textMessage(chatID, fmt.Sprintf("🚫 <b>Доступ к комнате '%s' отозван</b>", room))
	}
	return textMessage(chatID, html.EscapeString(env.Detail))
}
