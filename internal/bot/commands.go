package bot

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/notify/telegram"
	"github.com/ThomasGodWeb/WorkBot/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// replayLines caps the history printed when a room or chat is opened.
const replayLines = 10

type commandFunc func(d *Dispatcher, r request) error

var commands = map[string]commandFunc{
	"start":          (*Dispatcher).cmdStart,
	"menu":           (*Dispatcher).cmdStart,
	"cancel":         (*Dispatcher).cmdCancel,
	"create_room":    flowCommand(session.ActionCreateRoom, "🏠 Введите: <code>название | ID клиента</code> (ID клиента можно не указывать)"),
	"add_access":     flowCommand(session.ActionAddAccess, "🔑 Введите: <code>ID комнаты | ID пользователя</code>"),
	"remove_access":  flowCommand(session.ActionRemoveAccess, "🚫 Введите: <code>ID комнаты | ID пользователя</code>"),
	"delete_room":    flowCommand(session.ActionDeleteRoom, "🗑️ Введите ID комнаты для удаления"),
	"my_rooms":       (*Dispatcher).cmdMyRooms,
	"all_rooms":      (*Dispatcher).cmdAllRooms,
	"members":        (*Dispatcher).cmdMembers,
	"enter":          (*Dispatcher).cmdEnter,
	"exit_room":      (*Dispatcher).cmdExit,
	"grant":          (*Dispatcher).cmdGrant,
	"close":          (*Dispatcher).cmdClose,
	"archive":        (*Dispatcher).cmdArchive,
	"history":        (*Dispatcher).cmdHistory,
	"purge":          (*Dispatcher).cmdPurge,
	"rename":         (*Dispatcher).cmdRename,
	"chats":          (*Dispatcher).cmdChats,
	"chat":           (*Dispatcher).cmdChat,
	"close_chat":     (*Dispatcher).cmdCloseChat,
	"room_from_chat": (*Dispatcher).cmdRoomFromChat,
	"notify":         (*Dispatcher).cmdNotify,
	"set_role":       (*Dispatcher).cmdSetRole,
	"review":         (*Dispatcher).cmdReview,
	"orders":         (*Dispatcher).cmdOrders,
	"reviews":        (*Dispatcher).cmdReviews,
	"notes":          (*Dispatcher).cmdNotes,
	"console":        (*Dispatcher).cmdConsole,
}

func (d *Dispatcher) handleCommand(r request, name string) {
	cmd, ok := commands[name]
	if !ok {
		d.reply(r, "❓ Неизвестная команда. Используйте /menu")
		return
	}
	// any command but /cancel supersedes an armed flow
	if name != "cancel" {
		if err := d.sessions.ClearPending(r.ctx, r.actor.UserID); err != nil {
			d.replyError(r, apperror.Internal("failed to reset pending action", err))
			return
		}
	}
	if err := cmd(d, r); err != nil {
		d.replyError(r, err)
	}
}

// flowCommand runs an admin flow at once when the command carries its input,
// otherwise arms it and asks for the input.
func flowCommand(kind session.ActionKind, prompt string) commandFunc {
	return func(d *Dispatcher, r request) error {
		if err := d.members.RequireAdmin(r.ctx, r.actor.UserID); err != nil {
			return err
		}
		return d.arm(r, session.PendingAction{Kind: kind}, prompt)
	}
}

func (d *Dispatcher) arm(r request, p session.PendingAction, prompt string) error {
	if r.args != "" {
		return d.runFlow(r, p)
	}
	if err := d.sessions.SetPending(r.ctx, r.actor.UserID, p); err != nil {
		return apperror.Internal("failed to start flow", err)
	}
	d.reply(r, prompt+"\n\n/cancel — отмена")
	return nil
}

func (d *Dispatcher) cmdStart(r request) error {
	isAdmin, err := d.members.IsAdmin(r.ctx, r.actor.UserID)
	if err != nil {
		return err
	}
	text := "👋 <b>Добро пожаловать!</b>\n\n" +
		"💬 Напишите сообщение, и администратор ответит вам.\n" +
		"🏠 /my_rooms — ваши комнаты\n" +
		"📦 /orders — закрытые заказы\n" +
		"🚪 /exit_room — выйти из комнаты\n" +
		"❌ /cancel — отменить действие"
	if isAdmin {
		text = "🛠 <b>Панель администратора</b>\n\n" +
			"🏠 /create_room, /all_rooms, /my_rooms, /members &lt;комната&gt;\n" +
			"🔑 /grant &lt;комната&gt; &lt;customer|developer&gt;, /add_access, /remove_access\n" +
			"✏️ /rename &lt;комната&gt;, /notify &lt;комната&gt; &lt;on|off&gt;\n" +
			"✅ /close &lt;комната&gt;, /archive &lt;комната&gt;, /delete_room\n" +
			"📚 /history, /purge &lt;ID записи&gt;, /reviews\n" +
			"💬 /chats, /chat &lt;ID&gt;, /close_chat, /room_from_chat &lt;ID&gt; &lt;customer|developer&gt;\n" +
			"👥 /set_role &lt;роль&gt;, /notes [ID]\n" +
			"📺 /console"
	}
	d.reply(r, text)
	return nil
}

func (d *Dispatcher) cmdCancel(r request) error {
	result, err := d.sessions.Cancel(r.ctx, r.actor.UserID)
	if err != nil {
		return apperror.Internal("failed to cancel", err)
	}
	switch result {
	case session.CancelPending:
		d.reply(r, "❌ Действие отменено")
	case session.CancelRoom:
		d.reply(r, "🚪 Вы вышли из комнаты")
	default:
		d.reply(r, "ℹ️ Нечего отменять")
	}
	return nil
}

func (d *Dispatcher) cmdMyRooms(r request) error {
	rooms, err := d.members.VisibleRooms(r.ctx, r.actor.UserID)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		d.reply(r, "🏠 У вас пока нет комнат")
		return nil
	}

	var b strings.Builder
	b.WriteString("🏠 <b>Ваши комнаты</b>\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, v := range rooms {
		fmt.Fprintf(&b, "• <code>%d</code> %s (%s)\n", v.Room.RoomID, html.EscapeString(v.Room.Name), v.Kind)
		if v.Kind == string(model.AccessCustomer) {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
				"✅ Закрыть заказ «"+v.Room.Name+"»",
				telegram.CallbackCloseConfirm+strconv.FormatInt(v.Room.RoomID, 10),
			)))
		}
	}
	b.WriteString("\n💬 /enter &lt;ID&gt; — войти в комнату")

	if len(rows) == 0 {
		d.reply(r, b.String())
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	d.send(r, b.String(), &markup)
	return nil
}

func (d *Dispatcher) cmdAllRooms(r request) error {
	rooms, err := d.members.AllRooms(r.ctx, r.actor.UserID)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏠 <b>Все комнаты</b> (%d)\n\n", len(rooms))
	for _, room := range rooms {
		status := "🟢"
		if !room.Active() {
			status = "⚪️"
		}
		fmt.Fprintf(&b, "%s <code>%d</code> %s\n", status, room.RoomID, html.EscapeString(room.Name))
	}
	d.reply(r, b.String())
	return nil
}

func (d *Dispatcher) cmdMembers(r request) error {
	if err := d.members.RequireAdmin(r.ctx, r.actor.UserID); err != nil {
		return err
	}
	roomID, err := parseID(r.args)
	if err != nil {
		return err
	}
	room, err := d.members.Room(r.ctx, roomID)
	if err != nil {
		return err
	}
	members, err := d.members.Members(r.ctx, roomID)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👥 <b>Участники комнаты «%s»</b>\n\n", html.EscapeString(room.Name))
	for _, m := range members {
		fmt.Fprintf(&b, "• <code>%d</code> %s\n", m.UserID, m.Kind)
	}
	d.reply(r, b.String())
	return nil
}

func (d *Dispatcher) cmdEnter(r request) error {
	roomID, err := parseID(r.args)
	if err != nil {
		return err
	}
	entered, err := d.relay.EnterRoom(r.ctx, r.actor.UserID, roomID)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✅ <b>Вы вошли в комнату «%s»</b>\n👤 Роль: %s\n\n", html.EscapeString(entered.Room.Name), entered.Kind)
	messages := entered.Messages
	if len(messages) > replayLines {
		messages = messages[len(messages)-replayLines:]
	}
	for _, m := range messages {
		who := "👨‍💻"
		if m.FromCustomer {
			who = "👤"
		}
		fmt.Fprintf(&b, "%s %s\n", who, html.EscapeString(m.Body))
	}
	b.WriteString("\n💬 Все сообщения теперь уходят в комнату. /exit_room — выйти")
	d.reply(r, b.String())
	return nil
}

func (d *Dispatcher) cmdExit(r request) error {
	was, err := d.relay.ExitRoom(r.ctx, r.actor.UserID)
	if err != nil {
		return err
	}
	if was == 0 {
		d.reply(r, "ℹ️ Вы не находитесь в комнате")
		return nil
	}
	d.reply(r, "🚪 Вы вышли из комнаты")
	return nil
}

func (d *Dispatcher) cmdGrant(r request) error {
	if err := d.members.RequireAdmin(r.ctx, r.actor.UserID); err != nil {
		return err
	}
	fields := strings.Fields(r.args)
	if len(fields) < 2 {
		return apperror.Validation("usage: /grant <room> <customer|developer> [user]")
	}
	roomID, err := parseID(fields[0])
	if err != nil {
		return err
	}
	kind := model.AccessKind(fields[1])
	if !kind.Valid() {
		return apperror.Validation("role must be customer or developer")
	}
	if _, err := d.members.Room(r.ctx, roomID); err != nil {
		return err
	}
	r.args = strings.Join(fields[2:], " ")
	return d.arm(r, session.PendingAction{Kind: session.ActionGrantAccess, RoomID: roomID, Role: string(kind)}, "🔑 Введите ID пользователя")
}

func (d *Dispatcher) cmdClose(r request) error {
	roomID, err := parseID(r.args)
	if err != nil {
		return err
	}
	closure, err := d.lifecycle.CloseByAdmin(r.ctx, r.actor.UserID, roomID)
	if err != nil {
		return err
	}
	d.replyClosure(r, "✅ Заказ закрыт", closure.Room, len(closure.Members), len(closure.Results)-len(notify.Failed(closure.Results)))
	return nil
}

// cmdArchive is the button-style delete: the room goes to history.
func (d *Dispatcher) cmdArchive(r request) error {
	roomID, err := parseID(r.args)
	if err != nil {
		return err
	}
	closure, err := d.lifecycle.Archive(r.ctx, r.actor.UserID, roomID)
	if err != nil {
		return err
	}
	d.replyClosure(r, "🗑️ Комната удалена и перемещена в историю", closure.Room, len(closure.Members), len(closure.Results)-len(notify.Failed(closure.Results)))
	return nil
}

func (d *Dispatcher) replyClosure(r request, title string, room model.RoomItem, members, notified int) {
	d.reply(r, fmt.Sprintf("<b>%s</b>\n\n🏠 Комната: <b>%s</b>\n👥 Участников: %d\n📨 Уведомлено: %d",
		title, html.EscapeString(room.Name), members, notified))
}

func (d *Dispatcher) cmdHistory(r request) error {
	entries, err := d.lifecycle.History(r.ctx, r.actor.UserID)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		d.reply(r, "📚 История заказов пуста")
		return nil
	}
	var b strings.Builder
	b.WriteString("📚 <b>История заказов</b>\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "• <code>%d</code> %s (комната %d, клиент %d)\n", e.HistoryID, html.EscapeString(e.RoomName), e.RoomID, e.CustomerID)
	}
	b.WriteString("\n🗑️ /purge &lt;ID записи&gt; — удалить навсегда")
	d.reply(r, b.String())
	return nil
}

func (d *Dispatcher) cmdPurge(r request) error {
	historyID, err := parseID(r.args)
	if err != nil {
		return err
	}
	entry, err := d.lifecycle.Purge(r.ctx, r.actor.UserID, historyID)
	if err != nil {
		return err
	}
	d.reply(r, "🗑️ Заказ «"+html.EscapeString(entry.RoomName)+"» удален навсегда")
	return nil
}

func (d *Dispatcher) cmdRename(r request) error {
	if err := d.members.RequireAdmin(r.ctx, r.actor.UserID); err != nil {
		return err
	}
	roomArg, name, _ := strings.Cut(r.args, " ")
	roomID, err := parseID(roomArg)
	if err != nil {
		return err
	}
	if _, err := d.members.Room(r.ctx, roomID); err != nil {
		return err
	}
	r.args = strings.TrimSpace(name)
	return d.arm(r, session.PendingAction{Kind: session.ActionEditRoomName, RoomID: roomID}, "✏️ Введите новое название комнаты")
}

func (d *Dispatcher) cmdChats(r request) error {
	threads, err := d.inbox.Threads(r.ctx, r.actor.UserID)
	if err != nil {
		return err
	}
	if len(threads) == 0 {
		d.reply(r, "💬 Чатов пока нет")
		return nil
	}
	var b strings.Builder
	b.WriteString("💬 <b>Чаты</b>\n\n")
	for _, t := range threads {
		name := t.User.FullName
		if name == "" {
			name = "Без имени"
		}
		unread := ""
		if t.Thread.UnreadCount > 0 {
			unread = fmt.Sprintf(" 🔴 %d", t.Thread.UnreadCount)
		}
		fmt.Fprintf(&b, "• <code>%d</code> %s%s\n", t.Thread.UserID, html.EscapeString(name), unread)
	}
	b.WriteString("\n💬 /chat &lt;ID&gt; — открыть чат")
	d.reply(r, b.String())
	return nil
}

func (d *Dispatcher) cmdChat(r request) error {
	userID, err := parseID(r.args)
	if err != nil {
		return err
	}
	opened, err := d.inbox.OpenThread(r.ctx, r.actor.UserID, userID)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💬 <b>Чат с пользователем</b> <code>%d</code>\n\n", userID)
	messages := opened.Messages
	if len(messages) > replayLines {
		messages = messages[len(messages)-replayLines:]
	}
	for _, m := range messages {
		who := "🛠"
		if m.FromUser {
			who = "👤"
		}
		fmt.Fprintf(&b, "%s %s\n", who, html.EscapeString(m.Body))
	}
	b.WriteString("\n✍️ Ваши сообщения теперь уходят пользователю. /close_chat — закрыть чат")
	d.reply(r, b.String())
	return nil
}

func (d *Dispatcher) cmdCloseChat(r request) error {
	if err := d.inbox.CloseThread(r.ctx, r.actor.UserID); err != nil {
		return err
	}
	d.reply(r, "✅ Чат закрыт")
	return nil
}

func (d *Dispatcher) cmdRoomFromChat(r request) error {
	if err := d.members.RequireAdmin(r.ctx, r.actor.UserID); err != nil {
		return err
	}
	fields := strings.Fields(r.args)
	if len(fields) < 2 {
		return apperror.Validation("usage: /room_from_chat <user> <customer|developer> [name]")
	}
	userID, err := parseID(fields[0])
	if err != nil {
		return err
	}
	kind := model.AccessKind(fields[1])
	if !kind.Valid() {
		return apperror.Validation("role must be customer or developer")
	}
	r.args = strings.Join(fields[2:], " ")
	return d.arm(r, session.PendingAction{Kind: session.ActionCreateRoomFromThread, UserID: userID, Role: string(kind)}, "🏠 Введите название новой комнаты")
}

func (d *Dispatcher) cmdNotify(r request) error {
	fields := strings.Fields(r.args)
	if len(fields) == 0 {
		views, err := d.members.Notifications(r.ctx, r.actor.UserID)
		if err != nil {
			return err
		}
		var b strings.Builder
		b.WriteString("🔔 <b>Уведомления</b>\n\n")
		for _, v := range views {
			mark := "🔔"
			if !v.Enabled {
				mark = "🔕"
			}
			fmt.Fprintf(&b, "%s <code>%d</code> %s\n", mark, v.Room.RoomID, html.EscapeString(v.Room.Name))
		}
		d.reply(r, b.String())
		return nil
	}
	if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
		return apperror.Validation("usage: /notify <room> <on|off>")
	}
	roomID, err := parseID(fields[0])
	if err != nil {
		return err
	}
	enabled := fields[1] == "on"
	if err := d.members.SetNotification(r.ctx, r.actor.UserID, roomID, enabled); err != nil {
		return err
	}
	if enabled {
		d.reply(r, "🔔 Уведомления включены")
	} else {
		d.reply(r, "🔕 Уведомления выключены")
	}
	return nil
}

func (d *Dispatcher) cmdSetRole(r request) error {
	if err := d.members.RequireAdmin(r.ctx, r.actor.UserID); err != nil {
		return err
	}
	fields := strings.Fields(r.args)
	if len(fields) == 0 {
		return apperror.Validation("usage: /set_role <admin|developer|customer|user> [user]")
	}
	role := model.Role(fields[0])
	if !role.Valid() {
		return apperror.Validation("unknown role")
	}
	r.args = strings.Join(fields[1:], " ")
	return d.arm(r, session.PendingAction{Kind: session.ActionSetRole, Role: string(role)}, "👥 Введите ID пользователя")
}

func (d *Dispatcher) cmdReview(r request) error {
	return d.startReview(r, r.args)
}

func (d *Dispatcher) cmdOrders(r request) error {
	orders, err := d.lifecycle.CustomerHistory(r.ctx, r.actor.UserID)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		d.reply(r, "📦 У вас нет закрытых заказов")
		return nil
	}
	var b strings.Builder
	b.WriteString("📦 <b>Ваши заказы</b>\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, o := range orders {
		mark := "⭐"
		if !o.HasReview {
			mark = "✍️"
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(
				"⭐ Отзыв: "+o.Entry.RoomName,
				telegram.CallbackAddReview+strconv.FormatInt(o.Entry.RoomID, 10),
			)))
		}
		fmt.Fprintf(&b, "%s %s\n", mark, html.EscapeString(o.Entry.RoomName))
	}
	if len(rows) == 0 {
		d.reply(r, b.String())
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	d.send(r, b.String(), &markup)
	return nil
}

func (d *Dispatcher) cmdReviews(r request) error {
	reviews, err := d.lifecycle.Reviews(r.ctx, r.actor.UserID)
	if err != nil {
		return err
	}
	if len(reviews) == 0 {
		d.reply(r, "⭐ Отзывов пока нет")
		return nil
	}
	var b strings.Builder
	b.WriteString("⭐ <b>Отзывы</b>\n\n")
	for _, rv := range reviews {
		fmt.Fprintf(&b, "• комната %d, клиент <code>%d</code>\n%s\n\n", rv.RoomID, rv.UserID, html.EscapeString(rv.Text))
	}
	d.reply(r, b.String())
	return nil
}

func (d *Dispatcher) cmdNotes(r request) error {
	if err := d.members.RequireAdmin(r.ctx, r.actor.UserID); err != nil {
		return err
	}
	if r.args == "" {
		customers, err := d.members.Customers(r.ctx, r.actor.UserID)
		if err != nil {
			return err
		}
		var b strings.Builder
		b.WriteString("👥 <b>Клиенты</b>\n\n")
		for _, c := range customers {
			notes := c.Notes
			if notes == "" {
				notes = "—"
			}
			fmt.Fprintf(&b, "• <code>%d</code> %s\n", c.UserID, html.EscapeString(notes))
		}
		d.reply(r, b.String())
		return nil
	}
	userArg, notes, _ := strings.Cut(r.args, " ")
	userID, err := parseID(userArg)
	if err != nil {
		return err
	}
	r.args = strings.TrimSpace(notes)
	return d.arm(r, session.PendingAction{Kind: session.ActionEditNotes, UserID: userID}, "📝 Введите заметку о клиенте")
}

func (d *Dispatcher) cmdConsole(r request) error {
	if err := d.members.RequireAdmin(r.ctx, r.actor.UserID); err != nil {
		return err
	}
	if d.console == nil {
		d.reply(r, "ℹ️ Консоль не настроена")
		return nil
	}
	token, err := d.console.IssueConsoleToken(r.actor.UserID)
	if err != nil {
		return apperror.Internal("failed to issue console token", err)
	}
	text := "📺 <b>Токен консоли</b>\n\n<code>" + html.EscapeString(token) + "</code>"
	if d.consoleURL != "" {
		text += "\n\n🔗 " + html.EscapeString(d.consoleURL+"?token="+token)
	}
	d.reply(r, text)
	return nil
}
