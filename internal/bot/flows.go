package bot

import (
	"html"
	"strconv"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
	"github.com/ThomasGodWeb/WorkBot/internal/model"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/session"
)

// runFlow completes a pending action with r.args as its input.
func (d *Dispatcher) runFlow(r request, p session.PendingAction) error {
	if r.args == "" {
		return apperror.Validation("send the requested value as text")
	}

	switch p.Kind {
	case session.ActionCreateRoom:
		return d.flowCreateRoom(r)
	case session.ActionGrantAccess:
		userID, err := parseID(r.args)
		if err != nil {
			return err
		}
		return d.grant(r, p.RoomID, userID, model.AccessKind(p.Role))
	case session.ActionAddAccess:
		roomID, userID, err := roomAndUser(r.args)
		if err != nil {
			return err
		}
		return d.grant(r, roomID, userID, model.AccessDeveloper)
	case session.ActionRemoveAccess:
		return d.flowRemoveAccess(r)
	case session.ActionDeleteRoom:
		return d.flowDeleteRoom(r)
	case session.ActionEditRoomName:
		room, err := d.members.Rename(r.ctx, r.actor.UserID, p.RoomID, r.args)
		if err != nil {
			return err
		}
		d.reply(r, "✏️ Комната переименована в «"+html.EscapeString(room.Name)+"»")
		return nil
	case session.ActionSetRole:
		return d.flowSetRole(r, model.Role(p.Role))
	case session.ActionCreateRoomFromThread:
		room, err := d.inbox.CreateRoomFromThread(r.ctx, r.actor.UserID, p.UserID, model.AccessKind(p.Role), r.args)
		if err != nil {
			return err
		}
		d.reply(r, "✅ Комната «"+html.EscapeString(room.Name)+"» создана, ID <code>"+strconv.FormatInt(room.RoomID, 10)+"</code>")
		return nil
	case session.ActionAddReview:
		if _, err := d.lifecycle.SubmitReview(r.ctx, r.actor.UserID, p.RoomID, r.args); err != nil {
			return err
		}
		d.reply(r, "⭐ <b>Спасибо за отзыв!</b>")
		return nil
	case session.ActionEditNotes:
		if err := d.members.UpdateCustomerNotes(r.ctx, r.actor.UserID, p.UserID, r.args); err != nil {
			return err
		}
		d.reply(r, "📝 Заметка сохранена")
		return nil
	}
	return apperror.Validation("unknown action " + strconv.Quote(string(p.Kind)))
}

func roomAndUser(raw string) (int64, int64, error) {
	left, right, err := parsePair(raw)
	if err != nil {
		return 0, 0, err
	}
	roomID, err := parseID(left)
	if err != nil {
		return 0, 0, err
	}
	userID, err := parseID(right)
	if err != nil {
		return 0, 0, err
	}
	return roomID, userID, nil
}

func (d *Dispatcher) flowCreateRoom(r request) error {
	name, customer := r.args, ""
	if left, right, err := parsePair(r.args); err == nil {
		name, customer = left, right
	}
	var customerID int64
	if customer != "" {
		id, err := parseID(customer)
		if err != nil {
			return err
		}
		customerID = id
	}

	room, err := d.members.CreateRoom(r.ctx, r.actor.UserID, name, customerID)
	if err != nil {
		return err
	}
	if customerID != 0 {
		d.notice(r.ctx, customerID, notify.Notice(notify.NoticeAccessGranted, room.RoomID, room.Name))
	}
	d.reply(r, "✅ Комната «"+html.EscapeString(room.Name)+"» создана, ID <code>"+strconv.FormatInt(room.RoomID, 10)+"</code>")
	return nil
}

func (d *Dispatcher) grant(r request, roomID, userID int64, kind model.AccessKind) error {
	room, err := d.members.Grant(r.ctx, r.actor.UserID, roomID, userID, kind)
	if err != nil {
		return err
	}
	d.notice(r.ctx, userID, notify.Notice(notify.NoticeAccessGranted, room.RoomID, room.Name))
	d.reply(r, "🔑 Пользователь <code>"+strconv.FormatInt(userID, 10)+"</code> добавлен в «"+
		html.EscapeString(room.Name)+"» как "+kindLabel(kind))
	return nil
}

func (d *Dispatcher) flowRemoveAccess(r request) error {
	roomID, userID, err := roomAndUser(r.args)
	if err != nil {
		return err
	}
	room, err := d.members.Revoke(r.ctx, r.actor.UserID, roomID, userID)
	if err != nil {
		return err
	}
	d.notice(r.ctx, userID, notify.Notice(notify.NoticeAccessRevoked, room.RoomID, room.Name))
	d.reply(r, "🚫 Доступ пользователя <code>"+strconv.FormatInt(userID, 10)+"</code> к «"+html.EscapeString(room.Name)+"» отозван")
	return nil
}

// flowDeleteRoom is the legacy text delete. It purges without a history entry.
func (d *Dispatcher) flowDeleteRoom(r request) error {
	roomID, err := parseID(r.args)
	if err != nil {
		return err
	}
	room, err := d.lifecycle.PurgeRoom(r.ctx, r.actor.UserID, roomID)
	if err != nil {
		return err
	}
	d.reply(r, "🗑️ Комната «"+html.EscapeString(room.Name)+"» удалена")
	return nil
}

func (d *Dispatcher) flowSetRole(r request, role model.Role) error {
	userID, err := parseID(r.args)
	if err != nil {
		return err
	}
	if role == model.RoleUser {
		err = d.members.RemoveUserRole(r.ctx, r.actor.UserID, userID)
	} else {
		err = d.members.SetUserRole(r.ctx, r.actor.UserID, userID, role)
	}
	if err != nil {
		return err
	}
	d.reply(r, "👥 Роль пользователя <code>"+strconv.FormatInt(userID, 10)+"</code>: "+string(role))
	return nil
}

func kindLabel(kind model.AccessKind) string {
	if kind == model.AccessCustomer {
		return "клиент"
	}
	return "разработчик"
}
