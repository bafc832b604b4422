// Package bot turns Telegram updates into calls on the room services.
package bot

import (
	"context"
	"html"
	"strconv"
	"strings"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/notify/telegram"
	"github.com/ThomasGodWeb/WorkBot/internal/service/inbox"
	"github.com/ThomasGodWeb/WorkBot/internal/service/lifecycle"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"
	"github.com/ThomasGodWeb/WorkBot/internal/service/relay"
	"github.com/ThomasGodWeb/WorkBot/internal/session"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// API is the part of *tgbotapi.BotAPI the dispatcher talks to.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// ConsoleIssuer mints tokens for the operator live console.
type ConsoleIssuer interface {
	IssueConsoleToken(userID int64) (string, error)
}

type Deps struct {
	API       API
	Members   *membership.Service
	Lifecycle *lifecycle.Service
	Relay     *relay.Engine
	Inbox     *inbox.Service
	Sessions  session.Store
	// Fanout delivers notices to users other than the one who sent the update.
	Fanout     *notify.Fanout
	Console    ConsoleIssuer
	ConsoleURL string
	Log        zerolog.Logger
}

type Dispatcher struct {
	api        API
	members    *membership.Service
	lifecycle  *lifecycle.Service
	relay      *relay.Engine
	inbox      *inbox.Service
	sessions   session.Store
	fanout     *notify.Fanout
	console    ConsoleIssuer
	consoleURL string
	log        zerolog.Logger
}

func New(d Deps) *Dispatcher {
	return &Dispatcher{
		api:        d.API,
		members:    d.Members,
		lifecycle:  d.Lifecycle,
		relay:      d.Relay,
		inbox:      d.Inbox,
		sessions:   d.Sessions,
		fanout:     d.Fanout,
		console:    d.Console,
		consoleURL: d.ConsoleURL,
		log:        d.Log.With().Str("component", "bot").Logger(),
	}
}

// request is one inbound command or flow step.
type request struct {
	ctx    context.Context
	actor  membership.Profile
	chatID int64
	args   string
}

// Run handles updates one at a time until ctx ends or the channel closes.
// Sequential handling keeps each sender's messages in order.
func (d *Dispatcher) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			d.HandleUpdate(ctx, u)
		}
	}
}

func (d *Dispatcher) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	switch {
	case u.CallbackQuery != nil:
		d.handleCallback(ctx, u.CallbackQuery)
	case u.Message != nil:
		d.handleMessage(ctx, u.Message)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil || m.Chat == nil {
		return
	}
	r := request{ctx: ctx, actor: ProfileOf(m.From), chatID: m.Chat.ID}
	if _, err := d.members.EnsureUser(ctx, r.actor); err != nil {
		d.replyError(r, err)
		return
	}

	if m.IsCommand() {
		r.args = strings.TrimSpace(m.CommandArguments())
		d.handleCommand(r, m.Command())
		return
	}
	d.handleContent(r, ContentOf(m))
}

func (d *Dispatcher) handleContent(r request, content notify.Content) {
	out, err := d.relay.Route(r.ctx, relay.Inbound{Sender: r.actor, Content: content})
	if err != nil {
		d.replyError(r, err)
		return
	}

	switch out.Route {
	case relay.RouteFlow:
		d.resume(r, *out.Pending, content)
	case relay.RouteReply:
		if !out.Reply.Result.OK() {
			d.reply(r, "❌ <b>Не удалось доставить ответ</b>\n\nПользователь мог заблокировать бота.")
		}
	}
}

// resume feeds content into the actor's pending flow. Invalid input keeps the
// flow armed for another try; anything else ends it.
func (d *Dispatcher) resume(r request, p session.PendingAction, content notify.Content) {
	r.args = content.Body()
	err := d.runFlow(r, p)
	if err != nil && apperror.KeepsPending(err) {
		d.replyError(r, err)
		return
	}
	if clearErr := d.sessions.ClearPending(r.ctx, r.actor.UserID); clearErr != nil {
		d.log.Warn().Err(clearErr).Int64("actor_id", r.actor.UserID).Msg("failed to clear pending action")
	}
	if err != nil {
		d.replyError(r, err)
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.From == nil {
		return
	}
	r := request{ctx: ctx, actor: ProfileOf(q.From), chatID: q.From.ID}
	if q.Message != nil && q.Message.Chat != nil {
		r.chatID = q.Message.Chat.ID
	}

	var err error
	switch {
	case strings.HasPrefix(q.Data, telegram.CallbackCloseConfirm):
		err = d.confirmClose(r, strings.TrimPrefix(q.Data, telegram.CallbackCloseConfirm))
	case strings.HasPrefix(q.Data, telegram.CallbackAddReview):
		err = d.startReview(r, strings.TrimPrefix(q.Data, telegram.CallbackAddReview))
	default:
		d.log.Debug().Str("data", q.Data).Msg("unknown callback")
	}
	if err != nil {
		d.replyError(r, err)
	}

	if _, err := d.api.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		d.log.Warn().Err(err).Str("callback_id", q.ID).Msg("failed to answer callback")
	}
}

func closerName(p membership.Profile) string {
	switch {
	case p.FullName != "":
		return p.FullName
	case p.Username != "":
		return "@" + p.Username
	}
	return strconv.FormatInt(p.UserID, 10)
}

func (d *Dispatcher) confirmClose(r request, raw string) error {
	roomID, err := parseID(raw)
	if err != nil {
		return err
	}
	closure, err := d.lifecycle.CloseByCustomer(r.ctx, r.actor.UserID, closerName(r.actor), roomID)
	if err != nil {
		return err
	}
	d.reply(r, "⭐ <b>Оставьте отзыв</b>\n\nЗаказ «"+html.EscapeString(closure.Room.Name)+
		"» закрыт. Напишите отзыв о работе одним сообщением или /cancel чтобы пропустить.")
	return nil
}

func (d *Dispatcher) startReview(r request, raw string) error {
	roomID, err := parseID(raw)
	if err != nil {
		return err
	}
	entry, err := d.lifecycle.StartReview(r.ctx, r.actor.UserID, roomID)
	if err != nil {
		return err
	}
	d.reply(r, "⭐ <b>Отзыв о заказе «"+html.EscapeString(entry.RoomName)+"»</b>\n\nНапишите отзыв одним сообщением.")
	return nil
}

func (d *Dispatcher) reply(r request, text string) {
	d.send(r, text, nil)
}

func (d *Dispatcher) send(r request, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(r.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := d.api.Send(msg); err != nil {
		d.log.Warn().Err(err).Int64("chat_id", r.chatID).Msg("failed to send reply")
	}
}

func (d *Dispatcher) replyError(r request, err error) {
	code := apperror.CodeOf(err)
	if code == apperror.ErrorCodeInternal {
		d.log.Error().Err(err).Int64("actor_id", r.actor.UserID).Msg("request failed")
	}
	d.reply(r, errorText(err))
}

func errorText(err error) string {
	switch apperror.CodeOf(err) {
	case apperror.ErrorCodeValidation:
		return "⚠️ <b>Неверный ввод</b>\n\n" + html.EscapeString(err.Error())
	case apperror.ErrorCodeForbidden:
		return "🚫 <b>Нет доступа</b>\n\n" + html.EscapeString(err.Error())
	case apperror.ErrorCodeNotFound:
		return "❌ <b>Не найдено</b>\n\n" + html.EscapeString(err.Error())
	case apperror.ErrorCodeAlreadyClosed:
		return "ℹ️ <b>Заказ уже закрыт</b>"
	case apperror.ErrorCodeDuplicateReview:
		return "ℹ️ <b>Вы уже оставили отзыв по этому заказу</b>"
	}
	return "❌ <b>Ошибка</b>\n\nПопробуйте позже."
}

// notice delivers a notice to someone other than the current sender.
func (d *Dispatcher) notice(ctx context.Context, recipient int64, env notify.Envelope) {
	results := d.fanout.Send(ctx, []notify.Delivery{{Recipient: recipient, Envelopes: []notify.Envelope{env}}})
	if failed := notify.Failed(results); len(failed) > 0 {
		d.log.Warn().Err(failed[0].Err).Int64("recipient_id", recipient).Str("notice", string(env.Notice)).Msg("notice not delivered")
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("expected a numeric id, got " + strconv.Quote(strings.TrimSpace(raw)))
	}
	return id, nil
}

// parsePair reads the legacy "a | b" input.
func parsePair(raw string) (string, string, error) {
	left, right, ok := strings.Cut(raw, "|")
	if !ok {
		return "", "", apperror.Validation("expected two values separated by |")
	}
	return strings.TrimSpace(left), strings.TrimSpace(right), nil
}
