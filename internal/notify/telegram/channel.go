// Package telegram delivers notify envelopes through the Bot API.
package telegram

import (
	"context"
	"fmt"

	"github.com/ThomasGodWeb/WorkBot/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the channel needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Channel struct {
	bot Sender
}

func NewChannel(bot Sender) *Channel {
	return &Channel{bot: bot}
}

func (c *Channel) Deliver(ctx context.Context, recipient int64, env notify.Envelope) error {
	calls := Render(recipient, env)
	if len(calls) == 0 {
		return nil
	}
	for _, call := range calls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := c.bot.Send(call); err != nil {
			return fmt.Errorf("telegram send to %d: %w", recipient, err)
		}
	}
	return nil
}

var _ notify.Channel = (*Channel)(nil)
