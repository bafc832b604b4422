package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThomasGodWeb/WorkBot/internal/notify"

	"github.com/go-redis/redis/v8"
)

// ChannelAll is the console room that sees every event.
const ChannelAll = "all"

func ChannelName(room string) string {
	return "workbot:console:" + room
}

// Publisher mirrors room events onto Redis so every console server sees them.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, event notify.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("websocket publish: marshal event: %w", err)
	}

	channels := []string{ChannelName(ChannelAll)}
	if event.RoomID != 0 {
		channels = append(channels, ChannelName(strconv.FormatInt(event.RoomID, 10)))
	}
	for _, ch := range channels {
		if err := p.client.Publish(ctx, ch, payload).Err(); err != nil {
			return fmt.Errorf("websocket publish: redis publish: %w", err)
		}
	}
	return nil
}

var _ notify.EventSink = (*Publisher)(nil)
