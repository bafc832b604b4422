package endpoints

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// UpdateHandler consumes one Telegram update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u tgbotapi.Update)
}

type TelegramEndpoints interface {
	Webhook(http.ResponseWriter, *http.Request) error
}

type telegramEndpoints struct {
	handler UpdateHandler
	secret  string
}

// NewTelegramEndpoints accepts webhook calls. An empty secret skips the header check.
func NewTelegramEndpoints(handler UpdateHandler, secret string) TelegramEndpoints {
	return &telegramEndpoints{handler: handler, secret: secret}
}

func (h *telegramEndpoints) Webhook(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodPost: h.handleUpdate,
	})
}

func (h *telegramEndpoints) handleUpdate(w http.ResponseWriter, r *http.Request) error {
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretTokenHeader)), []byte(h.secret)) != 1 {
		return &HTTPError{
			StatusCode: http.StatusUnauthorized,
			Message:    "Unauthorized",
			ErrorLog:   fmt.Errorf("webhook secret mismatch"),
		}
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&update); err != nil {
		return &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid update",
			ErrorLog:   err,
		}
	}

	// Telegram may drop the connection; the update is still ours to finish.
	h.handler.HandleUpdate(context.WithoutCancel(r.Context()), update)
	return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "ok"})
}
