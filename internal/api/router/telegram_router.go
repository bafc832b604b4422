package router

import (
	"net/http"

	"github.com/ThomasGodWeb/WorkBot/internal/api"
	"github.com/ThomasGodWeb/WorkBot/internal/api/endpoints"
)

// WebhookPath is where Telegram posts updates, relative to the route prefix.
const WebhookPath = "/telegram/webhook"

func TelegramRoutes(prefix string, handler endpoints.UpdateHandler, secret string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		telegramEndpoints := endpoints.NewTelegramEndpoints(handler, secret)
		mux.HandleFunc(prefix+WebhookPath, s.MakeHTTPHandleFunc(telegramEndpoints.Webhook))
	}
}
