package router

import (
	"net/http"
	"strings"

	"github.com/ThomasGodWeb/WorkBot/internal/api"
	"github.com/ThomasGodWeb/WorkBot/internal/api/endpoints"
	"github.com/ThomasGodWeb/WorkBot/internal/api/middleware"
	"github.com/ThomasGodWeb/WorkBot/internal/jwt"
	"github.com/ThomasGodWeb/WorkBot/internal/websocket"
)

func WebsocketRoutes(prefix string, handler *websocket.Handler, issuer *jwt.Issuer) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/") + "/ws/rooms"
		wsEndpoints := endpoints.NewWebsocketEndpoints(handler, base+"/")
		auth := middleware.ValidateOperatorJWT(issuer)

		mux.HandleFunc(base, s.MakeHTTPHandleFunc(wsEndpoints.Rooms, auth))
		mux.HandleFunc(base+"/", s.MakeHTTPHandleFunc(wsEndpoints.Room, auth))
	}
}
