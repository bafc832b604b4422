package router

import (
	"net/http"
	"strings"

	"github.com/ThomasGodWeb/WorkBot/internal/api"
	"github.com/ThomasGodWeb/WorkBot/internal/api/endpoints"
	"github.com/ThomasGodWeb/WorkBot/internal/api/middleware"
	"github.com/ThomasGodWeb/WorkBot/internal/jwt"
)

func ConsoleRoutes(prefix string, services endpoints.ConsoleServices, issuer *jwt.Issuer) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		base := strings.TrimRight(prefix, "/") + "/console"
		consoleEndpoints := endpoints.NewConsoleEndpoints(services, endpoints.ConsolePaths{
			RoomPrefix:    base + "/rooms/",
			HistoryPrefix: base + "/history/",
		})
		auth := middleware.ValidateOperatorJWT(issuer)

		mux.HandleFunc(base+"/me", s.MakeHTTPHandleFunc(consoleEndpoints.Session, auth))
		mux.HandleFunc(base+"/rooms", s.MakeHTTPHandleFunc(consoleEndpoints.Rooms, auth))
		mux.HandleFunc(base+"/rooms/", s.MakeHTTPHandleFunc(consoleEndpoints.Room, auth))
		mux.HandleFunc(base+"/history", s.MakeHTTPHandleFunc(consoleEndpoints.History, auth))
		mux.HandleFunc(base+"/history/", s.MakeHTTPHandleFunc(consoleEndpoints.HistoryEntry, auth))
		mux.HandleFunc(base+"/reviews", s.MakeHTTPHandleFunc(consoleEndpoints.Reviews, auth))
		mux.HandleFunc(base+"/chats", s.MakeHTTPHandleFunc(consoleEndpoints.Threads, auth))
	}
}
