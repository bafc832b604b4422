package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThomasGodWeb/WorkBot/internal/api"
	"github.com/ThomasGodWeb/WorkBot/internal/api/middleware"
	"github.com/ThomasGodWeb/WorkBot/internal/api/router"
	"github.com/ThomasGodWeb/WorkBot/internal/env"
	"github.com/ThomasGodWeb/WorkBot/internal/jwt"
	"github.com/ThomasGodWeb/WorkBot/internal/logger"
	"github.com/ThomasGodWeb/WorkBot/internal/queue"
	"github.com/ThomasGodWeb/WorkBot/internal/websocket"

	"github.com/go-redis/redis/v8"
)

func main() {
	log := logger.New(env.GetOrDefault(env.LogLevel, "info"), env.GetBool(env.LogPretty))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := redis.NewClient(&redis.Options{
		Addr:     env.MustGet(env.ChatRedisURL),
		Password: env.Get(env.ChatRedisPass),
		DB:       0,
	})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("chat redis unreachable")
	}

	issuer := jwt.NewIssuer(env.MustGet(env.ConsoleSecret), jwt.DefaultTTL)

	queueManager := queue.NewNamed("requests", 10, 10, log)
	defer queueManager.Shutdown()

	hub := websocket.NewHub()
	handler := websocket.NewHandler(ctx, hub, client, log)
	// the firehose channel carries every event, inbox included
	handler.CreateRoom(websocket.ChannelAll)

	server := api.NewAPIServer(
		env.Get(env.WSListenAddr),
		queueManager,
		log,
		nil,
		router.UtilsRoutes("/api/ws/v1"),
		router.WebsocketRoutes("/api/ws/v1", handler, issuer),
	)
	if origin := middleware.OriginOf(env.Get(env.ConsoleURL)); origin != "" {
		server.WithAllowedOrigins(origin)
	}

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("ws-server stopped")
	}
}
