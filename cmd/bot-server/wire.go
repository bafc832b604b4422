package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThomasGodWeb/WorkBot/internal/api"
	"github.com/ThomasGodWeb/WorkBot/internal/api/endpoints"
	"github.com/ThomasGodWeb/WorkBot/internal/api/middleware"
	"github.com/ThomasGodWeb/WorkBot/internal/api/router"
	"github.com/ThomasGodWeb/WorkBot/internal/bot"
	"github.com/ThomasGodWeb/WorkBot/internal/database"
	"github.com/ThomasGodWeb/WorkBot/internal/env"
	"github.com/ThomasGodWeb/WorkBot/internal/jwt"
	"github.com/ThomasGodWeb/WorkBot/internal/keylock"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/notify/telegram"
	"github.com/ThomasGodWeb/WorkBot/internal/queue"
	"github.com/ThomasGodWeb/WorkBot/internal/service/inbox"
	"github.com/ThomasGodWeb/WorkBot/internal/service/lifecycle"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"
	"github.com/ThomasGodWeb/WorkBot/internal/service/relay"
	"github.com/ThomasGodWeb/WorkBot/internal/session"
	"github.com/ThomasGodWeb/WorkBot/internal/store"
	"github.com/ThomasGodWeb/WorkBot/internal/websocket"

	"github.com/go-redis/redis/v8"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const apiPrefix = "/api"

func openStore(ctx context.Context, cfg env.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "dynamo":
		db, err := database.NewDatabase(ctx, database.Options{
			Region:       cfg.AWSRegion,
			AccessKey:    cfg.AWSID,
			SecretKey:    cfg.AWSSecret,
			SessionToken: cfg.AWSToken,
			Endpoint:     cfg.DynamoDBEndpoint,
			TablePrefix:  cfg.TablePrefix,
		})
		if err != nil {
			return nil, err
		}
		return store.NewDynamoStore(db), nil
	case "postgres":
		db, err := store.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store.NewGormStore(db), nil
	case "memory":
		return store.NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

func openSessions(ctx context.Context, cfg env.Config) (session.Store, func() error, error) {
	if cfg.SessionBackend != "redis" {
		return session.NewMemoryStore(), func() error { return nil }, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.SessionRedisURL,
		Password: cfg.SessionRedisPass,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("session redis: %w", err)
	}
	return session.NewRedisStore(client), client.Close, nil
}

// openEvents publishes console events to Redis when a chat Redis is configured.
func openEvents(cfg env.Config) (notify.EventSink, func() error) {
	if cfg.ChatRedisURL == "" {
		return notify.NopSink{}, func() error { return nil }
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.ChatRedisURL,
		Password: cfg.ChatRedisPass,
		DB:       0,
	})
	return websocket.NewPublisher(client), client.Close
}

func run(ctx context.Context, cfg env.Config, log zerolog.Logger) error {
	tg, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	log.Info().Str("bot", tg.Self.UserName).Msg("telegram connected")

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	sessions, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()
	events, closeEvents := openEvents(cfg)
	defer closeEvents()

	deliveries := queue.NewNamed("deliveries", cfg.DeliveryQueue, cfg.DeliveryWorkers, log)
	defer deliveries.Shutdown()
	fanout := notify.NewFanout(telegram.NewChannel(tg), deliveries, notify.NewMetrics(prometheus.DefaultRegisterer), log)

	rooms := keylock.New(keylock.DefaultStripes)
	members := membership.New(repo, sessions, cfg.AdminIDs, log)
	inboxSvc := inbox.New(inbox.Deps{Repo: repo, Members: members, Sessions: sessions, Fanout: fanout, Events: events, Log: log})
	life := lifecycle.New(lifecycle.Deps{Repo: repo, Members: members, Sessions: sessions, Fanout: fanout, Rooms: rooms, Events: events, Log: log})
	engine := relay.New(relay.Deps{Repo: repo, Members: members, Sessions: sessions, Inbox: inboxSvc, Fanout: fanout, Rooms: rooms, Events: events, Log: log})

	var issuer *jwt.Issuer
	var console bot.ConsoleIssuer
	if cfg.ConsoleSecret != "" {
		issuer = jwt.NewIssuer(cfg.ConsoleSecret, jwt.DefaultTTL)
		console = issuer
	}

	dispatcher := bot.New(bot.Deps{
		API:        tg,
		Members:    members,
		Lifecycle:  life,
		Relay:      engine,
		Inbox:      inboxSvc,
		Sessions:   sessions,
		Fanout:     fanout,
		Console:    console,
		ConsoleURL: cfg.ConsoleURL,
		Log:        log,
	})

	registrars := []api.RouteRegistrar{router.UtilsRoutes(apiPrefix)}
	if issuer != nil {
		registrars = append(registrars, router.ConsoleRoutes(apiPrefix, endpoints.ConsoleServices{
			Members:   members,
			Lifecycle: life,
			Relay:     engine,
			Inbox:     inboxSvc,
		}, issuer))
	}

	if cfg.WebhookURL != "" {
		if !strings.HasSuffix(cfg.WebhookURL, apiPrefix+router.WebhookPath) {
			log.Warn().Str("webhook_url", cfg.WebhookURL).Msg("webhook url does not end in " + apiPrefix + router.WebhookPath)
		}
		registrars = append(registrars, router.TelegramRoutes(apiPrefix, dispatcher, cfg.WebhookSecret))
		params := tgbotapi.Params{"url": cfg.WebhookURL}
		params.AddNonEmpty("secret_token", cfg.WebhookSecret)
		if _, err := tg.MakeRequest("setWebhook", params); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		log.Info().Str("webhook_url", cfg.WebhookURL).Msg("receiving updates by webhook")
	} else {
		if _, err := tg.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := tg.GetUpdatesChan(u)
		go func() {
			<-ctx.Done()
			tg.StopReceivingUpdates()
		}()
		dispatched := make(chan struct{})
		go func() {
			defer close(dispatched)
			dispatcher.Run(ctx, updates)
		}()
		// deliveries must outlive the last update handled
		defer func() { <-dispatched }()
		log.Info().Msg("receiving updates by long polling")
	}

	requests := queue.NewNamed("requests", 64, 16, log)
	defer requests.Shutdown()
	server := api.NewAPIServer(cfg.ListenAddr, requests, log, prometheus.DefaultRegisterer, registrars...)
	if origin := middleware.OriginOf(cfg.ConsoleURL); origin != "" {
		server.WithAllowedOrigins(origin)
	}
	return server.Run(ctx)
}
