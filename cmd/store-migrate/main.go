package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ThomasGodWeb/WorkBot/internal/database"
	"github.com/ThomasGodWeb/WorkBot/internal/env"
	"github.com/ThomasGodWeb/WorkBot/internal/logger"
	"github.com/ThomasGodWeb/WorkBot/internal/store"

	"github.com/rs/zerolog"
)

func main() {
	log := logger.New(env.GetOrDefault(env.LogLevel, "info"), env.GetBool(env.LogPretty))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := migrate(ctx, strings.ToLower(env.Get(env.StoreBackend)), log); err != nil {
		log.Error().Err(err).Msg("migration failed")
		os.Exit(1)
	}
}

func migrate(ctx context.Context, backend string, log zerolog.Logger) error {
	switch backend {
	case "dynamo":
		db, err := database.NewDatabase(ctx, database.Options{
			Region:       env.MustGet(env.AWSRegion),
			AccessKey:    env.Get(env.AWSID),
			SecretKey:    env.Get(env.AWSSecret),
			SessionToken: env.Get(env.AWSToken),
			Endpoint:     env.Get(env.DynamoDBEndpoint),
			TablePrefix:  env.Get(env.TablePrefix),
		})
		if err != nil {
			return err
		}
		created, err := db.Client.EnsureTables(ctx, store.DynamoTables(db))
		if err != nil {
			return err
		}
		log.Info().Strs("created", created).Msg("dynamodb tables ready")
		return nil

	case "postgres":
		db, err := store.OpenPostgres(env.MustGet(env.PostgresDSN))
		if err != nil {
			return err
		}
		if err := store.NewGormStore(db).AutoMigrate(); err != nil {
			return err
		}
		log.Info().Int("models", len(store.Models())).Msg("postgres schema migrated")
		return nil
	}
	return fmt.Errorf("store backend %q has no schema to migrate", backend)
}
