package env

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	BotToken         = "BOT_TOKEN"
	AdminIDs         = "ADMIN_IDS"
	WebhookURL       = "WEBHOOK_URL"
	WebhookSecret    = "WEBHOOK_SECRET"
	ListenAddr       = "LISTEN_ADDR"
	WSListenAddr     = "WS_LISTEN_ADDR"
	StoreBackend     = "STORE_BACKEND"
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	TablePrefix      = "TABLE_PREFIX"
	PostgresDSN      = "POSTGRES_DSN"
	SessionBackend   = "SESSION_BACKEND"
	SessionRedisURL  = "SESSION_REDIS_URL"
	SessionRedisPass = "SESSION_REDIS_PASS"
	ChatRedisURL     = "CHAT_REDIS_URL"
	ChatRedisPass    = "CHAT_REDIS_PASS"
	ConsoleSecret    = "CONSOLE_SECRET"
	ConsoleURL       = "CONSOLE_URL"
	LogLevel         = "LOG_LEVEL"
	LogPretty        = "LOG_PRETTY"
	DeliveryWorkers  = "DELIVERY_WORKERS"
	DeliveryQueue    = "DELIVERY_QUEUE"
)

var (
	v    *viper.Viper
	once sync.Once
)

func store() *viper.Viper {
	once.Do(func() {
		v = viper.New()
		v.SetConfigName("workbot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AutomaticEnv()
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

		v.SetDefault(ListenAddr, ":8080")
		v.SetDefault(WSListenAddr, ":8083")
		v.SetDefault(StoreBackend, "dynamo")
		v.SetDefault(SessionBackend, "redis")
		v.SetDefault(LogLevel, "info")
		v.SetDefault(DeliveryWorkers, 8)
		v.SetDefault(DeliveryQueue, 256)

		// a missing file is fine, the environment is the primary source
		_ = v.ReadInConfig()
	})
	return v
}

func Get(key string) string {
	return store().GetString(key)
}

func GetOrDefault(key, defaultVal string) string {
	val := store().GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func MustGet(key string) string {
	val := store().GetString(key)
	if val == "" {
		panic("env: required environment variable not set: " + key)
	}
	return val
}

func GetInt(key string) int {
	return store().GetInt(key)
}

func GetBool(key string) bool {
	return store().GetBool(key)
}

// Config is the validated view of the environment shared by the binaries.
type Config struct {
	BotToken         string  `validate:"required"`
	AdminIDs         []int64 `validate:"min=1,dive,gt=0"`
	WebhookURL       string  `validate:"omitempty,url"`
	WebhookSecret    string
	ListenAddr       string  `validate:"required"`
	WSListenAddr     string  `validate:"required"`
	StoreBackend     string  `validate:"oneof=dynamo postgres memory"`
	AWSRegion        string  `validate:"required_if=StoreBackend dynamo"`
	AWSID            string
	AWSSecret        string
	AWSToken         string
	DynamoDBEndpoint string `validate:"omitempty,url"`
	TablePrefix      string
	PostgresDSN      string `validate:"required_if=StoreBackend postgres"`
	SessionBackend   string `validate:"oneof=redis memory"`
	SessionRedisURL  string `validate:"required_if=SessionBackend redis"`
	SessionRedisPass string
	ChatRedisURL     string
	ChatRedisPass    string
	ConsoleSecret    string
	ConsoleURL       string `validate:"omitempty,url"`
	LogLevel         string `validate:"oneof=trace debug info warn error"`
	LogPretty        bool
	DeliveryWorkers  int `validate:"gte=1,lte=256"`
	DeliveryQueue    int `validate:"gte=1"`
}

func Load() (Config, error) {
	admins, err := ParseAdminIDs(Get(AdminIDs))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		BotToken:         Get(BotToken),
		AdminIDs:         admins,
		WebhookURL:       Get(WebhookURL),
		WebhookSecret:    Get(WebhookSecret),
		ListenAddr:       Get(ListenAddr),
		WSListenAddr:     Get(WSListenAddr),
		StoreBackend:     strings.ToLower(Get(StoreBackend)),
		AWSRegion:        Get(AWSRegion),
		AWSID:            Get(AWSID),
		AWSSecret:        Get(AWSSecret),
		AWSToken:         Get(AWSToken),
		DynamoDBEndpoint: Get(DynamoDBEndpoint),
		TablePrefix:      Get(TablePrefix),
		PostgresDSN:      Get(PostgresDSN),
		SessionBackend:   strings.ToLower(Get(SessionBackend)),
		SessionRedisURL:  Get(SessionRedisURL),
		SessionRedisPass: Get(SessionRedisPass),
		ChatRedisURL:     Get(ChatRedisURL),
		ChatRedisPass:    Get(ChatRedisPass),
		ConsoleSecret:    Get(ConsoleSecret),
		ConsoleURL:       Get(ConsoleURL),
		LogLevel:         strings.ToLower(Get(LogLevel)),
		LogPretty:        GetBool(LogPretty),
		DeliveryWorkers:  GetInt(DeliveryWorkers),
		DeliveryQueue:    GetInt(DeliveryQueue),
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("env: invalid configuration: %w", err)
	}
	return nil
}

// ParseAdminIDs reads a comma separated list of numeric ids, skipping blanks.
func ParseAdminIDs(raw string) ([]int64, error) {
	ids := make([]int64, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("env: %s contains a non numeric id %q", AdminIDs, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
