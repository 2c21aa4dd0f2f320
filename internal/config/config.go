package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	HTTPAddr string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ClaimStore selects the idempotency claim backend: "gorm" or "redis".
	ClaimStore string

	// ClaimTTL bounds how long redis claim keys live. Zero keeps claims
	// forever; expiring them forfeits replay protection for older events.
	ClaimTTL time.Duration

	StripeWebhookSecret string
	TwitchWebhookSecret string
	TrovoWebhookSecret  string

	// ReplayMaxSkew bounds how far a provider-claimed timestamp may drift
	// from the server clock before the delivery is rejected as a replay.
	ReplayMaxSkew time.Duration

	// CreditTimeout bounds each Account Ledger credit call.
	CreditTimeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "streamcred"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "streamcred"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),

		ClaimStore: strings.ToLower(strings.TrimSpace(getenv("CLAIM_STORE", "gorm"))),
		ClaimTTL:   getenvDuration("CLAIM_TTL", 0),

		StripeWebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		TwitchWebhookSecret: strings.TrimSpace(getenv("TWITCH_WEBHOOK_SECRET", "")),
		TrovoWebhookSecret:  strings.TrimSpace(getenv("TROVO_WEBHOOK_SECRET", "")),

		ReplayMaxSkew: getenvDuration("REPLAY_MAX_SKEW", 10*time.Minute),
		CreditTimeout: getenvDuration("CREDIT_TIMEOUT", 5*time.Second),
	}
}

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRewardTableHolder),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
