package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	Session  SessionConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines webhook authentication parameters. The messaging
// gateway signs each inbound call with an HS256 token.
type AuthConfig struct {
	WebhookJWTSecret       string
	WebhookTokenTTLMinutes int
}

// GatewayConfig describes the messaging gateway and the channels the
// engine posts to.
type GatewayConfig struct {
	BaseURL                string
	SupportChannelID       string
	FeedbackChannelID      string
	TicketNumberPrefix     string
	AdminIDs               []string
	DeliveryTimeoutSeconds int
}

// SessionConfig controls per-user conversational state.
type SessionConfig struct {
	TTLMinutes int
	MaxEntries int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-relay"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			WebhookJWTSecret:       getEnv("WEBHOOK_JWT_SECRET", "dev-secret"),
			WebhookTokenTTLMinutes: getEnvAsInt("WEBHOOK_TOKEN_TTL_MINUTES", 60),
		},
		Gateway: GatewayConfig{
			BaseURL:                getEnv("GATEWAY_BASE_URL", ""),
			SupportChannelID:       getEnv("GATEWAY_SUPPORT_CHANNEL_ID", ""),
			FeedbackChannelID:      getEnv("GATEWAY_FEEDBACK_CHANNEL_ID", ""),
			TicketNumberPrefix:     getEnv("TICKET_NUMBER_PREFIX", "BH"),
			AdminIDs:               splitList(os.Getenv("ADMIN_IDS")),
			DeliveryTimeoutSeconds: getEnvAsInt("GATEWAY_DELIVERY_TIMEOUT_SECONDS", 10),
		},
		Session: SessionConfig{
			TTLMinutes: getEnvAsInt("SESSION_TTL_MINUTES", 30),
			MaxEntries: getEnvAsInt("SESSION_MAX_ENTRIES", 10000),
		},
	}

	if cfg.Gateway.SupportChannelID == "" {
		return nil, fmt.Errorf("GATEWAY_SUPPORT_CHANNEL_ID is required")
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// DeliveryTimeout bounds one outbound gateway call.
func (g GatewayConfig) DeliveryTimeout() time.Duration {
	if g.DeliveryTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(g.DeliveryTimeoutSeconds) * time.Second
}

// IsAdmin reports whether id belongs to the static administrator allowlist.
func (g GatewayConfig) IsAdmin(id string) bool {
	for _, admin := range g.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// TTL returns the session expiry duration.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.TTLMinutes) * time.Minute
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
