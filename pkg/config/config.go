package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port    string
		Env     string
		Timeout time.Duration
		BaseURL string
	}

	// Database configuration
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// Redis configuration
	Redis struct {
		Addr          string
		Password      string
		DB            int
		ChannelPrefix string
		MentionTTL    time.Duration
	}

	// JWT configuration
	JWT struct {
		Secret string
		Expiry time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Chat behaviour
	Chat struct {
		PageSize         int
		HistoryWindow    int
		FreeMessageLimit int
		TimeframeDays    int
		RevealDuration   time.Duration
		RevealSteps      int
		Currency         string
		ExecutionMode    string
		DataSource       string
		SessionIdleTTL   time.Duration
	}

	// Service endpoints
	Services struct {
		WebhookURL          string
		WebhookTimeout      time.Duration
		ExecutionServiceURL string
		ExecutionTimeout    time.Duration
	}

	// Cache settings
	Cache struct {
		TTL         time.Duration
		MaxSize     int
		PurgeWindow time.Duration
	}

	// Vault settings
	Vault struct {
		Enabled   bool
		Address   string
		Token     string
		MountPath string
		Path      string
	}

	// Observability settings
	Observability struct {
		ServiceName    string
		TracingEnabled bool
		MetricsEnabled bool
		GRPCPort       string
		HealthInterval time.Duration
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		godotenv.Load()

		instance = &Config{}

		// Server config
		instance.Server.Port = getEnvString("PORT", "8081")
		instance.Server.Env = getEnvString("APP_ENV", "development")
		instance.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)
		instance.Server.BaseURL = getEnvString("BASE_URL", "http://localhost:"+instance.Server.Port)

		// Database config
		instance.Database.Host = getEnvString("DB_HOST", "localhost")
		instance.Database.Port = getEnvString("DB_PORT", "5432")
		instance.Database.User = getEnvString("DB_USER", "postgres")
		instance.Database.Password = getEnvString("DB_PASSWORD", "postgres")
		instance.Database.Name = getEnvString("DB_NAME", "ad-assistant")
		instance.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
		instance.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
		instance.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

		// Redis config
		instance.Redis.Addr = getEnvString("REDIS_URL", "localhost:6379")
		instance.Redis.Password = getEnvString("REDIS_PASSWORD", "")
		instance.Redis.DB = getEnvInt("REDIS_DB", 0)
		instance.Redis.ChannelPrefix = getEnvString("REDIS_CHANNEL_PREFIX", "chat-messages")
		instance.Redis.MentionTTL = getEnvDuration("LAST_MENTIONED_TTL", 30*24*time.Hour)

		// JWT config
		instance.JWT.Secret = getEnvString("JWT_SECRET", DefaultJWTSecret)
		instance.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)

		// Security config
		instance.Security.RateLimit = float64(getEnvInt("RATE_LIMIT", 5))
		instance.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
		instance.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
		instance.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
		instance.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20) // 1MB

		// Logging config
		instance.Logging.Level = getEnvString("LOG_LEVEL", "info")
		instance.Logging.Format = getEnvString("LOG_FORMAT", "json")

		// Chat config
		instance.Chat.PageSize = getEnvInt("CHAT_PAGE_SIZE", 200)
		instance.Chat.HistoryWindow = getEnvInt("CHAT_HISTORY_WINDOW", 6)
		instance.Chat.FreeMessageLimit = getEnvInt("FREE_MESSAGE_LIMIT", 10)
		instance.Chat.TimeframeDays = getEnvInt("CHAT_TIMEFRAME_DAYS", 7)
		instance.Chat.RevealDuration = getEnvDuration("CHAT_REVEAL_DURATION", 400*time.Millisecond)
		instance.Chat.RevealSteps = getEnvInt("CHAT_REVEAL_STEPS", 20)
		instance.Chat.Currency = getEnvString("CHAT_CURRENCY", "USD")
		instance.Chat.ExecutionMode = getEnvString("CHAT_EXECUTION_MODE", "production")
		instance.Chat.DataSource = getEnvString("CHAT_DATA_SOURCE", "meta")
		instance.Chat.SessionIdleTTL = getEnvDuration("CHAT_SESSION_IDLE_TTL", 5*time.Minute)

		// Service endpoints
		instance.Services.WebhookURL = getEnvString("WEBHOOK_URL", "")
		instance.Services.WebhookTimeout = getEnvDuration("WEBHOOK_TIMEOUT", 120*time.Second)
		instance.Services.ExecutionServiceURL = getEnvString("EXECUTION_SERVICE_URL", "")
		instance.Services.ExecutionTimeout = getEnvDuration("EXECUTION_TIMEOUT", 60*time.Second)

		// Cache settings
		instance.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
		instance.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 1000)
		instance.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

		// Vault settings
		instance.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
		instance.Vault.Address = getEnvString("VAULT_ADDR", "http://localhost:8200")
		instance.Vault.Token = getEnvString("VAULT_TOKEN", "")
		instance.Vault.MountPath = getEnvString("VAULT_MOUNT_PATH", "secret")
		instance.Vault.Path = getEnvString("VAULT_SECRET_PATH", "ad-assistant")

		// Observability settings
		instance.Observability.ServiceName = getEnvString("SERVICE_NAME", "ad-assistant")
		instance.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
		instance.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
		instance.Observability.GRPCPort = getEnvString("GRPC_HEALTH_PORT", "9091")
		instance.Observability.HealthInterval = getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second)
	})

	return instance
}

// DefaultJWTSecret is used when JWT_SECRET is unset. It is refused in production.
const DefaultJWTSecret = "default-jwt-secret-do-not-use-in-production"

// Validate reports settings the server cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Env == "production" && c.JWT.Secret == DefaultJWTSecret {
		errs = append(errs, errors.New("JWT_SECRET must be set in production"))
	}
	if c.Services.WebhookURL == "" {
		errs = append(errs, errors.New("WEBHOOK_URL is required"))
	}
	if c.Chat.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("CHAT_PAGE_SIZE must be positive, got %d", c.Chat.PageSize))
	}
	if c.Chat.FreeMessageLimit < 0 {
		errs = append(errs, fmt.Errorf("FREE_MESSAGE_LIMIT must not be negative, got %d", c.Chat.FreeMessageLimit))
	}
	switch c.Chat.DataSource {
	case "", "meta", "shopify":
	default:
		errs = append(errs, fmt.Errorf("CHAT_DATA_SOURCE must be meta or shopify, got %q", c.Chat.DataSource))
	}
	return errors.Join(errs...)
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return defaultValue
}
