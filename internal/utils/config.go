package utils

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerPort string
	GinMode    string
	Mongo      MongoConfig
	Redis      RedisConfig
	Logging    LoggingConfig
	Completion CompletionConfig
	Limits     LimitsConfig
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// RedisConfig is optional; an empty Addr disables the per-user turn lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Development  bool
	EnableCaller bool
	ServiceName  string
}

type CompletionConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Placeholder string
}

type LimitsConfig struct {
	BurstWindow time.Duration
	BurstLimit  int64
	DailyLimit  int64
}

func LoadConfig() (*Config, error) {
	logging := LoggingConfig{
		Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "console")),
		Development:  parseBool(envOrDefault("LOG_DEVELOPMENT", "false"), false),
		EnableCaller: parseBool(envOrDefault("LOG_CALLER", "false"), false),
		ServiceName:  envOrDefault("SERVICE_NAME", "chatquota"),
	}

	cfg := &Config{
		ServerPort: envOrDefault("PORT", "8000"),
		GinMode:    envOrDefault("GIN_MODE", "release"),
		Mongo:      mongoConfigFromEnv(),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       parseInt(envOrDefault("REDIS_DB", "0"), 0),
			LockTTL:  parseDuration(envOrDefault("TURN_LOCK_TTL", "60s"), time.Minute),
		},
		Logging: logging,
		Completion: CompletionConfig{
			BaseURL:     strings.TrimRight(envOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"), "/"),
			APIKey:      strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
			Model:       envOrDefault("OPENROUTER_MODEL", "mistralai/mistral-7b-instruct:free"),
			Timeout:     parseDuration(envOrDefault("COMPLETION_TIMEOUT", "60s"), time.Minute),
			Placeholder: envOrDefault("COMPLETION_PLACEHOLDER", "todo"),
		},
		Limits: LimitsConfig{
			BurstWindow: parseDuration(envOrDefault("BURST_WINDOW", "30s"), 30*time.Second),
			BurstLimit:  int64(parseInt(envOrDefault("BURST_LIMIT", "3"), 3)),
			DailyLimit:  int64(parseInt(envOrDefault("DAILY_LIMIT", "20"), 20)),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	missing := make([]string, 0, 2)
	if c.Mongo.URI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if c.Completion.APIKey == "" {
		missing = append(missing, "OPENROUTER_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Limits.BurstWindow <= 0 || c.Limits.BurstLimit <= 0 || c.Limits.DailyLimit <= 0 {
		return fmt.Errorf("config: rate limits must be positive")
	}

	return nil
}

// LoadMongoConfig reads only the document store settings, for tools that do
// not talk to the completion provider.
func LoadMongoConfig() (MongoConfig, error) {
	cfg := mongoConfigFromEnv()
	if cfg.URI == "" {
		return cfg, fmt.Errorf("config: missing required environment variables: MONGO_URI")
	}
	return cfg, nil
}

func mongoConfigFromEnv() MongoConfig {
	return MongoConfig{
		URI:            mongoURIFromEnv(),
		Database:       envOrDefault("MONGO_DATABASE", envOrDefault("MONGO_DB_NAME", "simplylab")),
		ConnectTimeout: parseDuration(envOrDefault("MONGO_CONNECT_TIMEOUT", "5s"), 5*time.Second),
	}
}

// mongoURIFromEnv prefers MONGO_URI and otherwise assembles one from the
// discrete MONGO_HOST/MONGO_PORT/MONGO_USERNAME/MONGO_PASSWORD variables.
func mongoURIFromEnv() string {
	if uri := strings.TrimSpace(os.Getenv("MONGO_URI")); uri != "" {
		return uri
	}

	username := strings.TrimSpace(os.Getenv("MONGO_USERNAME"))
	if username == "" {
		return ""
	}

	host := envOrDefault("MONGO_HOST", "localhost")
	port := envOrDefault("MONGO_PORT", "27017")
	userInfo := url.UserPassword(username, os.Getenv("MONGO_PASSWORD"))

	return fmt.Sprintf("mongodb://%s@%s:%s/", userInfo.String(), host, port)
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseInt(value string, fallback int) int {
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return i
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}
