package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Backend    BackendConfig
	Storage    StorageConfig
	PostgreSQL PostgreSQLConfig
	Search     SearchConfig
	Voice      VoiceConfig
	Image      ImageConfig
	Session    SessionConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

// BackendConfig holds the remote product-discovery API settings
type BackendConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// StorageConfig selects the medium behind the interaction store
type StorageConfig struct {
	Driver    string // memory, redis or postgres
	RedisURL  string
	KeyPrefix string
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, preferred when set
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	MaxConnections     int
	MaxIdleConnections int
}

// SearchConfig holds search-related configuration
type SearchConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	Debounce        time.Duration
	TrendingLimit   int
	// zero leaves the backend's own diversity defaults in place
	MaxPerBrand    int
	MaxPerCategory int
}

// VoiceConfig holds voice capture limits
type VoiceConfig struct {
	MaxDuration time.Duration
	MaxBytes    int
}

// ImageConfig holds image upload limits
type ImageConfig struct {
	MaxBytes     int64
	AllowedTypes []string
}

// SessionConfig holds per-tab session limits
type SessionConfig struct {
	MaxSessions         int
	SuggestionCacheSize int
}

// RateLimitConfig holds per-IP request limits
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Backend: BackendConfig{
			BaseURL: strings.TrimRight(getEnv("BACKEND_BASE_URL", "http://localhost:8000/api"), "/"),
			APIKey:  getEnv("BACKEND_API_KEY", ""),
			Timeout: getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(getEnv("STORAGE_DRIVER", "memory")),
			RedisURL:  getEnv("REDIS_URL", "redis://localhost:6379/0"),
			KeyPrefix: getEnv("STORAGE_KEY_PREFIX", "storefront"),
		},
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("POSTGRESQL_URI", getEnv("PG_DSN", ""))),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "storefront"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 2),
		},
		Search: SearchConfig{
			DefaultPageSize: getEnvAsInt("SEARCH_PAGE_SIZE", 20),
			MaxPageSize:     getEnvAsInt("SEARCH_MAX_PAGE_SIZE", 100),
			Debounce:        getEnvAsDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),
			TrendingLimit:   getEnvAsInt("TRENDING_LIMIT", 20),
			MaxPerBrand:     getEnvAsInt("SEARCH_DIVERSITY_MAX_PER_BRAND", 0),
			MaxPerCategory:  getEnvAsInt("SEARCH_DIVERSITY_MAX_PER_CATEGORY", 0),
		},
		Voice: VoiceConfig{
			MaxDuration: getEnvAsDuration("VOICE_MAX_DURATION", 60*time.Second),
			MaxBytes:    getEnvAsInt("VOICE_MAX_BYTES", 5*1024*1024),
		},
		Image: ImageConfig{
			MaxBytes:     int64(getEnvAsInt("IMAGE_MAX_BYTES", 10*1024*1024)),
			AllowedTypes: getEnvAsList("IMAGE_ALLOWED_TYPES", []string{"image/jpeg", "image/png", "image/webp", "image/gif"}),
		},
		Session: SessionConfig{
			MaxSessions:         getEnvAsInt("SESSION_MAX", 10000),
			SuggestionCacheSize: getEnvAsInt("SUGGESTION_CACHE_SIZE", 2048),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 20),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 28),
			Compress:   getEnvAsBool("LOG_COMPRESS", true),
		},
	}

	switch cfg.Storage.Driver {
	case "memory", "redis", "postgres":
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q (want memory, redis or postgres)", cfg.Storage.Driver)
	}

	if cfg.Search.MaxPageSize > 0 && cfg.Search.DefaultPageSize > cfg.Search.MaxPageSize {
		cfg.Search.DefaultPageSize = cfg.Search.MaxPageSize
	}

	return cfg, nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// getEnvAsDuration accepts Go durations ("300ms") or plain milliseconds ("300")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
