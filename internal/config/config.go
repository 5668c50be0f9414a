package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Cipher      CipherConfig
	RateLimit   RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection configuration.
// An empty Addr keeps rate limits in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// JWTConfig holds the settings used to verify marketplace access tokens
type JWTConfig struct {
	AccessSecret string
	Issuer       string
}

// CipherConfig holds field cipher key material settings
type CipherConfig struct {
	Secret         string
	AllowDevSecret bool
	Iterations     int
}

// RateLimitConfig holds limiter defaults
type RateLimitConfig struct {
	MaxAttempts   int
	Window        time.Duration
	SweepInterval time.Duration
	// APIMaxRequests is the per-account budget for /api/v1 within Window
	APIMaxRequests int
}

// Load reads configuration from environment variables, after loading a local
// .env file if one exists
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "fieldguard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "fieldguard:ratelimit:"),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
			Issuer:       getEnv("JWT_ISSUER", ""),
		},
		Cipher: CipherConfig{
			Secret:         getEnv("FIELD_CIPHER_SECRET", ""),
			AllowDevSecret: getBoolEnv("FIELD_CIPHER_ALLOW_DEV_SECRET", false),
			Iterations:     getIntEnv("FIELD_CIPHER_ITERATIONS", 0),
		},
		RateLimit: RateLimitConfig{
			MaxAttempts:    getIntEnv("RATE_LIMIT_MAX_ATTEMPTS", 5),
			Window:         getMillisEnv("RATE_LIMIT_WINDOW_MS", time.Minute),
			SweepInterval:  getMillisEnv("RATE_LIMIT_SWEEP_INTERVAL_MS", time.Minute),
			APIMaxRequests: getIntEnv("RATE_LIMIT_API_MAX_REQUESTS", 120),
		},
	}
}

// IsProduction reports whether the service runs in production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Validate reports missing required configuration
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET environment variable is required"))
	}
	if c.IsProduction() && c.Cipher.Secret == "" {
		errs = append(errs, errors.New("FIELD_CIPHER_SECRET environment variable is required in production"))
	}
	if c.RateLimit.MaxAttempts < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX_ATTEMPTS must be positive"))
	}
	if c.RateLimit.APIMaxRequests < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_API_MAX_REQUESTS must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW_MS must be positive"))
	}
	if c.RateLimit.SweepInterval <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_SWEEP_INTERVAL_MS must be positive"))
	}

	return errors.Join(errs...)
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getMillisEnv returns a duration given in milliseconds or default
func getMillisEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
