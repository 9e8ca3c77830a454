// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Server  ServerConfig
	Logger  LoggerConfig
	Store   StoreConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Sync    SyncConfig
	Shopify ShopifyConfig
	APIKey  string
}

type ServerConfig struct {
	AppEnv      string
	Port        string
	CORSOrigins []string
}

type LoggerConfig struct {
	Level string
}

type StoreConfig struct {
	Backend string
}

type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig enables the cross-replica sync lock when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SyncConfig struct {
	Enabled     bool
	Interval    time.Duration
	Concurrency int
	LockTTL     time.Duration
}

type ShopifyConfig struct {
	APIVersion string
	Timeout    time.Duration
}

// IsDevelopment reports whether APP_ENV selects the human-readable console logger
func (c *Config) IsDevelopment() bool {
	return c.Server.AppEnv == "development"
}

// Load reads .env when present and then the process environment.
// It reports whether a .env file was found.
func Load() (*Config, bool) {
	found := godotenv.Load() == nil
	return LoadEnv(), found
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:      getEnv("APP_ENV", "production"),
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"*"}),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", StoreMongo)),
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "shopify_insights"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Sync: SyncConfig{
			Enabled:     getEnvBool("SYNC_ENABLED", true),
			Interval:    getEnvDuration("SYNC_INTERVAL", time.Minute),
			Concurrency: getEnvInt("SYNC_CONCURRENCY", 4),
			LockTTL:     getEnvDuration("SYNC_LOCK_TTL", 5*time.Minute),
		},
		Shopify: ShopifyConfig{
			APIVersion: getEnv("SHOPIFY_API_VERSION", "2023-10"),
			Timeout:    getEnvDuration("SHOPIFY_TIMEOUT", 10*time.Second),
		},
		APIKey: getEnv("API_KEY", ""),
	}
}

// getEnv treats an empty variable as unset
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "5m") or a bare number of seconds
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
