package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"backpack/pkg/platform/strings"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

const (
	defaultSQLitePath  = "backpack.db"
	defaultTopic       = "backpack.events"
	defaultDescription = "Personalized purchase history. Holds no personal information."
	defaultMetricsAddr = ":9090"
	defaultCacheTTL    = 10 * time.Minute
)

// Config captures process-level configuration.
type Config struct {
	Admin       string
	Store       string
	SQLitePath  string
	DatabaseURL string
	Description string
	ImageURI    string
	MetricsAddr string
	LogLevel    string
	LogFormat   string
	Redis       RedisConfig
	Kafka       KafkaConfig
}

// RedisConfig enables the top-category cache when URL is set. Namespace
// separates ledgers that share one Redis; see Config.CacheNamespace.
type RedisConfig struct {
	URL          string
	Namespace    string
	TTL          time.Duration
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the Kafka event sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds and validates a Config from environment variables so main
// stays lean.
func FromEnv() (Config, error) {
	cfg, err := Load()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads the environment without validating, for callers that apply
// overrides first.
func Load() (Config, error) {
	cfg := Config{
		Admin:       os.Getenv("BACKPACK_ADMIN"),
		Store:       getEnv("BACKPACK_STORE", StoreSQLite),
		SQLitePath:  getEnv("BACKPACK_SQLITE_PATH", defaultSQLitePath),
		DatabaseURL: os.Getenv("BACKPACK_DATABASE_URL"),
		Description: getEnv("BACKPACK_DESCRIPTION", defaultDescription),
		ImageURI:    os.Getenv("BACKPACK_IMAGE_URI"),
		MetricsAddr: getEnv("BACKPACK_METRICS_ADDR", defaultMetricsAddr),
		LogLevel:    getEnv("BACKPACK_LOG_LEVEL", "info"),
		LogFormat:   getEnv("BACKPACK_LOG_FORMAT", "json"),
		Redis: RedisConfig{
			URL:          os.Getenv("BACKPACK_REDIS_URL"),
			Namespace:    os.Getenv("BACKPACK_CACHE_NAMESPACE"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Brokers: strings.SplitList(os.Getenv("BACKPACK_KAFKA_BROKERS")),
			Topic:   getEnv("BACKPACK_KAFKA_TOPIC", defaultTopic),
		},
	}

	ttl, err := getDuration("BACKPACK_CACHE_TTL", defaultCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.Redis.TTL = ttl
	return cfg, nil
}

// Validate checks the store selection and its data source.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("BACKPACK_DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown store %q (want memory, sqlite or postgres)", c.Store)
	}
	return nil
}

// CacheNamespace names the ledger behind this configuration for cache keys.
// An explicit BACKPACK_CACHE_NAMESPACE wins; otherwise SQL stores derive one
// from their data source, hashed so credentials never reach Redis. The
// memory store returns "" because its identity does not outlive the process.
func (c Config) CacheNamespace() string {
	if c.Redis.Namespace != "" {
		return c.Redis.Namespace
	}
	switch c.Store {
	case StoreSQLite:
		path := c.SQLitePath
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		return StoreSQLite + "-" + digest(path)
	case StorePostgres:
		return StorePostgres + "-" + digest(c.DatabaseURL)
	default:
		return ""
	}
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getDuration accepts Go durations ("30s") or whole seconds ("30").
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return time.Duration(secs) * time.Second, nil
}
