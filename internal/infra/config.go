package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Storage backend identifiers accepted by STORAGE_BACKEND.
const (
	StorageBackendFilesystem = "filesystem"
	StorageBackendPostgres   = "postgres"
)

// MaxFetchConcurrency is the hard ceiling applied to FETCH_CONCURRENCY
// regardless of what the environment requests.
const MaxFetchConcurrency = 16

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv            string
	Port              string
	StorageBackend    string
	StoragePath       string
	DatabaseURL       string
	CachePrefix       string
	MaxImageBytes     int64
	FetchTimeout      time.Duration
	FetchConcurrency  int
	MergeOutputFormat string
	TileWidth         int
	TileHeight        int
	HTTPReadTimeout   time.Duration
	HTTPWriteTimeout  time.Duration
	HTTPIdleTimeout   time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		StorageBackend:    getEnv("STORAGE_BACKEND", StorageBackendFilesystem),
		StoragePath:       getEnv("STORAGE_PATH", "./data"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		CachePrefix:       getEnv("CACHE_PREFIX", "cache/"),
		MaxImageBytes:     getEnvInt64("MAX_IMAGE_BYTES", 10*1024*1024),
		FetchTimeout:      time.Millisecond * time.Duration(getEnvInt("FETCH_TIMEOUT_MS", 15000)),
		FetchConcurrency:  getEnvInt("FETCH_CONCURRENCY", 5),
		MergeOutputFormat: getEnv("MERGE_OUTPUT_FORMAT", "png"),
		TileWidth:         getEnvInt("CARD_TILE_WIDTH", 744),
		TileHeight:        getEnvInt("CARD_TILE_HEIGHT", 1040),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.StorageBackend {
	case StorageBackendFilesystem:
	case StorageBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND: %s", cfg.StorageBackend)
	}

	if cfg.MergeOutputFormat != "png" && cfg.MergeOutputFormat != "jpeg" {
		return nil, fmt.Errorf("unsupported MERGE_OUTPUT_FORMAT: %s", cfg.MergeOutputFormat)
	}

	if cfg.MaxImageBytes <= 0 {
		return nil, fmt.Errorf("MAX_IMAGE_BYTES must be positive")
	}

	if cfg.TileWidth <= 0 || cfg.TileHeight <= 0 {
		return nil, fmt.Errorf("tile dimensions must be positive")
	}

	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 1
	}
	if cfg.FetchConcurrency > MaxFetchConcurrency {
		cfg.FetchConcurrency = MaxFetchConcurrency
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}
