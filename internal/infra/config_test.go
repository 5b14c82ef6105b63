package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"APP_ENV", "PORT", "STORAGE_BACKEND", "STORAGE_PATH", "CACHE_PREFIX",
		"MAX_IMAGE_BYTES", "FETCH_TIMEOUT_MS", "FETCH_CONCURRENCY",
		"MERGE_OUTPUT_FORMAT", "CARD_TILE_WIDTH", "CARD_TILE_HEIGHT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.CachePrefix != "cache/" {
		t.Fatalf("CachePrefix mismatch: got %q", cfg.CachePrefix)
	}
	if cfg.MaxImageBytes != 10*1024*1024 {
		t.Fatalf("MaxImageBytes mismatch: got %d", cfg.MaxImageBytes)
	}
	if cfg.FetchTimeout != 15*time.Second {
		t.Fatalf("FetchTimeout mismatch: got %s", cfg.FetchTimeout)
	}
	if cfg.FetchConcurrency != 5 {
		t.Fatalf("FetchConcurrency mismatch: got %d", cfg.FetchConcurrency)
	}
	if cfg.MergeOutputFormat != "png" {
		t.Fatalf("MergeOutputFormat mismatch: got %q", cfg.MergeOutputFormat)
	}
	if cfg.TileWidth != 744 || cfg.TileHeight != 1040 {
		t.Fatalf("tile dimensions mismatch: %dx%d", cfg.TileWidth, cfg.TileHeight)
	}
	if cfg.StorageBackend != StorageBackendFilesystem {
		t.Fatalf("StorageBackend mismatch: got %q", cfg.StorageBackend)
	}
}

func TestLoadConfigCapsFetchConcurrency(t *testing.T) {
	t.Setenv("FETCH_CONCURRENCY", "64")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.FetchConcurrency != MaxFetchConcurrency {
		t.Fatalf("FetchConcurrency not capped: got %d", cfg.FetchConcurrency)
	}
}

func TestLoadConfigRejectsUnknownOutputFormat(t *testing.T) {
	t.Setenv("MERGE_OUTPUT_FORMAT", "webp")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for unsupported output format")
	}
}

func TestLoadConfigPostgresRequiresDatabaseURL(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is missing")
	}

	t.Setenv("DATABASE_URL", "postgres://example")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.StorageBackend != StorageBackendPostgres {
		t.Fatalf("StorageBackend mismatch: got %q", cfg.StorageBackend)
	}
}
