package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rcliao/reddit-digest/internal/cache"
	"github.com/rcliao/reddit-digest/internal/config"
	"github.com/rcliao/reddit-digest/internal/store"
)

func TestLoadConfigFlagOverrides(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "sql")
	t.Setenv("DATABASE_URL", "/env/digest.db")
	dbPath, cacheBackend = "/flag/digest.db", "MEMORY"
	t.Cleanup(func() { dbPath, cacheBackend = "", "" })

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DatabaseSource() != "/flag/digest.db" {
		t.Errorf("db = %q", cfg.DatabaseSource())
	}
	if cfg.CacheBackend != config.CacheMemory {
		t.Errorf("cache backend = %q", cfg.CacheBackend)
	}

	cacheBackend = "redis"
	if _, err := loadConfig(); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewBackend(t *testing.T) {
	db, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	tests := []struct {
		backend string
		check   func(cache.Backend) bool
	}{
		{config.CacheMemory, func(b cache.Backend) bool { _, ok := b.(*cache.MemoryBackend); return ok }},
		{config.CacheFile, func(b cache.Backend) bool { _, ok := b.(*cache.FileBackend); return ok }},
		{config.CacheSQL, func(b cache.Backend) bool { _, ok := b.(*cache.SQLBackend); return ok }},
	}
	for _, tt := range tests {
		cfg := config.Config{CacheBackend: tt.backend, CacheDir: t.TempDir()}
		b, err := newBackend(cfg, db)
		if err != nil {
			t.Fatalf("%s: %v", tt.backend, err)
		}
		if !tt.check(b) {
			t.Errorf("%s: got %T", tt.backend, b)
		}
	}
	if _, err := newBackend(config.Config{CacheBackend: "redis"}, db); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestNewProviderRequiresKey(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{config.ProviderOpenAI, config.ProviderGemini} {
		p, err := newProvider(ctx, config.Config{LLMProvider: name})
		if err == nil || p != nil {
			t.Errorf("%s: provider = %v, err = %v", name, p, err)
		}
	}
	p, err := newProvider(ctx, config.Config{LLMProvider: config.ProviderOpenAI, OpenAIAPIKey: "sk-test"})
	if err != nil || p == nil {
		t.Errorf("openai: provider = %v, err = %v", p, err)
	}
}
