package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rcliao/reddit-digest/internal/archive"
	"github.com/rcliao/reddit-digest/internal/auth"
	"github.com/rcliao/reddit-digest/internal/cache"
	"github.com/rcliao/reddit-digest/internal/config"
	"github.com/rcliao/reddit-digest/internal/digest"
	"github.com/rcliao/reddit-digest/internal/llm"
	"github.com/rcliao/reddit-digest/internal/llm/gemini"
	"github.com/rcliao/reddit-digest/internal/llm/openai"
	"github.com/rcliao/reddit-digest/internal/prompts"
	"github.com/rcliao/reddit-digest/internal/reddit"
	"github.com/rcliao/reddit-digest/internal/store"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *store.DB
	cache   *cache.Store
	archive *archive.Archive
	prompts *prompts.Registry
	reddit  *reddit.Client
	digest  *digest.Assembler
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.DatabaseURL = dbPath
	}
	if cacheBackend != "" {
		cfg.CacheBackend = strings.ToLower(cacheBackend)
	}
	return cfg, cfg.Validate()
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openApp loads configuration and wires storage, the content source and the
// summary provider. A missing LLM key leaves summaries disabled.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	db, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseSource())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db}

	backend, err := newBackend(cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.cache = cache.New(backend, cache.WithLogger(log))
	a.archive = archive.New(db, nil)

	defaults, err := prompts.LoadDefaults(cfg.PromptsFile)
	if err != nil {
		db.Close()
		return nil, err
	}
	if a.prompts, err = prompts.New(ctx, db, defaults, log); err != nil {
		db.Close()
		return nil, err
	}

	a.reddit = reddit.New(reddit.Config{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		UserAgent:    cfg.RedditUserAgent,
		Logger:       log,
	})
	if !a.reddit.Configured() {
		log.Warn("reddit credentials are not set; fetches will fail")
	}

	provider, err := newProvider(ctx, cfg)
	if err != nil {
		log.Warn("summaries disabled", "provider", cfg.LLMProvider, "err", err)
	}

	a.digest = digest.New(digest.Deps{
		Cache:   a.cache,
		Archive: a.archive,
		Source:  a.reddit,
		Prompts: a.prompts,
		LLM:     provider,
	}, digest.Config{
		Model:              cfg.Model(),
		CommentConcurrency: cfg.CommentConcurrency,
		Logger:             log,
	})
	return a, nil
}

func (a *app) Close() {
	a.cache.Close()
	a.db.Close()
}

func (a *app) verifier() *auth.Verifier {
	return auth.NewVerifier(auth.ParseEmails(a.cfg.Admins()), a.log)
}

func newBackend(cfg config.Config, db *store.DB) (cache.Backend, error) {
	switch cfg.CacheBackend {
	case config.CacheMemory:
		return cache.NewMemoryBackend(), nil
	case config.CacheFile:
		return cache.NewFileBackend(cfg.CacheRoot())
	case config.CacheSQL:
		return cache.NewSQLBackend(db), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
}

// newProvider returns nil and an error when the selected provider has no key.
func newProvider(ctx context.Context, cfg config.Config) (llm.Provider, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		p, err := gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIURL})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}
