// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Cache backends selectable with CACHE_BACKEND.
const (
	CacheMemory = "memory"
	CacheFile   = "file"
	CacheSQL    = "sql"
)

// LLM providers selectable with LLM_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config is the process configuration.
type Config struct {
	RedditClientID     string `env:"REDDIT_CLIENT_ID"`
	RedditClientSecret string `env:"REDDIT_CLIENT_SECRET"`
	RedditUserAgent    string `env:"REDDIT_USER_AGENT" envDefault:"reddit-digest/1.0"`

	LLMProvider  string `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel     string `env:"LLM_MODEL"`
	OpenAIAPIKey string `env:"OPENAI_API_KEY"`
	OpenAIURL    string `env:"OPENAI_BASE_URL"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseURL    string `env:"DATABASE_URL"`

	CacheBackend string `env:"CACHE_BACKEND" envDefault:"sql"`
	CacheDir     string `env:"CACHE_DIR"`

	PromptsFile string `env:"PROMPTS_FILE" envDefault:"prompts.json"`

	AdminEmail  string `env:"ADMIN_EMAIL"`
	AdminEmails string `env:"ADMIN_EMAILS"`

	HTTPAddr           string     `env:"HTTP_ADDR" envDefault:":8000"`
	LogLevel           slog.Level `env:"LOG_LEVEL" envDefault:"info"`
	CommentConcurrency int        `env:"COMMENT_CONCURRENCY" envDefault:"4"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	return cfg, cfg.Validate()
}

// Validate rejects unknown enum values.
func (c Config) Validate() error {
	switch c.CacheBackend {
	case CacheMemory, CacheFile, CacheSQL:
	default:
		return fmt.Errorf("config: unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.CommentConcurrency < 1 {
		return fmt.Errorf("config: COMMENT_CONCURRENCY must be positive")
	}
	return nil
}

// DatabaseSource is DATABASE_URL, or ~/.reddit-digest/digest.db for sqlite.
func (c Config) DatabaseSource() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return filepath.Join(dataDir(), "digest.db")
}

// CacheRoot is CACHE_DIR, or ~/.reddit-digest/cache.
func (c Config) CacheRoot() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	return filepath.Join(dataDir(), "cache")
}

// Model is LLM_MODEL or the provider's default model.
func (c Config) Model() string {
	if m := strings.TrimSpace(c.LLMModel); m != "" {
		return m
	}
	if c.LLMProvider == ProviderGemini {
		return "gemini-2.5-flash"
	}
	return "gpt-4o-mini"
}

// Admins is the merged ADMIN_EMAIL and ADMIN_EMAILS value.
func (c Config) Admins() string {
	return strings.Join([]string{c.AdminEmail, c.AdminEmails}, ",")
}

func dataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".reddit-digest")
}
