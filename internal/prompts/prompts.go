// Package prompts resolves the summary directive used for a subreddit.
//
// Prompts come from a defaults file shipped with the deployment and from
// overrides stored in the prompts table. The defaults file also defines the
// curated list of subreddits whose prompts may be edited.
package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"

	"github.com/rcliao/reddit-digest/internal/model"
	"github.com/rcliao/reddit-digest/internal/store"
)

// DefaultTemplate is used for subreddits without a stored prompt.
const DefaultTemplate = "Analyze top posts and comments for r/{subreddit}. " +
	"Summarize key themes, actionable insights, and representative quotes."

var (
	ErrNotFound   = errors.New("prompt not found")
	ErrNotAllowed = errors.New("subreddit is not in the curated allowed list")
	ErrEmpty      = errors.New("prompt must be non-empty")
)

// Prompt is the resolved prompt for one subreddit.
type Prompt struct {
	Subreddit string `json:"subreddit"`
	Prompt    string `json:"prompt"`
	IsDefault bool   `json:"isDefault"`
}

// DefaultFor renders DefaultTemplate for subreddit.
func DefaultFor(subreddit string) string {
	return strings.ReplaceAll(DefaultTemplate, "{subreddit}", subreddit)
}

// LoadDefaults reads a {"subreddit": "prompt"} JSON file. A missing file
// yields an empty map; entries with empty keys or non-string values are skipped.
func LoadDefaults(path string) (map[string]string, error) {
	out := map[string]string{}
	if path == "" {
		return out, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read prompt defaults: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse prompt defaults %s: %w", path, err)
	}
	for k, v := range raw {
		s, ok := v.(string)
		key := normalize(k)
		if !ok || key == "" || strings.TrimSpace(s) == "" {
			continue
		}
		out[key] = strings.TrimSpace(s)
	}
	return out, nil
}

func normalize(subreddit string) string {
	return strings.ToLower(model.NormalizeSubreddit(subreddit))
}

// Registry merges file defaults with stored overrides.
type Registry struct {
	db       *store.DB
	defaults map[string]string
	log      *slog.Logger
}

// New returns a Registry and seeds the prompts table from defaults when it is empty.
func New(ctx context.Context, db *store.DB, defaults map[string]string, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	d := make(map[string]string, len(defaults))
	for k, v := range defaults {
		d[normalize(k)] = v
	}
	r := &Registry{db: db, defaults: d, log: log}
	if err := r.seed(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) seed(ctx context.Context) error {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM prompts`).Scan(&count); err != nil {
		return fmt.Errorf("count prompts: %w", err)
	}
	if count > 0 || len(r.defaults) == 0 {
		return nil
	}
	for sub, prompt := range r.defaults {
		_, err := r.db.Exec(ctx, `
			INSERT INTO prompts (subreddit, prompt) VALUES (?, ?)
			ON CONFLICT (subreddit) DO NOTHING`, sub, prompt)
		if err != nil {
			return fmt.Errorf("seed prompt %s: %w", sub, err)
		}
	}
	r.log.Info("seeded prompts", "count", len(r.defaults))
	return nil
}

func (r *Registry) allowed(subreddit string) bool {
	if len(r.defaults) == 0 {
		return true
	}
	_, ok := r.defaults[subreddit]
	return ok
}

func (r *Registry) overrides(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT subreddit, prompt FROM prompts`)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var sub, prompt string
		if err := rows.Scan(&sub, &prompt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		sub, prompt = normalize(sub), strings.TrimSpace(prompt)
		if sub == "" || prompt == "" || !r.allowed(sub) {
			continue
		}
		out[sub] = prompt
	}
	return out, rows.Err()
}

// List returns every known prompt keyed by subreddit. When the table cannot
// be read the file defaults are returned alone.
func (r *Registry) List(ctx context.Context) map[string]string {
	merged := maps.Clone(r.defaults)
	stored, err := r.overrides(ctx)
	if err != nil {
		r.log.Warn("reading stored prompts failed", "err", err)
		return merged
	}
	maps.Copy(merged, stored)
	return merged
}

// Get returns the prompt for subreddit, falling back to the default template.
func (r *Registry) Get(ctx context.Context, subreddit string) Prompt {
	sub := normalize(subreddit)
	var prompt string
	err := r.db.QueryRow(ctx, `SELECT prompt FROM prompts WHERE subreddit = ?`, sub).Scan(&prompt)
	if err == nil && strings.TrimSpace(prompt) != "" && r.allowed(sub) {
		return Prompt{Subreddit: sub, Prompt: strings.TrimSpace(prompt)}
	}
	if v, ok := r.defaults[sub]; ok {
		return Prompt{Subreddit: sub, Prompt: v, IsDefault: true}
	}
	return Prompt{Subreddit: sub, Prompt: DefaultFor(sub), IsDefault: true}
}

// Resolve picks the directive for a summary: a non-empty override wins,
// then the stored or file prompt, then the default template.
func (r *Registry) Resolve(ctx context.Context, subreddit, override string) string {
	if o := strings.TrimSpace(override); o != "" {
		return o
	}
	return r.Get(ctx, subreddit).Prompt
}

// Save stores prompt for subreddit.
func (r *Registry) Save(ctx context.Context, subreddit, prompt string) (Prompt, error) {
	sub := normalize(subreddit)
	prompt = strings.TrimSpace(prompt)
	if sub == "" || !r.allowed(sub) {
		return Prompt{}, fmt.Errorf("save prompt %q: %w", subreddit, ErrNotAllowed)
	}
	if prompt == "" {
		return Prompt{}, fmt.Errorf("save prompt %s: %w", sub, ErrEmpty)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO prompts (subreddit, prompt) VALUES (?, ?)
		ON CONFLICT (subreddit) DO UPDATE SET prompt = excluded.prompt`, sub, prompt)
	if err != nil {
		return Prompt{}, fmt.Errorf("save prompt %s: %w", sub, err)
	}
	return Prompt{Subreddit: sub, Prompt: prompt}, nil
}

// Delete removes the stored prompt for subreddit so it falls back to its default.
func (r *Registry) Delete(ctx context.Context, subreddit string) error {
	sub := normalize(subreddit)
	res, err := r.db.Exec(ctx, `DELETE FROM prompts WHERE subreddit = ?`, sub)
	if err != nil {
		return fmt.Errorf("delete prompt %s: %w", sub, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete prompt %s: %w", sub, ErrNotFound)
	}
	return nil
}
