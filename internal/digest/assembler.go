// Package digest assembles curated subreddit results: cache-or-fetch for
// content, snapshot archiving, and streamed summaries merged back into the
// cached result.
package digest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rcliao/reddit-digest/internal/cache"
	"github.com/rcliao/reddit-digest/internal/curate"
	"github.com/rcliao/reddit-digest/internal/llm"
	"github.com/rcliao/reddit-digest/internal/model"
)

const (
	// ResultTTL is how long curated results stay cached.
	ResultTTL = 24 * time.Hour

	DefaultLimit  = 20
	MaxLimit      = 100
	SnapshotLimit = 20
)

// ErrInvalidRequest wraps every validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Source fetches raw content for a subreddit.
type Source interface {
	MemberCount(ctx context.Context, subreddit string) int
	Top(ctx context.Context, subreddit string, period model.Period, n int) ([]model.Submission, error)
	Comments(ctx context.Context, subreddit, postID string) ([]model.RawComment, error)
}

// Archive persists one result per subreddit, day and period.
type Archive interface {
	Save(ctx context.Context, subreddit string, period model.Period, data json.RawMessage) error
	Load(ctx context.Context, subreddit, date string, period model.Period) (json.RawMessage, error)
	Dates(ctx context.Context, subreddit string) ([]string, error)
}

// Prompts resolves the directive used for a summary.
type Prompts interface {
	Resolve(ctx context.Context, subreddit, override string) string
}

// Deps are the collaborators of an Assembler. Prompts and LLM may be nil;
// summaries then use the default template and fail with ErrNoProvider.
type Deps struct {
	Cache   *cache.Store
	Archive Archive
	Source  Source
	Prompts Prompts
	LLM     llm.Provider
}

// Config tunes an Assembler.
type Config struct {
	// Model is the LLM model name used for summaries.
	Model string
	// CommentConcurrency bounds parallel comment tree fetches.
	CommentConcurrency int
	Logger             *slog.Logger
	Now                func() time.Time
}

// Assembler serves curated results and summaries.
type Assembler struct {
	Deps
	model       string
	concurrency int
	log         *slog.Logger
	now         func() time.Time
	flights     singleflight.Group
}

// New returns an Assembler.
func New(deps Deps, cfg Config) *Assembler {
	if cfg.CommentConcurrency <= 0 {
		cfg.CommentConcurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Assembler{
		Deps:        deps,
		model:       cfg.Model,
		concurrency: cfg.CommentConcurrency,
		log:         cfg.Logger.With("component", "digest"),
		now:         cfg.Now,
	}
}

// Request identifies one curated result.
type Request struct {
	Subreddit string
	Limit     int
	Period    model.Period
}

// Normalize trims the subreddit, defaults the limit and period, and rejects
// what cannot be served.
func (r Request) Normalize() (Request, error) {
	r.Subreddit = model.NormalizeSubreddit(r.Subreddit)
	if r.Subreddit == "" {
		return r, fmt.Errorf("%w: subreddit name required", ErrInvalidRequest)
	}
	if r.Limit <= 0 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		return r, fmt.Errorf("%w: limit must be at most %d", ErrInvalidRequest, MaxLimit)
	}
	if !r.Period.Valid() {
		r.Period = model.DefaultPeriod
	}
	return r, nil
}

// Key is the cache key of a normalized request.
func (r Request) Key() string {
	return cache.SubjectKey{Subject: r.Subreddit, Limit: r.Limit, Period: r.Period}.String()
}

// Research returns the cached result for req, or fetches, curates, caches and
// archives a fresh one. Concurrent misses for the same key share one fetch;
// a caller whose ctx ends stops waiting without failing the others.
func (a *Assembler) Research(ctx context.Context, req Request) (*model.Result, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}
	key := req.Key()
	if res, ok := cache.GetJSON[model.Result](ctx, a.Cache, cache.SubjectNamespace, key); ok {
		return &res, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch := a.flights.DoChan(key, func() (any, error) {
		// detached from the caller that started it: followers share the result
		fctx := context.WithoutCancel(ctx)
		if res, ok := cache.GetJSON[model.Result](fctx, a.Cache, cache.SubjectNamespace, key); ok {
			return &res, nil
		}
		res, err := a.fetch(fctx, req, req.Limit)
		if err != nil {
			return nil, err
		}
		_ = a.Cache.SetJSON(fctx, cache.SubjectNamespace, key, res, ResultTTL) // logged by the store
		a.archive(fctx, res)
		return res, nil
	})

	var r singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	if r.Err != nil {
		return nil, r.Err
	}
	// copy so callers sharing a flight cannot affect each other
	res := *r.Val.(*model.Result)
	return &res, nil
}

// fetch builds a fresh curated result without touching the cache.
func (a *Assembler) fetch(ctx context.Context, req Request, limit int) (*model.Result, error) {
	now := a.now().UTC()
	members := a.Source.MemberCount(ctx, req.Subreddit)
	subs, err := a.Source.Top(ctx, req.Subreddit, req.Period, max(curate.MinYield, limit*2))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Subreddit, err)
	}

	in := curate.Input{
		Members:     members,
		Cutoff:      now.Add(-req.Period.Window()),
		Limit:       limit,
		Submissions: subs,
	}
	selected := curate.SelectSubmissions(in)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range selected {
		g.Go(func() error {
			comments, err := a.Source.Comments(gctx, req.Subreddit, selected[i].ID)
			if err != nil {
				return fmt.Errorf("comments of %s: %w", selected[i].ID, err)
			}
			selected[i].Comments = comments
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Subreddit, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.Subreddit, err)
	}

	in.Submissions = selected
	posts := curate.Curate(in)
	curatedPosts.Observe(float64(len(posts)))
	a.log.Info("curated subreddit", "subreddit", req.Subreddit, "period", req.Period,
		"members", members, "pool", len(subs), "posts", len(posts))

	return &model.Result{
		Subreddit: req.Subreddit,
		Period:    req.Period,
		CachedAt:  now,
		TopPosts:  posts,
	}, nil
}

// archive saves res as today's snapshot. Failures are logged and dropped.
func (a *Assembler) archive(ctx context.Context, res *model.Result) {
	if a.Archive == nil {
		return
	}
	data, err := json.Marshal(res)
	if err == nil {
		err = a.Archive.Save(ctx, res.Subreddit, res.Period, data)
	}
	if err != nil {
		snapshotFailures.Inc()
		a.log.Warn("snapshot save failed", "subreddit", res.Subreddit, "period", res.Period, "err", err)
	}
}

// Snapshot returns the archived result for (subreddit, date, period). When
// none exists a fresh result is curated, archived and returned.
func (a *Assembler) Snapshot(ctx context.Context, subreddit, date string, period model.Period) (json.RawMessage, error) {
	sub := model.NormalizeSubreddit(subreddit)
	if sub == "" {
		return nil, fmt.Errorf("%w: subreddit name required", ErrInvalidRequest)
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidRequest)
	}
	if period != "" && !period.Valid() {
		period = model.DefaultPeriod
	}
	if a.Archive == nil {
		return nil, fmt.Errorf("snapshot %s: no archive configured", sub)
	}

	data, err := a.Archive.Load(ctx, sub, date, period)
	if err == nil {
		return data, nil
	}
	a.log.Debug("snapshot not loaded, curating a fresh one", "subreddit", sub, "date", date, "err", err)

	if period == "" {
		period = model.DefaultPeriod
	}
	res, err := a.fetch(ctx, Request{Subreddit: sub, Limit: SnapshotLimit, Period: period}, SnapshotLimit)
	if err != nil {
		return nil, err
	}
	a.archive(ctx, res)
	return json.Marshal(res)
}

// Dates lists archived snapshot dates for subreddit, newest first.
func (a *Assembler) Dates(ctx context.Context, subreddit string) ([]string, error) {
	sub := model.NormalizeSubreddit(subreddit)
	if sub == "" {
		return nil, fmt.Errorf("%w: subreddit name required", ErrInvalidRequest)
	}
	if a.Archive == nil {
		return []string{}, nil
	}
	return a.Archive.Dates(ctx, sub)
}

// Feed returns the best cached result of every subreddit for period.
func (a *Assembler) Feed(ctx context.Context, period model.Period) ([]json.RawMessage, error) {
	if !period.Valid() {
		period = model.DefaultPeriod
	}
	return a.Cache.Feed(ctx, period)
}
