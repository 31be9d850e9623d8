// Package reddit is a small application-only OAuth client for the listing
// endpoints the digest needs.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/rcliao/reddit-digest/internal/robusthttp"
)

const (
	DefaultBaseURL   = "https://oauth.reddit.com"
	DefaultTokenURL  = "https://www.reddit.com/api/v1/access_token"
	DefaultUserAgent = "reddit-digest/1.0"

	// tokens are refreshed this long before reddit says they expire
	tokenSlack = 10 * time.Second
)

// Config configures a Client. Zero values fall back to reddit's public endpoints.
type Config struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	BaseURL      string
	TokenURL     string

	HTTPClient        *http.Client
	RequestsPerSecond float64
	MemberCacheTTL    time.Duration
	Logger            *slog.Logger
}

// APIError is a non-2xx response from reddit.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reddit api: status %d: %s", e.Status, e.Body)
}

// Client talks to reddit with client-credentials OAuth.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	members *expirable.LRU[string, int]
	log     *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	token     string
	tokenExps time.Time
}

// New returns a Client for cfg.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1.5
	}
	if cfg.MemberCacheTTL <= 0 {
		cfg.MemberCacheTTL = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	log := cfg.Logger.With("component", "reddit")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = robusthttp.NewClient(30*time.Second, robusthttp.WithLogger(log))
	}
	return &Client{
		cfg:     cfg,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 4),
		members: expirable.NewLRU[string, int](512, nil, cfg.MemberCacheTTL),
		log:     log,
		now:     time.Now,
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.ClientID != "" && c.cfg.ClientSecret != ""
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Add(tokenSlack).Before(c.tokenExps) {
		return c.token, nil
	}
	if !c.Configured() {
		return "", fmt.Errorf("reddit auth: client credentials are not configured")
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("reddit auth: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("reddit auth: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("reddit auth: %w", &APIError{Status: resp.StatusCode, Body: string(body)})
	}

	var tok struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("reddit auth: decode token: %w", err)
	}
	if strings.TrimSpace(tok.AccessToken) == "" {
		return "", fmt.Errorf("reddit auth: empty token")
	}
	if tok.ExpiresIn <= 0 {
		tok.ExpiresIn = 3600
	}
	c.token = tok.AccessToken
	c.tokenExps = c.now().Add(time.Duration(max(tok.ExpiresIn, 30)) * time.Second)
	return c.token, nil
}

func (c *Client) dropToken(stale string) {
	c.mu.Lock()
	if c.token == stale {
		c.token = ""
	}
	c.mu.Unlock()
}

// get fetches path with query params into v. A 401 refreshes the token and
// retries once.
func (c *Client) get(ctx context.Context, path string, params url.Values, v any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, token, path, params)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.dropToken(token)
		if token, err = c.accessToken(ctx); err != nil {
			return err
		}
		if resp, err = c.do(ctx, token, path, params); err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("get %s: %w", path, &APIError{Status: resp.StatusCode, Body: string(body)})
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, token, path string, params url.Values) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	u := c.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", path, err)
	}
	return resp, nil
}
