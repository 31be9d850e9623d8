// Package auth authorizes admin requests with Google ID tokens and an email allow-list.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rcliao/reddit-digest/internal/robusthttp"
)

const DefaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

var (
	ErrNotConfigured = errors.New("admin access is not configured on the server")
	ErrMissingToken  = errors.New("missing authorization header")
	ErrInvalidToken  = errors.New("invalid google token")
	ErrForbidden     = errors.New("admin access required")
)

// ParseEmails splits comma separated lists into a lowercased set.
func ParseEmails(lists ...string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, list := range lists {
		for _, v := range strings.Split(list, ",") {
			if e := strings.ToLower(strings.TrimSpace(v)); e != "" {
				out[e] = struct{}{}
			}
		}
	}
	return out
}

// Verifier checks bearer tokens against Google's tokeninfo endpoint.
type Verifier struct {
	allowed      map[string]struct{}
	tokenInfoURL string
	http         *http.Client
	verified     *expirable.LRU[string, string]
	log          *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithTokenInfoURL overrides the tokeninfo endpoint.
func WithTokenInfoURL(u string) Option {
	return func(v *Verifier) { v.tokenInfoURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) { v.http = c }
}

// NewVerifier returns a Verifier admitting the given emails.
func NewVerifier(allowed map[string]struct{}, log *slog.Logger, opts ...Option) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	v := &Verifier{
		allowed:      allowed,
		tokenInfoURL: DefaultTokenInfoURL,
		verified:     expirable.NewLRU[string, string](256, nil, 5*time.Minute),
		log:          log.With("component", "auth"),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.http == nil {
		v.http = robusthttp.NewClient(10*time.Second, robusthttp.WithMaxRetries(1), robusthttp.WithLogger(v.log))
	}
	return v
}

// Admin returns the admin email behind an Authorization header value.
func (v *Verifier) Admin(ctx context.Context, header string) (string, error) {
	if len(v.allowed) == 0 {
		return "", ErrNotConfigured
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return "", ErrMissingToken
	}

	email, ok := v.verified.Get(token)
	if !ok {
		var err error
		if email, err = v.lookup(ctx, token); err != nil {
			return "", err
		}
		v.verified.Add(token, email)
	}
	if _, ok := v.allowed[email]; !ok {
		v.log.Warn("admin access denied", "email", email)
		return "", ErrForbidden
	}
	return email, nil
}

func (v *Verifier) lookup(ctx context.Context, token string) (string, error) {
	u := v.tokenInfoURL + "?" + url.Values{"id_token": {token}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", ErrInvalidToken
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("verify token: %w", ErrInvalidToken)
	}
	email := strings.ToLower(strings.TrimSpace(info.Email))
	if email == "" {
		return "", fmt.Errorf("verify token: missing email: %w", ErrInvalidToken)
	}
	return email, nil
}
