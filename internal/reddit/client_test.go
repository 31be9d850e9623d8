package reddit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcliao/reddit-digest/internal/model"
	"github.com/rcliao/reddit-digest/internal/robusthttp"
)

type fakeReddit struct {
	tokens    atomic.Int32
	about     atomic.Int32
	reject401 atomic.Int32
	lastQuery atomic.Value
}

func (f *fakeReddit) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /access_token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			http.Error(w, "bad creds", http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		n := f.tokens.Add(1)
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600}`, n)
	})
	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if f.reject401.Load() > 0 {
				f.reject401.Add(-1)
				http.Error(w, "expired", http.StatusUnauthorized)
				return
			}
			if r.Header.Get("Authorization") == "" {
				http.Error(w, "no token", http.StatusUnauthorized)
				return
			}
			f.lastQuery.Store(r.URL.RawQuery)
			next(w, r)
		}
	}
	mux.HandleFunc("GET /r/golang/about", authed(func(w http.ResponseWriter, r *http.Request) {
		f.about.Add(1)
		fmt.Fprint(w, `{"kind":"t5","data":{"subscribers":250000}}`)
	}))
	mux.HandleFunc("GET /r/private/about", authed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	mux.HandleFunc("GET /r/golang/top", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"kind":"Listing","data":{"children":[
			{"kind":"t3","data":{"id":"p1","title":"First","selftext":"body","score":120,"created_utc":1740800000}},
			{"kind":"t5","data":{}},
			{"kind":"t3","data":{"id":"p2","title":"Second","selftext":"","score":45.0,"created_utc":1740790000}}
		]}}`)
	}))
	mux.HandleFunc("GET /r/golang/comments/p1", authed(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"kind":"Listing","data":{"children":[{"kind":"t3","data":{"id":"p1"}}]}},
			{"kind":"Listing","data":{"children":[
				{"kind":"t1","data":{"id":"c1","body":"top","score":30,"replies":{"kind":"Listing","data":{"children":[
					{"kind":"t1","data":{"id":"r1","body":"reply","score":5,"replies":""}},
					{"kind":"more","data":{}}
				]}}}},
				{"kind":"t1","data":{"id":"c2","body":"lonely","score":2,"replies":""}},
				{"kind":"more","data":{"count":10}}
			]}}
		]`)
	}))
	return mux
}

func newTestClient(t *testing.T) (*Client, *fakeReddit) {
	t.Helper()
	f := &fakeReddit{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	c := New(Config{
		ClientID:          "id",
		ClientSecret:      "secret",
		BaseURL:           srv.URL,
		TokenURL:          srv.URL + "/access_token",
		HTTPClient:        srv.Client(),
		RequestsPerSecond: 1000,
	})
	return c, f
}

func TestTop(t *testing.T) {
	c, f := newTestClient(t)
	subs, err := c.Top(context.Background(), "r/golang", model.PeriodMonth, 40)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(subs))
	}
	if subs[0].ID != "p1" || subs[0].Score != 120 || subs[0].Body != "body" {
		t.Errorf("first = %+v", subs[0])
	}
	if !subs[0].CreatedAt.Equal(time.Unix(1740800000, 0)) {
		t.Errorf("created = %v", subs[0].CreatedAt)
	}
	if q := f.lastQuery.Load().(string); q != "limit=40&raw_json=1&t=month" {
		t.Errorf("query = %q", q)
	}
}

func TestComments(t *testing.T) {
	c, _ := newTestClient(t)
	comments, err := c.Comments(context.Background(), "golang", "p1")
	if err != nil {
		t.Fatalf("comments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("expected 2 comments, got %d", len(comments))
	}
	if comments[0].ID != "c1" || len(comments[0].Replies) != 1 || comments[0].Replies[0].ID != "r1" {
		t.Errorf("first = %+v", comments[0])
	}
	if len(comments[1].Replies) != 0 {
		t.Errorf("expected no replies, got %+v", comments[1].Replies)
	}
}

func TestMemberCountCachedAndDegrades(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	if n := c.MemberCount(ctx, "golang"); n != 250000 {
		t.Errorf("got %d", n)
	}
	c.MemberCount(ctx, "GoLang")
	if f.about.Load() != 1 {
		t.Errorf("expected 1 upstream lookup, got %d", f.about.Load())
	}
	if n := c.MemberCount(ctx, "private"); n != 0 {
		t.Errorf("expected 0 on failure, got %d", n)
	}
}

func TestTokenReusedUntilExpiry(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Top(ctx, "golang", model.PeriodDay, 5)
	c.Top(ctx, "golang", model.PeriodDay, 5)
	if f.tokens.Load() != 1 {
		t.Errorf("expected 1 token fetch, got %d", f.tokens.Load())
	}

	now = now.Add(3600*time.Second - 5*time.Second)
	c.Top(ctx, "golang", model.PeriodDay, 5)
	if f.tokens.Load() != 2 {
		t.Errorf("expected refresh inside the expiry slack, got %d fetches", f.tokens.Load())
	}
}

func TestUnauthorizedRefreshesOnce(t *testing.T) {
	c, f := newTestClient(t)
	ctx := context.Background()

	f.reject401.Store(1)
	if _, err := c.Top(ctx, "golang", model.PeriodWeek, 5); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if f.tokens.Load() != 2 {
		t.Errorf("expected 2 token fetches, got %d", f.tokens.Load())
	}

	f.reject401.Store(2)
	_, err := c.Top(ctx, "golang", model.PeriodWeek, 5)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("expected 401 after a single retry, got %v", err)
	}
}

func TestMissingCredentials(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:0"})
	if c.Configured() {
		t.Error("expected unconfigured client")
	}
	if _, err := c.Top(context.Background(), "golang", model.PeriodWeek, 5); err == nil {
		t.Error("expected error without credentials")
	}
}

func TestRetryingTransport(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/access_token" {
			fmt.Fprint(w, `{"access_token":"t","expires_in":3600}`)
			return
		}
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"kind":"Listing","data":{"children":[]}}`)
	}))
	defer srv.Close()

	c := New(Config{
		ClientID:          "id",
		ClientSecret:      "secret",
		BaseURL:           srv.URL,
		TokenURL:          srv.URL + "/access_token",
		RequestsPerSecond: 1000,
		HTTPClient:        robusthttp.NewClient(5*time.Second, robusthttp.WithRetryWait(time.Millisecond, 5*time.Millisecond)),
	})
	subs, err := c.Top(context.Background(), "golang", model.PeriodWeek, 5)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(subs) != 0 || calls.Load() != 2 {
		t.Errorf("subs=%d calls=%d", len(subs), calls.Load())
	}
}
