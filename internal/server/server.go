// Package server exposes the digest over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"

	"github.com/rcliao/reddit-digest/internal/digest"
	"github.com/rcliao/reddit-digest/internal/prompts"
)

// Authenticator resolves an Authorization header to an admin email.
type Authenticator interface {
	Admin(ctx context.Context, header string) (string, error)
}

// Pinger reports database health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Config struct {
	Logger  *slog.Logger
	Bind    string
	Digest  *digest.Assembler
	Prompts *prompts.Registry
	Auth    Authenticator
	DB      Pinger

	// Registry receives HTTP metrics and is served on /metrics. Defaults to
	// the process-wide prometheus registry.
	Registry *prometheus.Registry
}

type Server struct {
	digest  *digest.Assembler
	prompts *prompts.Registry
	auth    Authenticator
	db      Pinger
	echo    *echo.Echo
	httpd   *http.Server
	logger  *slog.Logger
}

func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if cfg.Registry != nil {
		registerer, gatherer = cfg.Registry, cfg.Registry
	}

	e := echo.New()
	srv := &Server{
		digest:  cfg.Digest,
		prompts: cfg.Prompts,
		auth:    cfg.Auth,
		db:      cfg.DB,
		echo:    e,
		logger:  logger.With("component", "server"),
	}
	// summary streams can run for minutes, so no write timeout
	srv.httpd = &http.Server{
		Handler:           srv,
		Addr:              cfg.Bind,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = srv.errorHandler
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("4M"))
	e.Use(middleware.CORS())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "reddit_digest",
		Registerer: registerer,
	}))

	e.GET("/", srv.handleRoot)
	e.GET("/health", srv.handleHealth)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))

	api := e.Group("/api")
	api.POST("/research/subreddit", srv.handleResearch)
	api.GET("/research/subreddit/feed", srv.handleFeed)
	api.GET("/research/subreddit/:subreddit/snapshot/:date", srv.handleSnapshot)
	api.GET("/research/subreddit/:subreddit/dates", srv.handleDates)
	api.POST("/research/subreddit/summary/stream", srv.handleSummary, srv.requireAdmin)

	api.GET("/prompts", srv.handleListPrompts)
	api.GET("/prompts/:subreddit", srv.handleGetPrompt)
	api.POST("/prompts/:subreddit", srv.handleSavePrompt, srv.requireAdmin)
	api.DELETE("/prompts/:subreddit", srv.handleDeletePrompt, srv.requireAdmin)

	return srv
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (srv *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		srv.logger.Info("starting server", "bind", srv.httpd.Addr)
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	srv.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.httpd.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
