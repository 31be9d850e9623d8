package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/rcliao/reddit-digest/internal/digest"
	"github.com/rcliao/reddit-digest/internal/model"
	"github.com/rcliao/reddit-digest/internal/prompts"
)

type researchRequest struct {
	Subreddit string          `json:"subreddit_name"`
	Limit     json.RawMessage `json:"limit"`
	Duration  string          `json:"duration"`
}

func (r researchRequest) digestRequest() digest.Request {
	return digest.Request{
		Subreddit: r.Subreddit,
		Limit:     parseLimit(r.Limit),
		Period:    model.ParsePeriod(r.Duration),
	}
}

type summaryRequest struct {
	researchRequest
	Prompt     string          `json:"prompt"`
	RedditData json.RawMessage `json:"reddit_data"`
}

// parseLimit accepts a number or a numeric string. Anything else is 0, which
// the assembler turns into the default limit.
func parseLimit(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(f)
}

func (srv *Server) handleRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "API is running"})
}

func (srv *Server) handleHealth(c echo.Context) error {
	if srv.db != nil {
		if err := srv.db.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"detail": map[string]string{"status": "unhealthy", "database": err.Error()},
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy", "database": "connected"})
}

func (srv *Server) handleResearch(c echo.Context) error {
	var body researchRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := srv.digest.Research(c.Request().Context(), body.digestRequest())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (srv *Server) handleFeed(c echo.Context) error {
	period := model.ParsePeriod(c.QueryParam("duration"))
	items, err := srv.digest.Feed(c.Request().Context(), period)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"duration": period, "items": items})
}

func (srv *Server) handleSnapshot(c echo.Context) error {
	var period model.Period
	if p := c.QueryParam("period"); p != "" {
		period = model.ParsePeriod(p)
	}
	data, err := srv.digest.Snapshot(c.Request().Context(), c.Param("subreddit"), c.Param("date"), period)
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, data)
}

func (srv *Server) handleDates(c echo.Context) error {
	sub := c.Param("subreddit")
	dates, err := srv.digest.Dates(c.Request().Context(), sub)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"subreddit": model.NormalizeSubreddit(sub), "dates": dates})
}

func (srv *Server) handleSummary(c echo.Context) error {
	var body summaryRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()

	job, err := srv.digest.PrepareSummary(ctx, digest.SummaryRequest{
		Request: body.digestRequest(),
		Prompt:  body.Prompt,
		Content: objectOrNil(body.RedditData),
	})
	if err != nil {
		return err
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, job.ContentType)
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("X-Accel-Buffering", "no")
	if job.Cached {
		resp.Header().Set("X-Summary-Cache", "hit")
	} else {
		resp.Header().Set("X-Summary-Cache", "miss")
	}
	resp.WriteHeader(http.StatusOK)

	// once headers are out the outcome is reported in the body
	if err := job.Run(ctx, resp); err != nil {
		srv.logger.Debug("summary ended with error", "admin", c.Get(adminKey), "err", err)
	}
	return nil
}

// objectOrNil keeps client-supplied content only when it is a JSON object.
func objectOrNil(raw json.RawMessage) json.RawMessage {
	t := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(t, "{") {
		return nil
	}
	return raw
}

func (srv *Server) handleListPrompts(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"defaultPrompt": prompts.DefaultTemplate,
		"prompts":       srv.prompts.List(c.Request().Context()),
	})
}

func (srv *Server) handleGetPrompt(c echo.Context) error {
	return c.JSON(http.StatusOK, srv.prompts.Get(c.Request().Context(), c.Param("subreddit")))
}

func (srv *Server) handleSavePrompt(c echo.Context) error {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := srv.prompts.Save(c.Request().Context(), c.Param("subreddit"), body.Prompt)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "subreddit": p.Subreddit, "prompt": p.Prompt})
}

func (srv *Server) handleDeletePrompt(c echo.Context) error {
	sub := c.Param("subreddit")
	if err := srv.prompts.Delete(c.Request().Context(), sub); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "subreddit": strings.ToLower(strings.TrimSpace(sub)), "removed": true})
}
