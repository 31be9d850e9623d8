package reddit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rcliao/reddit-digest/internal/model"
)

// maxListing is the largest page reddit serves.
const maxListing = 100

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type linkData struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Score      float64 `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

type commentData struct {
	ID      string          `json:"id"`
	Body    string          `json:"body"`
	Score   float64         `json:"score"`
	Replies json.RawMessage `json:"replies"`
}

func escape(subreddit string) string {
	return url.PathEscape(model.NormalizeSubreddit(subreddit))
}

// MemberCount returns the subscriber count of subreddit, or 0 when it cannot
// be fetched. Successful lookups are cached.
func (c *Client) MemberCount(ctx context.Context, subreddit string) int {
	key := strings.ToLower(model.NormalizeSubreddit(subreddit))
	if n, ok := c.members.Get(key); ok {
		return n
	}
	var about struct {
		Data struct {
			Subscribers int `json:"subscribers"`
		} `json:"data"`
	}
	err := c.get(ctx, "/r/"+escape(subreddit)+"/about", url.Values{"raw_json": {"1"}}, &about)
	if err != nil {
		c.log.Warn("member count lookup failed", "subreddit", key, "err", err)
		return 0
	}
	n := max(about.Data.Subscribers, 0)
	c.members.Add(key, n)
	return n
}

// Top returns up to n top submissions of subreddit for period, ranked by reddit.
func (c *Client) Top(ctx context.Context, subreddit string, period model.Period, n int) ([]model.Submission, error) {
	n = min(max(n, 1), maxListing)
	params := url.Values{
		"t":        {period.TimeFilter()},
		"limit":    {strconv.Itoa(n)},
		"raw_json": {"1"},
	}
	var l listing
	if err := c.get(ctx, "/r/"+escape(subreddit)+"/top", params, &l); err != nil {
		return nil, fmt.Errorf("top %s: %w", subreddit, err)
	}

	subs := make([]model.Submission, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var d linkData
		if err := json.Unmarshal(child.Data, &d); err != nil {
			continue
		}
		subs = append(subs, model.Submission{
			ID:        d.ID,
			Title:     d.Title,
			Body:      d.Selftext,
			Score:     d.Score,
			CreatedAt: time.Unix(int64(d.CreatedUTC), 0).UTC(),
		})
	}
	return subs, nil
}

// Comments returns the top-level comments of a submission with their direct replies.
func (c *Client) Comments(ctx context.Context, subreddit, postID string) ([]model.RawComment, error) {
	params := url.Values{
		"sort":     {"top"},
		"limit":    {"25"},
		"depth":    {"2"},
		"raw_json": {"1"},
	}
	var pages []listing
	path := "/r/" + escape(subreddit) + "/comments/" + url.PathEscape(postID)
	if err := c.get(ctx, path, params, &pages); err != nil {
		return nil, fmt.Errorf("comments %s/%s: %w", subreddit, postID, err)
	}
	if len(pages) < 2 {
		return nil, nil
	}
	return parseComments(pages[1].Data.Children, 1), nil
}

func parseComments(children []thing, depth int) []model.RawComment {
	out := make([]model.RawComment, 0, len(children))
	for _, child := range children {
		if child.Kind != "t1" {
			continue
		}
		var d commentData
		if err := json.Unmarshal(child.Data, &d); err != nil {
			continue
		}
		rc := model.RawComment{ID: d.ID, Body: d.Body, Score: d.Score}
		// replies is "" when empty, otherwise a listing
		if depth > 0 && bytes.HasPrefix(bytes.TrimSpace(d.Replies), []byte("{")) {
			var replies listing
			if err := json.Unmarshal(d.Replies, &replies); err == nil {
				rc.Replies = parseComments(replies.Data.Children, depth-1)
			}
		}
		out = append(out, rc)
	}
	return out
}
