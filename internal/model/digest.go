// Package model defines the core digest data types.
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Period is the retrospective window content is drawn from.
type Period string

const (
	PeriodDay   Period = "1d"
	PeriodWeek  Period = "1week"
	PeriodMonth Period = "1month"
)

// DefaultPeriod is used when a request names no period or an unknown one.
const DefaultPeriod = PeriodWeek

// Periods lists every known period, shortest first.
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth}

// ParsePeriod normalizes a raw period value, falling back to DefaultPeriod.
func ParsePeriod(raw string) Period {
	switch p := Period(strings.TrimSpace(raw)); p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return p
	}
	return DefaultPeriod
}

// Valid reports whether p is one of the known periods.
func (p Period) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth:
		return true
	}
	return false
}

// Window is the approximate length of the period. A month is 30 days.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodDay:
		return 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// TimeFilter is the listing time filter understood by reddit.
func (p Period) TimeFilter() string {
	switch p {
	case PeriodDay:
		return "day"
	case PeriodMonth:
		return "month"
	default:
		return "week"
	}
}

// Label is a human readable description used in prompts.
func (p Period) Label() string {
	switch p {
	case PeriodDay:
		return "last day"
	case PeriodMonth:
		return "last month"
	default:
		return "last week"
	}
}

// Submission is one raw ranked post as returned by the content source.
type Submission struct {
	ID        string
	Title     string
	Body      string
	Score     float64
	CreatedAt time.Time
	Comments  []RawComment
}

// RawComment is a raw comment with its direct replies.
type RawComment struct {
	ID      string
	Body    string
	Score   float64
	Replies []RawComment
}

// Post is a curated submission.
type Post struct {
	ID       string    `json:"id,omitempty"`
	Title    string    `json:"title"`
	Body     string    `json:"selftext"`
	Score    float64   `json:"score"`
	Comments []Comment `json:"comments"`
}

// Comment is a curated top-level comment.
type Comment struct {
	ID      string  `json:"id,omitempty"`
	OPID    string  `json:"opId,omitempty"`
	Body    string  `json:"body"`
	Score   float64 `json:"score"`
	Replies []Reply `json:"replies"`
}

// Reply is a curated first-level reply.
type Reply struct {
	ID    string  `json:"id,omitempty"`
	OPID  string  `json:"opId,omitempty"`
	Body  string  `json:"body"`
	Score float64 `json:"score"`
}

// SummaryItem is one entry of a structured summary.
type SummaryItem struct {
	Title    string    `json:"title"`
	Desc     string    `json:"desc"`
	SourceID SourceIDs `json:"sourceId,omitempty"`
}

// SourceIDs holds a post id optionally followed by a comment id. It decodes
// from a single value or an array of strings and numbers.
type SourceIDs []string

func (s *SourceIDs) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var vals []any
	switch v := raw.(type) {
	case nil:
		*s = nil
		return nil
	case []any:
		vals = v
	default:
		vals = []any{v}
	}
	out := make(SourceIDs, 0, len(vals))
	for _, v := range vals {
		switch v := v.(type) {
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		case nil:
		default:
			return fmt.Errorf("source id: unexpected %T", v)
		}
	}
	*s = out
	return nil
}

// Result is the cached research payload for one subreddit, limit and period.
type Result struct {
	Subreddit         string        `json:"subreddit"`
	Period            Period        `json:"period"`
	CachedAt          time.Time     `json:"cachedAt"`
	TopPosts          []Post        `json:"top_posts"`
	Summary           string        `json:"ai_summary,omitempty"`
	SummaryStructured []SummaryItem `json:"ai_summary_structured,omitempty"`
	PromptUsed        string        `json:"ai_prompt_used,omitempty"`
}

// HasSummaryFor reports whether r carries a summary generated with prompt.
func (r *Result) HasSummaryFor(prompt string) bool {
	if r == nil || r.PromptUsed == "" || r.PromptUsed != prompt {
		return false
	}
	return len(r.SummaryStructured) > 0 || r.Summary != ""
}

// NormalizeSubreddit trims whitespace and an optional "r/" prefix.
func NormalizeSubreddit(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && strings.EqualFold(s[:2], "r/") {
		s = s[2:]
	}
	return strings.TrimSpace(s)
}
