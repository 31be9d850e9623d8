// Package curate reduces a ranked pool of submissions to the bounded set of
// posts, comments and replies worth caching.
package curate

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/rcliao/reddit-digest/internal/model"
)

// MinYield is the number of posts accepted regardless of the post threshold
// when the pool allows it.
const MinYield = 5

// Thresholds are the minimum scores for each level of content.
type Thresholds struct {
	Post    float64
	Comment float64
	Reply   float64
}

// ThresholdsFor scales thresholds with community size: with L = log10(max(members, 1)),
// posts need 2L, comments L and replies L/2.
func ThresholdsFor(members int) Thresholds {
	l := math.Log10(float64(max(members, 1)))
	return Thresholds{Post: 2 * l, Comment: l, Reply: 0.5 * l}
}

// Input is everything Curate needs. Submissions should arrive ranked by
// score; Curate re-sorts a copy so unsorted input is handled the same way.
type Input struct {
	Members     int
	Cutoff      time.Time
	Limit       int
	Submissions []model.Submission
}

// SelectSubmissions runs the post-level pass alone and returns the
// submissions that will be kept, in output order.
func SelectSubmissions(in Input) []model.Submission {
	if in.Limit <= 0 {
		return nil
	}
	th := ThresholdsFor(in.Members)

	ranked := slices.Clone(in.Submissions)
	slices.SortStableFunc(ranked, func(a, b model.Submission) int {
		return cmp.Compare(b.Score, a.Score)
	})

	var out []model.Submission
	for _, sub := range ranked {
		if !in.Cutoff.IsZero() && sub.CreatedAt.Before(in.Cutoff) {
			continue
		}
		if sub.Score < th.Post && len(out) >= MinYield {
			break
		}
		out = append(out, sub)
		if len(out) >= in.Limit {
			break
		}
	}
	return out
}

// Curate selects submissions and filters their comment trees by threshold.
// It is deterministic and performs no I/O.
func Curate(in Input) []model.Post {
	th := ThresholdsFor(in.Members)
	selected := SelectSubmissions(in)

	posts := make([]model.Post, 0, len(selected))
	for _, sub := range selected {
		posts = append(posts, model.Post{
			ID:       sub.ID,
			Title:    sub.Title,
			Body:     sub.Body,
			Score:    sub.Score,
			Comments: filterComments(sub.ID, sub.Comments, th),
		})
	}
	return posts
}

func filterComments(postID string, raw []model.RawComment, th Thresholds) []model.Comment {
	comments := make([]model.Comment, 0, len(raw))
	for _, c := range raw {
		if c.Score < th.Comment {
			continue
		}
		replies := make([]model.Reply, 0, len(c.Replies))
		for _, r := range c.Replies {
			if r.Score < th.Reply {
				continue
			}
			replies = append(replies, model.Reply{ID: r.ID, OPID: postID, Body: r.Body, Score: r.Score})
		}
		comments = append(comments, model.Comment{
			ID:      c.ID,
			OPID:    postID,
			Body:    c.Body,
			Score:   c.Score,
			Replies: replies,
		})
	}
	return comments
}
