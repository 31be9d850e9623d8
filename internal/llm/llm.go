// Package llm defines the provider-neutral streaming text generation
// contract used to produce digest summaries.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/reddit-digest/internal/model"
)

// Provider starts streaming generations.
type Provider interface {
	GenerateStream(ctx context.Context, req Request) (Stream, error)
}

// Stream is a pull-based stream of generated text.
type Stream interface {
	// Recv returns the next chunk, or io.EOF once the generation completed normally.
	Recv(ctx context.Context) (Chunk, error)
	Close() error
}

// Role identifies the author of a message.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one entry of a request.
type Message struct {
	Role    Role
	Content string
}

// Request describes one generation.
type Request struct {
	Model           string
	Messages        []Message
	Temperature     float64
	MaxOutputTokens int
}

// Validate checks the request before it is sent.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return fmt.Errorf("validate request: missing model")
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("validate request: missing messages")
	}
	for i, m := range r.Messages {
		if m.Role != RoleSystem && m.Role != RoleUser {
			return fmt.Errorf("validate request messages[%d]: unsupported role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return fmt.Errorf("validate request messages[%d]: missing content", i)
		}
	}
	if r.Temperature < 0 || r.MaxOutputTokens < 0 {
		return fmt.Errorf("validate request: negative sampling options")
	}
	return nil
}

// Chunk is an incremental piece of generated text.
type Chunk struct {
	Delta string
}

const outputContract = "Key Rule: Give information, instead of telling what info the post gives. " +
	"Respond ONLY with a JSON array (no preamble, no code fences). Each item must be: " +
	`{"title": string, "desc": string, "sourceId": [postId, optionalCommentId] }. ` +
	"Use exact IDs from the provided data. If referencing a post only, sourceId = [postId]. " +
	"If referencing a specific comment, sourceId = [postId, commentId]. No extra keys, no trailing commas."

// SystemPrompt appends the date, data period and output contract to a directive.
func SystemPrompt(directive, subreddit string, period model.Period, now time.Time) string {
	return fmt.Sprintf("%s\n\nContext: Today is %s. Data period: %s (key: %s) for r/%s.\n\n%s",
		directive, now.UTC().Format(time.RFC3339), period.Label(), period, subreddit, outputContract)
}

// SummaryRequest builds the request sent for a digest summary.
func SummaryRequest(modelName, system string, content []byte) Request {
	return Request{
		Model: modelName,
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: string(content)},
		},
	}
}
