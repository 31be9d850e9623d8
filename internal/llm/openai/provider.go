// Package openai implements llm.Provider on the OpenAI Responses streaming API.
package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"

	"github.com/rcliao/reddit-digest/internal/llm"
)

const (
	eventOutputTextDelta = "response.output_text.delta"
	eventCompleted       = "response.completed"
	eventFailed          = "response.failed"
	eventError           = "error"
)

// Config configures a Provider.
type Config struct {
	APIKey  string
	BaseURL string
}

// Provider is backed by OpenAI Responses streaming.
type Provider struct {
	responses responsesClient
}

type responsesClient interface {
	NewStreaming(ctx context.Context, body responses.ResponseNewParams, opts ...option.RequestOption) responseStream
}

type responseServiceAdapter struct {
	service responses.ResponseService
}

func (a responseServiceAdapter) NewStreaming(
	ctx context.Context,
	body responses.ResponseNewParams,
	opts ...option.RequestOption,
) responseStream {
	return a.service.NewStreaming(ctx, body, opts...)
}

// New builds a Provider.
func New(cfg Config) (*Provider, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("new openai provider: missing api key")
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	client := openai.NewClient(opts...)
	return &Provider{responses: responseServiceAdapter{service: client.Responses}}, nil
}

// GenerateStream starts a streaming response.
func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("openai generate stream: %w", err)
	}
	stream := p.responses.NewStreaming(ctx, mapRequest(req))
	if stream == nil {
		return nil, fmt.Errorf("openai generate stream: stream is nil")
	}
	return newStream(stream), nil
}

func mapRequest(req llm.Request) responses.ResponseNewParams {
	items := make(responses.ResponseInputParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := responses.EasyInputMessageRoleUser
		if m.Role == llm.RoleSystem {
			role = responses.EasyInputMessageRoleSystem
		}
		items = append(items, responses.ResponseInputItemParamOfMessage(m.Content, role))
	}

	params := responses.ResponseNewParams{
		Model: strings.TrimSpace(req.Model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: items},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxOutputTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxOutputTokens))
	}
	return params
}

var _ llm.Provider = (*Provider)(nil)
