// Package gemini implements llm.Provider on the Google Gemini streaming API.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"math"
	"strings"

	"google.golang.org/genai"

	"github.com/rcliao/reddit-digest/internal/llm"
)

// Config configures a Provider.
type Config struct {
	APIKey  string
	BaseURL string
}

// Provider is backed by Gemini GenerateContentStream.
type Provider struct {
	models modelsClient
}

type modelsClient interface {
	GenerateContentStream(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) iter.Seq2[*genai.GenerateContentResponse, error]
}

// New builds a Provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("new gemini provider: missing api key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: strings.TrimSpace(cfg.BaseURL)},
	})
	if err != nil {
		return nil, fmt.Errorf("new gemini client: %w", err)
	}
	if client.Models == nil {
		return nil, fmt.Errorf("new gemini client: models client is nil")
	}
	return &Provider{models: client.Models}, nil
}

// GenerateStream starts a streaming generation. System messages become the
// system instruction.
func (p *Provider) GenerateStream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("gemini generate stream: %w", err)
	}
	contents, config, err := mapRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gemini generate stream: %w", err)
	}
	seq := p.models.GenerateContentStream(ctx, strings.TrimSpace(req.Model), contents, config)
	if seq == nil {
		return nil, fmt.Errorf("gemini generate stream: stream is nil")
	}
	return newStream(seq), nil
}

func mapRequest(req llm.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  string(genai.RoleUser),
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("missing non-system messages")
	}

	config := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}},
		}
	}
	if req.Temperature > 0 {
		temperature := float32(req.Temperature)
		config.Temperature = &temperature
	}
	if req.MaxOutputTokens > 0 {
		if req.MaxOutputTokens > math.MaxInt32 {
			return nil, nil, fmt.Errorf("max output tokens exceeds int32 range")
		}
		config.MaxOutputTokens = int32(req.MaxOutputTokens)
	}
	return contents, config, nil
}

var _ llm.Provider = (*Provider)(nil)
