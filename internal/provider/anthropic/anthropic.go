// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sigil-dev/lectern/internal/provider"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

const (
	DefaultModel     = "claude-haiku-4-5"
	defaultMaxTokens = 1024
)

// Config holds Anthropic provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
}

// Provider implements provider.Provider using the Anthropic Messages API.
type Provider struct {
	client anthropicsdk.Client
	model  string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new Anthropic provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, lecternerr.New(lecternerr.CodeProviderConfigInvalid, "anthropic: missing api key",
			lecternerr.FieldProvider(provider.Anthropic))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Provider{client: anthropicsdk.NewClient(opts...), model: model}, nil
}

// Factory adapts New to provider.Factory.
func Factory(_ context.Context, credential string, s provider.Settings) (provider.Provider, error) {
	return New(Config{APIKey: credential, BaseURL: s.BaseURL, Model: s.Model})
}

func (p *Provider) Name() string { return provider.Anthropic }

func (p *Provider) Close() error { return nil }

func (p *Provider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	msg, err := p.client.Messages.New(ctx, BuildParams(p.model, req))
	if err != nil {
		return nil, provider.Classify(provider.Anthropic, StatusOf(err), err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return nil, provider.EmptyResponse(provider.Anthropic)
	}

	return &provider.Response{
		Text:     b.String(),
		Provider: provider.Anthropic,
		Model:    string(msg.Model),
		Usage: provider.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

// BuildParams converts a provider.Request into Messages API params.
func BuildParams(model string, req provider.Request) anthropicsdk.MessageNewParams {
	if req.Model != "" {
		model = req.Model
	}

	maxTokens := int64(req.Options.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	msgs := make([]anthropicsdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == provider.RoleAssistant {
			msgs = append(msgs, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
			continue
		}
		msgs = append(msgs, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
	if req.SystemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Options.Temperature != nil {
		params.Temperature = anthropicsdk.Float(float64(*req.Options.Temperature))
	}
	return params
}

// StatusOf extracts the HTTP status from an SDK error, or 0.
func StatusOf(err error) int {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
