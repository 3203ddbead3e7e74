// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package openai

import (
	"context"
	"errors"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/sigil-dev/lectern/internal/provider"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// DefaultModel is used when neither the config nor the request names one.
const DefaultModel = "gpt-4o-mini"

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
	// Options are appended to the client options, after the key and base URL.
	Options []option.RequestOption
}

// Provider implements provider.Provider using the Chat Completions API.
// Any OpenAI-compatible endpoint works through NewCompatible.
type Provider struct {
	client openaisdk.Client
	name   string
	model  string
}

var _ provider.Provider = (*Provider)(nil)

// New creates an OpenAI provider. Returns an error if the API key is missing.
func New(cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return NewCompatible(provider.OpenAI, cfg)
}

// NewCompatible creates a provider reporting itself as name that talks to
// an OpenAI-compatible API at cfg.BaseURL.
func NewCompatible(name string, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, lecternerr.New(lecternerr.CodeProviderConfigInvalid, name+": missing api key", lecternerr.FieldProvider(name))
	}
	if cfg.Model == "" {
		return nil, lecternerr.New(lecternerr.CodeProviderConfigInvalid, name+": missing model", lecternerr.FieldProvider(name))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// The router never retries and neither does the client.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.Options...)

	return &Provider{
		client: openaisdk.NewClient(opts...),
		name:   name,
		model:  cfg.Model,
	}, nil
}

// Factory adapts New to provider.Factory.
func Factory(_ context.Context, credential string, s provider.Settings) (provider.Provider, error) {
	return New(Config{APIKey: credential, BaseURL: s.BaseURL, Model: s.Model})
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Close() error { return nil }

func (p *Provider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	params := BuildParams(p.model, req)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, provider.Classify(p.name, StatusOf(err), err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, provider.EmptyResponse(p.name)
	}

	return &provider.Response{
		Text:     resp.Choices[0].Message.Content,
		Provider: p.name,
		Model:    resp.Model,
		Usage: provider.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// BuildParams converts a provider.Request into Chat Completions params,
// using model when the request names none.
func BuildParams(model string, req provider.Request) openaisdk.ChatCompletionNewParams {
	if req.Model != "" {
		model = req.Model
	}

	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		if m.Role == provider.RoleAssistant {
			msgs = append(msgs, openaisdk.AssistantMessage(m.Content))
			continue
		}
		msgs = append(msgs, openaisdk.UserMessage(m.Content))
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if req.Options.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.Options.MaxTokens))
	}
	if req.Options.Temperature != nil {
		params.Temperature = param.NewOpt(float64(*req.Options.Temperature))
	}
	return params
}

// StatusOf extracts the HTTP status from an SDK error, or 0.
func StatusOf(err error) int {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
