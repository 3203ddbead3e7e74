// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/sigil-dev/lectern/internal/provider"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

const DefaultModel = "gemini-2.0-flash"

// Config holds Google provider configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider implements provider.Provider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

var _ provider.Provider = (*Provider)(nil)

// New creates a new Google provider. Returns an error if the API key is missing.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, lecternerr.New(lecternerr.CodeProviderConfigInvalid, "google: missing api key",
			lecternerr.FieldProvider(provider.Google))
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, lecternerr.Wrapf(err, lecternerr.CodeProviderSetupFailure, "google: creating client")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Provider{client: client, model: model}, nil
}

// Factory adapts New to provider.Factory.
func Factory(ctx context.Context, credential string, s provider.Settings) (provider.Provider, error) {
	return New(ctx, Config{APIKey: credential, BaseURL: s.BaseURL, Model: s.Model})
}

func (p *Provider) Name() string { return provider.Google }

func (p *Provider) Close() error { return nil }

func (p *Provider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, BuildContents(req), BuildConfig(req))
	if err != nil {
		return nil, provider.Classify(provider.Google, StatusOf(err), err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, provider.EmptyResponse(provider.Google)
	}

	out := &provider.Response{Text: text, Provider: provider.Google, Model: model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		out.Usage = provider.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// BuildConfig converts request options into a GenerateContentConfig.
func BuildConfig(req provider.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.Options.Temperature != nil {
		cfg.Temperature = genai.Ptr(*req.Options.Temperature)
	}
	if req.Options.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	return cfg
}

// BuildContents converts request messages; Gemini calls the assistant "model".
func BuildContents(req provider.Request) []*genai.Content {
	out := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == provider.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

// StatusOf extracts the HTTP status from an SDK error, or 0.
func StatusOf(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}
