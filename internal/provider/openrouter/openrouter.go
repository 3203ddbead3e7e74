// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package openrouter talks to OpenRouter's OpenAI-compatible API.
package openrouter

import (
	"context"

	"github.com/openai/openai-go/option"

	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/provider/openai"
)

const (
	baseURL = "https://openrouter.ai/api/v1"

	// DefaultModel is a free-tier model.
	DefaultModel = "meta-llama/llama-3.3-70b-instruct:free"
)

// Config holds OpenRouter provider configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
}

// New creates an OpenRouter provider. Returns an error if the API key is missing.
func New(cfg Config) (*openai.Provider, error) {
	base := baseURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return openai.NewCompatible(provider.OpenRouter, openai.Config{
		APIKey:  cfg.APIKey,
		BaseURL: base,
		Model:   model,
		Options: []option.RequestOption{
			option.WithHeader("X-Title", "lectern"),
		},
	})
}

// Factory adapts New to provider.Factory.
func Factory(_ context.Context, credential string, s provider.Settings) (provider.Provider, error) {
	return New(Config{APIKey: credential, BaseURL: s.BaseURL, Model: s.Model})
}
