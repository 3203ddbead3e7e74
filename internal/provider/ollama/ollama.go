// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package ollama generates answers with a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/sigil-dev/lectern/internal/provider"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

const DefaultModel = "llama3.2"

// Config holds Ollama provider configuration.
type Config struct {
	// Host is the server address, e.g. http://localhost:11434.
	Host  string
	Model string
}

// Provider implements provider.Provider over the Ollama chat API.
type Provider struct {
	client *api.Client
	model  string
}

var _ provider.Provider = (*Provider)(nil)

func New(cfg Config) (*Provider, error) {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		return nil, lecternerr.New(lecternerr.CodeProviderConfigInvalid, "ollama: missing host",
			lecternerr.FieldProvider(provider.Ollama))
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, lecternerr.Wrapf(err, lecternerr.CodeProviderConfigInvalid, "ollama: invalid host %q", cfg.Host)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Provider{client: api.NewClient(u, http.DefaultClient), model: model}, nil
}

// Factory adapts New to provider.Factory. The credential is the server
// address; a configured base URL takes precedence.
func Factory(_ context.Context, credential string, s provider.Settings) (provider.Provider, error) {
	host := credential
	if s.BaseURL != "" {
		host = s.BaseURL
	}
	return New(Config{Host: host, Model: s.Model})
}

func (p *Provider) Name() string { return provider.Ollama }

func (p *Provider) Close() error { return nil }

func (p *Provider) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	chat := BuildRequest(p.model, req)

	var (
		b    strings.Builder
		last api.ChatResponse
	)
	err := p.client.Chat(ctx, chat, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		last = resp
		return nil
	})
	if err != nil {
		return nil, provider.Classify(provider.Ollama, StatusOf(err), err)
	}
	if strings.TrimSpace(b.String()) == "" {
		return nil, provider.EmptyResponse(provider.Ollama)
	}

	model := last.Model
	if model == "" {
		model = chat.Model
	}
	return &provider.Response{
		Text:     b.String(),
		Provider: provider.Ollama,
		Model:    model,
		Usage: provider.Usage{
			InputTokens:  last.PromptEvalCount,
			OutputTokens: last.EvalCount,
		},
	}, nil
}

// BuildRequest converts a provider.Request into a non-streaming chat request.
func BuildRequest(model string, req provider.Request) *api.ChatRequest {
	if req.Model != "" {
		model = req.Model
	}

	stream := false
	chat := &api.ChatRequest{
		Model:   model,
		Stream:  &stream,
		Options: make(map[string]any),
	}
	if req.SystemPrompt != "" {
		chat.Messages = append(chat.Messages, api.Message{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		chat.Messages = append(chat.Messages, api.Message{Role: string(m.Role), Content: m.Content})
	}
	if req.Options.Temperature != nil {
		chat.Options["temperature"] = *req.Options.Temperature
	}
	if req.Options.MaxTokens > 0 {
		chat.Options["num_predict"] = req.Options.MaxTokens
	}
	return chat
}

// StatusOf extracts the HTTP status from a client error, or 0.
func StatusOf(err error) int {
	var se api.StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	var sep *api.StatusError
	if errors.As(err, &sep) && sep != nil {
		return sep.StatusCode
	}
	return 0
}
