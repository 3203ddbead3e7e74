// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embed

import (
	"context"

	"google.golang.org/genai"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Google embeds text with the Gemini API.
type Google struct {
	client *genai.Client
	model  string
}

func NewGoogle(ctx context.Context, cfg Config) (*Google, error) {
	if cfg.APIKey == "" {
		return nil, lecternerr.New(lecternerr.CodeEmbedRequestInvalid, "google embeddings: missing api key")
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
		return nil, lecternerr.Wrap(err, lecternerr.CodeEmbedRequestInvalid, "creating genai client")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultGoogleModel
	}
	return &Google{client: client, model: model}, nil
}

func (e *Google) Model() string { return e.model }

func (e *Google) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeEmbedUpstreamFailure, "gemini embed request", lecternerr.FieldModel(e.model))
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, lecternerr.New(lecternerr.CodeEmbedResponseInvalid, "gemini returned no embedding", lecternerr.FieldModel(e.model))
	}
	return resp.Embeddings[0].Values, nil
}
