// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embed

import (
	"context"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// OpenAI embeds text with the OpenAI embeddings endpoint.
type OpenAI struct {
	client openaisdk.Client
	model  string
}

// NewOpenAI returns an embedder for cfg. BaseURL may point at any
// OpenAI-compatible server.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, lecternerr.New(lecternerr.CodeEmbedRequestInvalid, "openai embeddings: missing api key")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{client: openaisdk.NewClient(opts...), model: model}, nil
}

func (e *OpenAI) Model() string { return e.model }

func (e *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	resp, err := e.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(e.model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(text)},
	})
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeEmbedUpstreamFailure, "openai embeddings request", lecternerr.FieldModel(e.model))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, lecternerr.New(lecternerr.CodeEmbedResponseInvalid, "openai returned no embedding", lecternerr.FieldModel(e.model))
	}
	return float64sTo32(resp.Data[0].Embedding), nil
}
