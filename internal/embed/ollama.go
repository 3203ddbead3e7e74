// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embed

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Ollama embeds text with a local Ollama server.
type Ollama struct {
	client *api.Client
	model  string
}

// NewOllama connects to cfg.BaseURL, or to OLLAMA_HOST when it is empty.
func NewOllama(cfg Config) (*Ollama, error) {
	var client *api.Client
	if cfg.BaseURL == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, lecternerr.Wrap(err, lecternerr.CodeEmbedRequestInvalid, "creating ollama client from environment")
		}
		client = c
	} else {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, lecternerr.Wrap(err, lecternerr.CodeEmbedRequestInvalid, "invalid ollama host")
		}
		client = api.NewClient(u, http.DefaultClient)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	return &Ollama{client: client, model: model}, nil
}

func (e *Ollama) Model() string { return e.model }

func (e *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeEmbedUpstreamFailure, "ollama embed request", lecternerr.FieldModel(e.model))
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, lecternerr.New(lecternerr.CodeEmbedResponseInvalid, "ollama returned no embedding", lecternerr.FieldModel(e.model))
	}
	return resp.Embeddings[0], nil
}
