// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package embed converts query text into vectors in the same space the
// collection was built with.
package embed

import (
	"context"
	"strings"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Embedder produces a vector for a piece of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Model names the embedding model, recorded on collections at ingest
	// and compared at query time.
	Model() string
}

// Config selects and configures an embedding backend.
type Config struct {
	Provider string // "openai", "google" or "ollama"
	Model    string
	APIKey   string
	BaseURL  string
	CacheDir string // enables the on-disk cache when set
}

// Default models per backend.
const (
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultGoogleModel = "text-embedding-004"
	DefaultOllamaModel = "nomic-embed-text"
)

// DefaultModel returns the model used for provider when none is configured,
// or "" for an unknown provider.
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case "", "openai":
		return DefaultOpenAIModel
	case "google", "gemini":
		return DefaultGoogleModel
	case "ollama":
		return DefaultOllamaModel
	}
	return ""
}

// ModelName is the model cfg resolves to.
func ModelName(cfg Config) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return DefaultModel(cfg.Provider)
}

// New builds the embedder named by cfg.Provider, wrapped in a cache when
// cfg.CacheDir is set. The returned close function releases the cache.
func New(ctx context.Context, cfg Config) (Embedder, func() error, error) {
	var (
		e   Embedder
		err error
	)

	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		e, err = NewOpenAI(cfg)
	case "google", "gemini":
		e, err = NewGoogle(ctx, cfg)
	case "ollama":
		e, err = NewOllama(cfg)
	default:
		return nil, nil, lecternerr.Errorf(lecternerr.CodeEmbedRequestInvalid, "unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, nil, err
	}

	if cfg.CacheDir == "" {
		return e, func() error { return nil }, nil
	}

	cached, err := NewCached(e, cfg.CacheDir)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return lecternerr.New(lecternerr.CodeEmbedRequestInvalid, "cannot embed empty text")
	}
	return nil
}

func float64sTo32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
