// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embed_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/lectern/internal/embed"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

var (
	_ embed.Embedder = (*embed.OpenAI)(nil)
	_ embed.Embedder = (*embed.Google)(nil)
	_ embed.Embedder = (*embed.Ollama)(nil)
)

func TestOpenAI_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.Equal(t, "where is the apple", body["input"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []any{
				map[string]any{"object": "embedding", "index": 0, "embedding": []float64{0.25, -0.5, 1}},
			},
			"usage": map[string]any{"prompt_tokens": 4, "total_tokens": 4},
		})
	}))
	defer srv.Close()

	e, err := embed.NewOpenAI(embed.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)
	assert.Equal(t, embed.DefaultOpenAIModel, e.Model())

	vec, err := e.Embed(context.Background(), "where is the apple")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
}

func TestOpenAI_EmbedUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad model","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	e, err := embed.NewOpenAI(embed.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "nope"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, lecternerr.CodeEmbedUpstreamFailure, lecternerr.CodeOf(err))
}

func TestOpenAI_MissingKey(t *testing.T) {
	_, err := embed.NewOpenAI(embed.Config{})
	require.Error(t, err)
	assert.True(t, lecternerr.IsInvalidInput(err))
}

func TestOllama_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nomic-embed-text", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":      "nomic-embed-text",
			"embeddings": [][]float32{{0.5, 0.5}},
		})
	}))
	defer srv.Close()

	e, err := embed.NewOllama(embed.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "chapter one")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5}, vec)
}

func TestEmbed_EmptyText(t *testing.T) {
	e, err := embed.NewOllama(embed.Config{BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, lecternerr.CodeEmbedRequestInvalid, lecternerr.CodeOf(err))
}

func TestNew_UnknownProvider(t *testing.T) {
	_, _, err := embed.New(context.Background(), embed.Config{Provider: "word2vec"})
	require.Error(t, err)
	assert.Equal(t, lecternerr.CodeEmbedRequestInvalid, lecternerr.CodeOf(err))
}

func TestNew_WithCache(t *testing.T) {
	e, closeFn, err := embed.New(context.Background(), embed.Config{
		Provider: "ollama",
		BaseURL:  "http://127.0.0.1:1",
		CacheDir: t.TempDir(),
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn()) }()

	_, ok := e.(*embed.Cached)
	assert.True(t, ok)
	assert.Equal(t, embed.DefaultOllamaModel, e.Model())
}

func TestModelName(t *testing.T) {
	assert.Equal(t, embed.DefaultOpenAIModel, embed.ModelName(embed.Config{}))
	assert.Equal(t, embed.DefaultGoogleModel, embed.ModelName(embed.Config{Provider: "Gemini"}))
	assert.Equal(t, embed.DefaultOllamaModel, embed.ModelName(embed.Config{Provider: "ollama"}))
	assert.Equal(t, "mxbai-embed-large", embed.ModelName(embed.Config{Provider: "ollama", Model: "mxbai-embed-large"}))
	assert.Empty(t, embed.DefaultModel("word2vec"))
}
