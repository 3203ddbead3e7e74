// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/provider/ollama"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var body struct {
			Model    string         `json:"model"`
			Stream   *bool          `json:"stream"`
			Options  map[string]any `json:"options"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, ollama.DefaultModel, body.Model)
		require.NotNil(t, body.Stream)
		assert.False(t, *body.Stream)
		assert.EqualValues(t, 128, body.Options["num_predict"])
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":             "llama3.2",
			"created_at":        "2026-01-01T00:00:00Z",
			"message":           map[string]any{"role": "assistant", "content": "Chapter two."},
			"done":              true,
			"prompt_eval_count": 20,
			"eval_count":        3,
		})
	}))
	defer srv.Close()

	p, err := ollama.Factory(context.Background(), srv.URL, provider.Settings{})
	require.NoError(t, err)

	resp, err := p.Generate(context.Background(), provider.Request{
		SystemPrompt: "sys",
		Messages:     []provider.Message{provider.UserMessage("Which chapter?")},
		Options:      provider.Options{MaxTokens: 128},
	})
	require.NoError(t, err)
	assert.Equal(t, "Chapter two.", resp.Text)
	assert.Equal(t, provider.Ollama, resp.Provider)
	assert.Equal(t, provider.Usage{InputTokens: 20, OutputTokens: 3}, resp.Usage)
}

func TestGenerate_ModelMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"llama3.2\" not found, try pulling it first"}`))
	}))
	defer srv.Close()

	p, err := ollama.New(ollama.Config{Host: srv.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), provider.Request{
		Messages: []provider.Message{provider.UserMessage("hi")},
	})
	require.Error(t, err)
	assert.True(t, lecternerr.HasCode(err, lecternerr.CodeProviderRejected), "got %s", lecternerr.CodeOf(err))
}

func TestGenerate_Unreachable(t *testing.T) {
	p, err := ollama.New(ollama.Config{Host: "127.0.0.1:1"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), provider.Request{
		Messages: []provider.Message{provider.UserMessage("hi")},
	})
	require.Error(t, err)
	assert.True(t, lecternerr.IsTransient(err))
}

func TestFactory_BaseURLWins(t *testing.T) {
	temp := float32(0.1)
	req := ollama.BuildRequest("llama3.2", provider.Request{
		Model:   "mistral",
		Options: provider.Options{Temperature: &temp},
	})
	assert.Equal(t, "mistral", req.Model)
	assert.Equal(t, temp, req.Options["temperature"])

	_, err := ollama.Factory(context.Background(), "", provider.Settings{})
	require.Error(t, err)
	assert.Equal(t, lecternerr.CodeProviderConfigInvalid, lecternerr.CodeOf(err))

	_, err = ollama.Factory(context.Background(), "", provider.Settings{BaseURL: "http://gpu-box:11434"})
	require.NoError(t, err)
}
