// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/lectern/internal/config"
	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestLoad_DefaultValues(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, "./vectordb", cfg.Storage.Dir)
	assert.Equal(t, "audiobook_embeddings", cfg.Storage.Collection)
	assert.Equal(t, "cosine", cfg.Storage.Metric)
	assert.Equal(t, 6334, cfg.Storage.Qdrant.Port)
	assert.Equal(t, 100, cfg.Ingest.BatchSize)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 4000, cfg.Retrieval.MaxContextChars)
	assert.Equal(t, 500, cfg.Answer.PreviewChars)
	assert.InDelta(t, 0.3, cfg.Answer.Temperature, 1e-6)
	assert.Equal(t, 1024, cfg.Answer.MaxTokens)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, provider.DefaultOrder, cfg.Generation.Order)
	assert.Equal(t, provider.Auto, cfg.Generation.Default)
	assert.Equal(t, 60*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, "127.0.0.1:8765", cfg.Server.Listen)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lectern.yaml")

	content := `
storage:
  backend: qdrant
  qdrant:
    host: qdrant.internal
    port: 6334
retrieval:
  top_k: 8
generation:
  order: [ollama, openai]
  timeout: 5s
providers:
  ollama:
    model: llama3.1
    base_url: http://gpu:11434
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "qdrant", cfg.Storage.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Storage.Qdrant.Host)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, []string{"ollama", "openai"}, cfg.Generation.Order)
	assert.Equal(t, 5*time.Second, cfg.Generation.Timeout)

	s := cfg.ProviderSettings(provider.Ollama)
	assert.Equal(t, "llama3.1", s.Model)
	assert.Equal(t, "http://gpu:11434", s.BaseURL)
	assert.Equal(t, provider.Settings{}, cfg.ProviderSettings(provider.Google))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LECTERN_SERVER_LISTEN", "10.0.0.1:8080")
	t.Setenv("LECTERN_RETRIEVAL_TOP_K", "3")
	t.Setenv("LECTERN_STORAGE_BACKEND", "PGVector")
	t.Setenv("LECTERN_STORAGE_PGVECTOR_DSN", "postgres://localhost/lectern")

	cfg := validConfig(t)
	assert.Equal(t, "10.0.0.1:8080", cfg.Server.Listen)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "pgvector", cfg.Storage.Backend)
	assert.Equal(t, "postgres://localhost/lectern", cfg.Storage.PGVector.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, lecternerr.CodeConfigLoadReadFailure, lecternerr.CodeOf(err))
}

func TestLoad_InvalidConfigFailsFast(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "lectern.yaml")
	content := `
storage:
  backend: mysql
server:
  listen: not-valid
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o600))

	_, err := config.Load(cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validating config")
	assert.Contains(t, err.Error(), "storage.backend")
	assert.Contains(t, err.Error(), "server.listen")
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	config.SetDefaults(v)
	v.Set("generation.default", " Anthropic ")
	v.Set("log.format", "JSON")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, provider.Anthropic, cfg.Generation.Default)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.Empty(t, validConfig(t).Validate())
}

func TestValidate_Fields(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		mutate func(*config.Config)
	}{
		{"unknown backend", "storage.backend", func(c *config.Config) { c.Storage.Backend = "mysql" }},
		{"sqlite without dir", "storage.dir", func(c *config.Config) { c.Storage.Dir = " " }},
		{"qdrant port", "storage.qdrant.port", func(c *config.Config) {
			c.Storage.Backend = "qdrant"
			c.Storage.Qdrant.Port = 0
		}},
		{"qdrant host", "storage.qdrant.host", func(c *config.Config) {
			c.Storage.Backend = "qdrant"
			c.Storage.Qdrant.Host = ""
		}},
		{"pgvector without dsn", "storage.pgvector.dsn", func(c *config.Config) { c.Storage.Backend = "pgvector" }},
		{"bad collection", "storage.collection", func(c *config.Config) { c.Storage.Collection = "has space" }},
		{"bad metric", "storage.metric", func(c *config.Config) { c.Storage.Metric = "manhattan" }},
		{"zero batch", "ingest.batch_size", func(c *config.Config) { c.Ingest.BatchSize = 0 }},
		{"zero top k", "retrieval.top_k", func(c *config.Config) { c.Retrieval.TopK = 0 }},
		{"huge top k", "retrieval.top_k", func(c *config.Config) { c.Retrieval.TopK = 101 }},
		{"negative budget", "retrieval.max_context_chars", func(c *config.Config) { c.Retrieval.MaxContextChars = -1 }},
		{"zero preview", "answer.preview_chars", func(c *config.Config) { c.Answer.PreviewChars = 0 }},
		{"hot temperature", "answer.temperature", func(c *config.Config) { c.Answer.Temperature = 3 }},
		{"zero max tokens", "answer.max_tokens", func(c *config.Config) { c.Answer.MaxTokens = 0 }},
		{"unknown embedder", "embedding.provider", func(c *config.Config) { c.Embedding.Provider = "cohere" }},
		{"empty order", "generation.order", func(c *config.Config) { c.Generation.Order = nil }},
		{"unknown in order", "generation.order[1]", func(c *config.Config) { c.Generation.Order = []string{"google", "mistral"} }},
		{"repeat in order", "generation.order[1]", func(c *config.Config) { c.Generation.Order = []string{"google", "google"} }},
		{"unknown default", "generation.default", func(c *config.Config) { c.Generation.Default = "mistral" }},
		{"negative timeout", "generation.timeout", func(c *config.Config) { c.Generation.Timeout = -time.Second }},
		{"unknown provider section", "providers.mistral", func(c *config.Config) {
			c.Providers = map[string]config.ProviderConfig{"mistral": {}}
		}},
		{"empty listen", "server.listen", func(c *config.Config) { c.Server.Listen = "" }},
		{"missing port", "server.listen", func(c *config.Config) { c.Server.Listen = "127.0.0.1" }},
		{"port zero", "server.listen", func(c *config.Config) { c.Server.Listen = "127.0.0.1:0" }},
		{"port too high", "server.listen", func(c *config.Config) { c.Server.Listen = "127.0.0.1:70000" }},
		{"port not a number", "server.listen", func(c *config.Config) { c.Server.Listen = "127.0.0.1:abc" }},
		{"negative rate", "server.rate_limit.requests_per_second", func(c *config.Config) { c.Server.RateLimit.RequestsPerSecond = -1 }},
		{"rate without burst", "server.rate_limit.burst", func(c *config.Config) { c.Server.RateLimit.RequestsPerSecond = 2 }},
		{"bad level", "log.level", func(c *config.Config) { c.Log.Level = "trace" }},
		{"bad format", "log.format", func(c *config.Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			errs := cfg.Validate()
			require.Len(t, errs, 1, "%v", errs)
			assert.Contains(t, errs[0].Error(), tt.key)
			assert.True(t, lecternerr.IsInvalidInput(errs[0]))
		})
	}
}

func TestValidate_ListenAddresses(t *testing.T) {
	for _, listen := range []string{"127.0.0.1:8080", "0.0.0.0:9999", "[::1]:8080", ":8765"} {
		cfg := validConfig(t)
		cfg.Server.Listen = listen
		assert.Empty(t, cfg.Validate(), listen)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &config.Config{}
	errs := cfg.Validate()
	assert.GreaterOrEqual(t, len(errs), 8, "expected every section to report, got %d: %v", len(errs), errs)
}

func TestConversions(t *testing.T) {
	cfg := validConfig(t)
	cfg.Storage.Qdrant.TLS = true
	cfg.Storage.Metric = "l2"
	cfg.Providers = map[string]config.ProviderConfig{
		provider.OpenAI: {Env: []string{"WORK_OPENAI_KEY"}},
	}

	sc := cfg.StoreConfig()
	assert.Equal(t, "sqlite", sc.Backend)
	assert.True(t, sc.Qdrant.UseTLS)

	opts := cfg.IngestOptions("text-embedding-3-small")
	assert.Equal(t, store.MetricL2, opts.Metric)
	assert.Equal(t, "text-embedding-3-small", opts.Model)
	assert.Equal(t, 100, opts.BatchSize)
	assert.Equal(t, "Audiobook text embeddings", opts.Description)

	vars := cfg.CredentialVars()
	assert.Equal(t, []string{"WORK_OPENAI_KEY"}, vars[provider.OpenAI])
	assert.Equal(t, []string{"ANTHROPIC_API_KEY"}, vars[provider.Anthropic])

	ao := cfg.AnswerOptions()
	assert.Equal(t, 60*time.Second, ao.Timeout)
	assert.Equal(t, 1024, ao.MaxTokens)

	ec := cfg.EmbedConfig("sk-test")
	assert.Equal(t, "openai", ec.Provider)
	assert.Equal(t, "sk-test", ec.APIKey)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lectern.yaml")

	written, err := config.WriteDefault(path, false)
	require.NoError(t, err)
	assert.True(t, written)

	cfg, err := config.Load(path)
	require.NoError(t, err, "the shipped default config must validate")
	assert.Equal(t, "audiobook_embeddings", cfg.Storage.Collection)

	written, err = config.WriteDefault(path, false)
	require.NoError(t, err)
	assert.False(t, written, "existing file is kept")

	written, err = config.WriteDefault(path, true)
	require.NoError(t, err)
	assert.True(t, written)
}
