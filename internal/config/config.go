// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package config

import (
	"errors"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sigil-dev/lectern/internal/answer"
	"github.com/sigil-dev/lectern/internal/embed"
	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// EnvPrefix is prepended to every environment override, e.g.
// LECTERN_STORAGE_BACKEND for storage.backend.
const EnvPrefix = "LECTERN"

// Config is the top-level lectern configuration.
type Config struct {
	Storage    StorageConfig             `mapstructure:"storage"`
	Ingest     IngestConfig              `mapstructure:"ingest"`
	Retrieval  RetrievalConfig           `mapstructure:"retrieval"`
	Answer     AnswerConfig              `mapstructure:"answer"`
	Embedding  EmbeddingConfig           `mapstructure:"embedding"`
	Generation GenerationConfig          `mapstructure:"generation"`
	Providers  map[string]ProviderConfig `mapstructure:"providers"`
	Server     ServerConfig              `mapstructure:"server"`
	Log        LogConfig                 `mapstructure:"log"`
	Telemetry  TelemetryConfig           `mapstructure:"telemetry"`
}

// StorageConfig selects the vector store backend and default collection.
type StorageConfig struct {
	Backend    string         `mapstructure:"backend"`
	Dir        string         `mapstructure:"dir"`
	Collection string         `mapstructure:"collection"`
	Metric     string         `mapstructure:"metric"`
	Qdrant     QdrantConfig   `mapstructure:"qdrant"`
	PGVector   PGVectorConfig `mapstructure:"pgvector"`
}

type QdrantConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
	TLS    bool   `mapstructure:"tls"`
}

type PGVectorConfig struct {
	DSN string `mapstructure:"dsn"`
}

type IngestConfig struct {
	BatchSize   int    `mapstructure:"batch_size"`
	Description string `mapstructure:"description"`
}

type RetrievalConfig struct {
	TopK            int `mapstructure:"top_k"`
	MaxContextChars int `mapstructure:"max_context_chars"`
}

type AnswerConfig struct {
	PreviewChars int     `mapstructure:"preview_chars"`
	Temperature  float32 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"max_tokens"`
}

// EmbeddingConfig chooses the model queries are embedded with. It must
// match the model the collection was built with. An empty Model selects the
// provider's default.
type EmbeddingConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	BaseURL  string `mapstructure:"base_url"`
	CacheDir string `mapstructure:"cache_dir"`
}

// GenerationConfig controls provider routing.
type GenerationConfig struct {
	Order   []string      `mapstructure:"order"`
	Default string        `mapstructure:"default"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ProviderConfig overrides one provider's model, endpoint or credential
// variables.
type ProviderConfig struct {
	Model   string   `mapstructure:"model"`
	BaseURL string   `mapstructure:"base_url"`
	Env     []string `mapstructure:"env"`
}

type ServerConfig struct {
	Listen      string          `mapstructure:"listen"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles search and ask per client IP. A zero rate
// disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig enables OTLP/HTTP trace export when Endpoint is set.
type TelemetryConfig struct {
	Endpoint string `mapstructure:"otlp_endpoint"`
	Insecure bool   `mapstructure:"otlp_insecure"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.dir", "./vectordb")
	v.SetDefault("storage.collection", "audiobook_embeddings")
	v.SetDefault("storage.metric", string(store.MetricCosine))
	v.SetDefault("storage.qdrant.host", "localhost")
	v.SetDefault("storage.qdrant.port", 6334)
	v.SetDefault("storage.qdrant.api_key", "")
	v.SetDefault("storage.qdrant.tls", false)
	v.SetDefault("storage.pgvector.dsn", "")
	v.SetDefault("ingest.batch_size", store.DefaultBatchSize)
	v.SetDefault("ingest.description", "Audiobook text embeddings")
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.max_context_chars", 4000)
	v.SetDefault("answer.preview_chars", answer.DefaultPreviewChars)
	v.SetDefault("answer.temperature", answer.DefaultTemperature)
	v.SetDefault("answer.max_tokens", answer.DefaultMaxTokens)
	v.SetDefault("embedding.provider", provider.OpenAI)
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.cache_dir", "")
	v.SetDefault("generation.order", slices.Clone(provider.DefaultOrder))
	v.SetDefault("generation.default", provider.Auto)
	v.SetDefault("generation.timeout", "60s")
	v.SetDefault("server.listen", "127.0.0.1:8765")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit.requests_per_second", 0)
	v.SetDefault("server.rate_limit.burst", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", false)
}

// SetupEnv maps LECTERN_SECTION_KEY environment variables onto section.key.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, lecternerr.Errorf(lecternerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, lecternerr.Errorf(lecternerr.CodeConfigParseInvalidFormat, "unmarshalling config: %w", err)
	}
	cfg.normalize()

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, lecternerr.Errorf(lecternerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	c.Generation.Default = strings.ToLower(strings.TrimSpace(c.Generation.Default))
	for i, name := range c.Generation.Order {
		c.Generation.Order[i] = strings.ToLower(strings.TrimSpace(name))
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateEmbedding()...)
	errs = append(errs, c.validateGeneration()...)
	errs = append(errs, c.validateServer()...)
	errs = append(errs, c.validateLog()...)

	return errs
}

func invalid(format string, args ...any) error {
	return lecternerr.Errorf(lecternerr.CodeConfigValidateInvalidValue, "config: "+format, args...)
}

func (c *Config) validateStorage() []error {
	var errs []error

	switch c.Storage.Backend {
	case "sqlite":
		if strings.TrimSpace(c.Storage.Dir) == "" {
			errs = append(errs, invalid("storage.dir must not be empty for the sqlite backend"))
		}
	case "qdrant":
		if c.Storage.Qdrant.Host == "" {
			errs = append(errs, invalid("storage.qdrant.host must not be empty"))
		}
		if p := c.Storage.Qdrant.Port; p < 1 || p > 65535 {
			errs = append(errs, invalid("storage.qdrant.port must be between 1 and 65535, got %d", p))
		}
	case "pgvector":
		if c.Storage.PGVector.DSN == "" {
			errs = append(errs, invalid("storage.pgvector.dsn must not be empty for the pgvector backend"))
		}
	default:
		errs = append(errs, invalid("storage.backend must be one of [sqlite, qdrant, pgvector], got %q", c.Storage.Backend))
	}

	if err := store.ValidateCollectionName(c.Storage.Collection); err != nil {
		errs = append(errs, invalid("storage.collection: %w", err))
	}
	if _, err := store.ParseMetric(c.Storage.Metric); err != nil {
		errs = append(errs, invalid("storage.metric: %w", err))
	}

	return errs
}

func (c *Config) validatePipeline() []error {
	var errs []error

	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, invalid("ingest.batch_size must be greater than 0, got %d", c.Ingest.BatchSize))
	}
	if k := c.Retrieval.TopK; k < 1 || k > 100 {
		errs = append(errs, invalid("retrieval.top_k must be between 1 and 100, got %d", k))
	}
	if c.Retrieval.MaxContextChars < 0 {
		errs = append(errs, invalid("retrieval.max_context_chars must not be negative, got %d", c.Retrieval.MaxContextChars))
	}
	if c.Answer.PreviewChars <= 0 {
		errs = append(errs, invalid("answer.preview_chars must be greater than 0, got %d", c.Answer.PreviewChars))
	}
	if t := c.Answer.Temperature; t < 0 || t > 2 {
		errs = append(errs, invalid("answer.temperature must be between 0 and 2, got %g", t))
	}
	if c.Answer.MaxTokens <= 0 {
		errs = append(errs, invalid("answer.max_tokens must be greater than 0, got %d", c.Answer.MaxTokens))
	}

	return errs
}

func (c *Config) validateEmbedding() []error {
	var errs []error

	switch c.Embedding.Provider {
	case provider.OpenAI, provider.Google, "gemini", provider.Ollama:
	default:
		errs = append(errs, invalid("embedding.provider must be one of [openai, google, ollama], got %q", c.Embedding.Provider))
	}

	return errs
}

func (c *Config) validateGeneration() []error {
	var errs []error

	known := make(map[string]bool, len(provider.DefaultOrder))
	for _, name := range provider.DefaultOrder {
		known[name] = true
	}

	if len(c.Generation.Order) == 0 {
		errs = append(errs, invalid("generation.order must name at least one provider"))
	}
	seen := make(map[string]bool, len(c.Generation.Order))
	for i, name := range c.Generation.Order {
		if !known[name] {
			errs = append(errs, invalid("generation.order[%d] names unknown provider %q", i, name))
			continue
		}
		if seen[name] {
			errs = append(errs, invalid("generation.order[%d] repeats provider %q", i, name))
		}
		seen[name] = true
	}

	if d := c.Generation.Default; d != "" && d != provider.Auto && !known[d] {
		errs = append(errs, invalid("generation.default must be auto or a known provider, got %q", d))
	}
	if c.Generation.Timeout < 0 {
		errs = append(errs, invalid("generation.timeout must not be negative, got %s", c.Generation.Timeout))
	}

	for name := range c.Providers {
		if !known[name] {
			errs = append(errs, invalid("providers.%s is not a known provider", name))
		}
	}

	return errs
}

func (c *Config) validateServer() []error {
	var errs []error

	if rl := c.Server.RateLimit; rl.RequestsPerSecond < 0 {
		errs = append(errs, invalid("server.rate_limit.requests_per_second must not be negative, got %g", rl.RequestsPerSecond))
	} else if rl.RequestsPerSecond > 0 && rl.Burst <= 0 {
		errs = append(errs, invalid("server.rate_limit.burst must be greater than 0 when a rate is set, got %d", rl.Burst))
	}

	if c.Server.Listen == "" {
		errs = append(errs, invalid("server.listen must not be empty"))
		return errs
	}

	_, portStr, err := net.SplitHostPort(c.Server.Listen)
	if err != nil {
		errs = append(errs, invalid("server.listen must be a valid host:port address, got %q: %w", c.Server.Listen, err))
		return errs
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		errs = append(errs, invalid("server.listen port must be a number, got %q", portStr))
	} else if port < 1 || port > 65535 {
		errs = append(errs, invalid("server.listen port must be between 1 and 65535, got %d", port))
	}

	return errs
}

func (c *Config) validateLog() []error {
	var errs []error

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, invalid("log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, invalid("log.format must be one of [text, json], got %q", c.Log.Format))
	}

	return errs
}

// StoreConfig converts the storage section for store.Open.
func (c *Config) StoreConfig() *store.StorageConfig {
	return &store.StorageConfig{
		Backend: c.Storage.Backend,
		Dir:     c.Storage.Dir,
		Qdrant: store.QdrantConfig{
			Host:   c.Storage.Qdrant.Host,
			Port:   c.Storage.Qdrant.Port,
			APIKey: c.Storage.Qdrant.APIKey,
			UseTLS: c.Storage.Qdrant.TLS,
		},
		PGVector: store.PGVectorConfig{DSN: c.Storage.PGVector.DSN},
	}
}

// IngestOptions returns the options new collections are created with,
// recording model as the collection's embedding model.
func (c *Config) IngestOptions(model string) store.IngestOptions {
	m, _ := store.ParseMetric(c.Storage.Metric)
	return store.IngestOptions{
		BatchSize:   c.Ingest.BatchSize,
		Metric:      m,
		Model:       model,
		Description: c.Ingest.Description,
	}
}

// ProviderSettings returns the settings for the named generation provider.
func (c *Config) ProviderSettings(name string) provider.Settings {
	pc := c.Providers[name]
	return provider.Settings{Model: pc.Model, BaseURL: pc.BaseURL, Env: pc.Env}
}

// CredentialVars merges per-provider env overrides over the defaults.
func (c *Config) CredentialVars() map[string][]string {
	vars := provider.DefaultEnv()
	for name, pc := range c.Providers {
		if len(pc.Env) > 0 {
			vars[name] = pc.Env
		}
	}
	return vars
}

// AnswerOptions converts the answer and generation sections.
func (c *Config) AnswerOptions() answer.Options {
	return answer.Options{
		PreviewChars: c.Answer.PreviewChars,
		Temperature:  c.Answer.Temperature,
		MaxTokens:    c.Answer.MaxTokens,
		Timeout:      c.Generation.Timeout,
	}
}

// EmbedConfig converts the embedding section. apiKey comes from the
// credential source of the provider with the same name.
func (c *Config) EmbedConfig(apiKey string) embed.Config {
	return embed.Config{
		Provider: c.Embedding.Provider,
		Model:    c.Embedding.Model,
		APIKey:   apiKey,
		BaseURL:  c.Embedding.BaseURL,
		CacheDir: c.Embedding.CacheDir,
	}
}
