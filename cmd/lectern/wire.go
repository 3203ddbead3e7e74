// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sigil-dev/lectern/internal/answer"
	"github.com/sigil-dev/lectern/internal/config"
	"github.com/sigil-dev/lectern/internal/embed"
	"github.com/sigil-dev/lectern/internal/provider"
	anthropicprov "github.com/sigil-dev/lectern/internal/provider/anthropic"
	googleprov "github.com/sigil-dev/lectern/internal/provider/google"
	ollamaprov "github.com/sigil-dev/lectern/internal/provider/ollama"
	openaiprov "github.com/sigil-dev/lectern/internal/provider/openai"
	openrouterprov "github.com/sigil-dev/lectern/internal/provider/openrouter"
	"github.com/sigil-dev/lectern/internal/rag"
	"github.com/sigil-dev/lectern/internal/retrieval"
	"github.com/sigil-dev/lectern/internal/store"
	_ "github.com/sigil-dev/lectern/internal/store/pgvector" // register pgvector backend
	_ "github.com/sigil-dev/lectern/internal/store/qdrant"   // register qdrant backend
	_ "github.com/sigil-dev/lectern/internal/store/sqlite"   // register sqlite backend
	"github.com/sigil-dev/lectern/internal/telemetry"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Package-level factories so tests can substitute fakes.
var (
	embedderFactory = embed.New

	providerFactories = map[string]provider.Factory{
		provider.Google:     googleprov.Factory,
		provider.OpenRouter: openrouterprov.Factory,
		provider.Ollama:     ollamaprov.Factory,
		provider.OpenAI:     openaiprov.Factory,
		provider.Anthropic:  anthropicprov.Factory,
	}
)

// App holds the wired subsystems for one command invocation.
type App struct {
	Config   *config.Config
	Store    store.VectorStore
	Creds    provider.CredentialSource
	Router   *provider.Router
	Metrics  *telemetry.Metrics
	Pipeline *rag.Pipeline
	// Embedder is nil unless the app was wired for querying.
	Embedder embed.Embedder

	closers []func() error
}

type wireOptions struct {
	// embedder wires query embedding; ingest and listing do not need it.
	embedder bool
	tracing  bool
}

// wireApp opens the store and builds the pipeline. Callers must Close the
// returned App.
func wireApp(ctx context.Context, cfg *config.Config, opts wireOptions) (_ *App, err error) {
	app := &App{
		Config:  cfg,
		Creds:   provider.NewEnvCredentials(cfg.CredentialVars(), secretStoreFactory()),
		Metrics: telemetry.NewMetrics(),
	}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if opts.tracing {
		shutdown, err := telemetry.SetupTracing(ctx, "lectern", cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func() error { return shutdown(context.Background()) })
	}

	vs, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return nil, lecternerr.Wrapf(err, lecternerr.CodeCLISetupFailure, "opening %s store", cfg.Storage.Backend)
	}
	app.Store = vs
	app.closers = append(app.closers, vs.Close)

	app.Router = newRouter(cfg, app.Creds)

	var retriever *retrieval.Retriever
	if opts.embedder {
		e, closeFn, err := embedderFactory(ctx, embedConfig(cfg, app.Creds))
		if err != nil {
			return nil, lecternerr.Wrapf(err, lecternerr.CodeCLISetupFailure, "creating %s embedder", cfg.Embedding.Provider)
		}
		app.Embedder = e
		app.closers = append(app.closers, closeFn)
		retriever = retrieval.NewRetriever(vs, e)
	}

	gen := answer.NewGenerator(app.Router, cfg.AnswerOptions())
	app.Pipeline = rag.New(vs, retriever, gen, app.Metrics)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newRouter(cfg *config.Config, creds provider.CredentialSource) *provider.Router {
	r := provider.NewRouter(creds, cfg.Generation.Order)
	for name, f := range providerFactories {
		r.Register(name, f, cfg.ProviderSettings(name))
	}
	return r
}

// embedConfig takes the embedding API key from the generation provider of
// the same name. For ollama the credential is the server address.
func embedConfig(cfg *config.Config, creds provider.CredentialSource) embed.Config {
	name := cfg.Embedding.Provider
	if name == "gemini" {
		name = provider.Google
	}
	key, ok := creds.Credential(name)
	if !ok {
		slog.Debug("no credential for embedding provider", "provider", name)
	}

	ec := cfg.EmbedConfig(key)
	if name == provider.Ollama {
		ec.APIKey = ""
		if ec.BaseURL == "" {
			ec.BaseURL = key
		}
	}
	return ec
}
