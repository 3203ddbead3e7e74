// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search and ask HTTP API",
		Long:  "Load configuration, open the vector store and serve the REST API with an OpenAPI document at /openapi.json and Prometheus metrics at /metrics.",
		Args:  cobra.NoArgs,
		RunE:  c.runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func (c *cli) runServe(cmd *cobra.Command, _ []string) error {
	cfg := c.cfg
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := wireApp(ctx, cfg, wireOptions{embedder: true, tracing: true})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	server.Version = version
	srv, err := server.New(server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		AskRateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	srv.RegisterServices(&server.Services{
		Pipeline: app.Pipeline,
		Defaults: server.Defaults{
			Collection:      cfg.Storage.Collection,
			TopK:            cfg.Retrieval.TopK,
			MaxContextChars: cfg.Retrieval.MaxContextChars,
			Provider:        cfg.Generation.Default,
		},
	})
	srv.MountMetrics(app.Metrics.Handler())

	slog.Info("serving", "listen", cfg.Server.Listen, "backend", cfg.Storage.Backend,
		"collection", cfg.Storage.Collection, "providers", availableProviders(app.Router))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// availableProviders lists the registered providers with a credential, in
// selection order.
func availableProviders(r *provider.Router) []string {
	snap := r.Snapshot()
	var names []string
	for _, n := range r.Names() {
		if snap[n] {
			names = append(names, n)
		}
	}
	return names
}
