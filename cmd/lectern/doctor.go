// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/sigil-dev/lectern/internal/embed"
	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// doctorTimeout bounds the store reachability check.
const doctorTimeout = 10 * time.Second

func newDoctorCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostics",
		Long:  "Check the configuration, vector store, default collection, provider credentials and disk space.",
		Args:  cobra.NoArgs,
		RunE:  c.runDoctor,
	}
}

func (c *cli) runDoctor(cmd *cobra.Command, _ []string) error {
	w := cmd.OutOrStdout()
	cfg := c.cfg
	creds := provider.NewEnvCredentials(cfg.CredentialVars(), secretStoreFactory())

	ctx, cancel := context.WithTimeout(cmd.Context(), doctorTimeout)
	defer cancel()

	checks := []struct {
		name string
		fn   func() string
	}{
		{"Binary", checkBinary},
		{"Platform", checkPlatform},
		{"Config", c.checkConfig},
		{"Store", func() string { return c.checkStore(ctx) }},
		{"Embedding", func() string { return c.checkEmbedding(creds) }},
		{"Providers", func() string { return c.checkProviders(creds) }},
		{"Disk Space", func() string { return c.checkDiskSpace() }},
	}

	for _, chk := range checks {
		if _, err := fmt.Fprintf(w, "%-20s %s\n", chk.name+":", chk.fn()); err != nil {
			return err
		}
	}

	return nil
}

func checkBinary() string {
	return fmt.Sprintf("lectern %s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
}

func checkPlatform() string {
	return fmt.Sprintf("%s/%s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func (c *cli) checkConfig() string {
	if f := c.v.ConfigFileUsed(); f != "" {
		return fmt.Sprintf("loaded from %s", f)
	}
	return "using defaults (no config file found)"
}

func (c *cli) checkStore(ctx context.Context) string {
	cfg := c.cfg
	vs, err := store.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return fmt.Sprintf("%s unreachable: %s", cfg.Storage.Backend, err)
	}
	defer func() { _ = vs.Close() }()

	names, err := vs.ListCollections(ctx)
	if err != nil {
		return fmt.Sprintf("%s error: %s", cfg.Storage.Backend, err)
	}

	stats, err := vs.Stats(ctx, cfg.Storage.Collection)
	switch {
	case lecternerr.IsNotFound(err):
		return fmt.Sprintf("%s, %d collection(s); %q not indexed yet (run 'lectern ingest')",
			cfg.Storage.Backend, len(names), cfg.Storage.Collection)
	case err != nil:
		return fmt.Sprintf("%s, %d collection(s); %q: %s", cfg.Storage.Backend, len(names), cfg.Storage.Collection, err)
	}
	return fmt.Sprintf("%s, %d collection(s); %q has %d chunks of %d dimensions",
		cfg.Storage.Backend, len(names), stats.Name, stats.Count, stats.Dimensions)
}

func (c *cli) checkEmbedding(creds provider.CredentialSource) string {
	ec := embedConfig(c.cfg, creds)
	model := embed.ModelName(ec)
	if ec.Provider != provider.Ollama && ec.APIKey == "" {
		return fmt.Sprintf("%s/%s, no credential (search and query will fail)", ec.Provider, model)
	}
	return fmt.Sprintf("%s/%s", ec.Provider, model)
}

func (c *cli) checkProviders(creds provider.CredentialSource) string {
	available := availableProviders(newRouter(c.cfg, creds))
	if len(available) == 0 {
		return "none configured (answers fall back to retrieved context)"
	}
	return strings.Join(available, ", ")
}

func (c *cli) checkDiskSpace() string {
	path := c.cfg.Storage.Dir
	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Fall back to the working directory if the store has not been created yet.
		path = "."
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Sprintf("unable to check: %s", err)
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	return formatBytes(availBytes) + " available"
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(b uint64) string {
	const (
		gb = 1024 * 1024 * 1024
		mb = 1024 * 1024
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	default:
		return fmt.Sprintf("%d bytes", b)
	}
}
