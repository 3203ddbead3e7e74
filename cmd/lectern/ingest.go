// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/lectern/internal/embed"
	"github.com/sigil-dev/lectern/internal/ingest"
)

func newIngestCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <csv>...",
		Short: "Index precomputed embeddings from CSV files",
		Long: `Reads CSV files with a "text" column and an "embedding" column holding a JSON
array of floats, and writes every row into the collection. Re-ingesting the
same file updates rows in place rather than duplicating them.

The collection is created on first ingest with the configured distance
metric; its dimensionality is taken from the first record.`,
		Args: cobra.MinimumNArgs(1),
		RunE: c.runIngest,
	}

	cmd.Flags().String("collection", "", "target collection (default storage.collection)")
	cmd.Flags().String("model", "", "embedding model recorded on a new collection (default from embedding config)")

	return cmd
}

func (c *cli) runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := c.cfg

	collection, _ := cmd.Flags().GetString("collection")
	if collection == "" {
		collection = cfg.Storage.Collection
	}
	model, _ := cmd.Flags().GetString("model")
	if model == "" {
		model = embed.ModelName(cfg.EmbedConfig(""))
	}

	app, err := wireApp(ctx, cfg, wireOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	opts := cfg.IngestOptions(model)
	out := cmd.OutOrStdout()
	for _, path := range args {
		records, err := ingest.LoadFile(path)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			slog.Warn("no records to ingest", "file", path)
			continue
		}

		report, err := app.Pipeline.Ingest(ctx, collection, records, opts)
		if err != nil {
			return err
		}
		verb := "updated"
		if report.Created {
			verb = "created"
		}
		_, _ = fmt.Fprintf(out, "%s: %d records in %d batches into %s (%s, %d total)\n",
			path, report.Records, report.Batches, report.Collection, verb, report.Count)
	}
	return nil
}
