// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

func newCollectionsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List indexed collections",
		Args:  cobra.NoArgs,
		RunE:  c.runCollections,
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [collection]",
		Short: "Show statistics for a collection",
		Args:  cobra.MaximumNArgs(1),
		RunE:  c.runStats,
	}
	cmd.Flags().StringP("output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func (c *cli) runCollections(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	app, err := wireApp(ctx, c.cfg, wireOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	names, err := app.Store.ListCollections(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(names) == 0 {
		_, _ = fmt.Fprintln(out, "No collections found. Run 'lectern ingest' to create one.")
		return nil
	}
	for _, n := range names {
		_, _ = fmt.Fprintln(out, n)
	}
	return nil
}

func (c *cli) runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	name := c.cfg.Storage.Collection
	if len(args) == 1 {
		name = args[0]
	}
	format, _ := cmd.Flags().GetString("output")
	switch format {
	case "text", "json", "yaml":
	default:
		return lecternerr.Errorf(lecternerr.CodeCLIInputInvalid, "unknown output format %q, want text, json or yaml", format)
	}

	app, err := wireApp(ctx, c.cfg, wireOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	stats, err := app.Store.Stats(ctx, name)
	if err != nil {
		return explainRetrievalError(err, name)
	}
	return writeStats(cmd.OutOrStdout(), stats, format)
}

func writeStats(w io.Writer, s *store.CollectionStats, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return lecternerr.Wrap(err, lecternerr.CodeCLIOutputFailure, "encoding stats as json")
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return lecternerr.Wrap(err, lecternerr.CodeCLIOutputFailure, "encoding stats as yaml")
		}
		return enc.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "Collection:\t%s\n", s.Name)
	_, _ = fmt.Fprintf(tw, "Chunks:\t%d\n", s.Count)
	_, _ = fmt.Fprintf(tw, "Dimensions:\t%d\n", s.Dimensions)
	_, _ = fmt.Fprintf(tw, "Metric:\t%s\n", s.Metric)
	if s.Model != "" {
		_, _ = fmt.Fprintf(tw, "Model:\t%s\n", s.Model)
	}
	if s.Description != "" {
		_, _ = fmt.Fprintf(tw, "Description:\t%s\n", s.Description)
	}
	if !s.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(tw, "Created:\t%s\n", s.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
