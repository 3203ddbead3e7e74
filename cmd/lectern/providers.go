// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/lectern/internal/provider"
)

func newProvidersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show which generation providers have credentials configured",
		Long: `Lists every generation provider in auto-selection order with the
environment variables it reads. The provider marked with * is the one a
query would use right now.`,
		Args: cobra.NoArgs,
		RunE: c.runProviders,
	}
}

func (c *cli) runProviders(cmd *cobra.Command, _ []string) error {
	cfg := c.cfg
	vars := cfg.CredentialVars()
	creds := provider.NewEnvCredentials(vars, secretStoreFactory())
	router := newRouter(cfg, creds)

	snap := router.Snapshot()
	// An unavailable explicit default still lists the table.
	chosen, ok, _ := provider.Choose(snap, cfg.Generation.Default, router.Order())

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\tPROVIDER\tAVAILABLE\tMODEL\tCREDENTIAL")
	for _, name := range router.Names() {
		mark := ""
		if ok && name == chosen {
			mark = "*"
		}
		avail := "no"
		if snap[name] {
			avail = "yes"
		}
		model := "(default)"
		if s, _ := router.Settings(name); s.Model != "" {
			model = s.Model
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, name, avail, model, strings.Join(vars[name], " | "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !ok {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(),
			"No generation backend is configured for %q; queries will show retrieved context only.\n", cfg.Generation.Default)
	}
	return nil
}
