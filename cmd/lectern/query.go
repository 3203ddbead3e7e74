// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/lectern/internal/answer"
	"github.com/sigil-dev/lectern/internal/rag"
	"github.com/sigil-dev/lectern/internal/retrieval"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// searchPreviewChars is how much of each chunk search prints.
const searchPreviewChars = 200

func newQueryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Answer a question from the indexed audiobook",
		Long: `Retrieves the chunks nearest to the question and asks a generation provider
to answer from them. When no provider has a credential configured, the
retrieved context is printed instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: c.runQuery,
	}
	addQuestionFlags(cmd)
	cmd.Flags().String("provider", "", "generation provider, or auto (default generation.default)")
	cmd.Flags().Int("max-chars", 0, "context budget in characters (default retrieval.max_context_chars)")
	cmd.Flags().Bool("sources", false, "print the chunks the answer was grounded on")
	return cmd
}

func newSearchCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Print the chunks nearest to a question without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runSearch,
	}
	addQuestionFlags(cmd)
	return cmd
}

func addQuestionFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("top-k", "k", 0, "number of chunks to retrieve (default retrieval.top_k)")
	cmd.Flags().String("collection", "", "collection to search (default storage.collection)")
}

// question builds a rag.Question from args and flags, filling unset values
// from configuration.
func (c *cli) question(cmd *cobra.Command, args []string) rag.Question {
	q := rag.Question{
		Text:            strings.Join(args, " "),
		Collection:      c.cfg.Storage.Collection,
		TopK:            c.cfg.Retrieval.TopK,
		MaxContextChars: c.cfg.Retrieval.MaxContextChars,
		Provider:        c.cfg.Generation.Default,
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("collection"); v != "" {
		q.Collection = v
	}
	if v, _ := flags.GetInt("top-k"); v != 0 {
		q.TopK = v
	}
	if flags.Lookup("max-chars") != nil {
		if v, _ := flags.GetInt("max-chars"); v != 0 {
			q.MaxContextChars = v
		}
	}
	if flags.Lookup("provider") != nil {
		if v, _ := flags.GetString("provider"); v != "" {
			q.Provider = strings.ToLower(strings.TrimSpace(v))
		}
	}
	if flags.Lookup("sources") != nil {
		q.IncludeSources, _ = flags.GetBool("sources")
	}
	return q
}

func (c *cli) runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	q := c.question(cmd, args)

	app, err := wireApp(ctx, c.cfg, wireOptions{embedder: true})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	r, err := app.Pipeline.Search(ctx, q)
	if err != nil {
		return explainRetrievalError(err, q.Collection)
	}

	out := cmd.OutOrStdout()
	printWarnings(cmd.ErrOrStderr(), r.Warnings)
	if len(r.Results) == 0 {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Nothing relevant was indexed: collection %q returned no results.\n", q.Collection)
		return nil
	}
	for i, res := range r.Results {
		_, _ = fmt.Fprintf(out, "%d. [distance %.4f] %s\n", i+1, res.Distance, retrieval.Preview(res.Text, searchPreviewChars))
	}
	return nil
}

func (c *cli) runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	q := c.question(cmd, args)

	app, err := wireApp(ctx, c.cfg, wireOptions{embedder: true})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	res, err := app.Pipeline.Ask(ctx, q)
	if res == nil {
		return explainRetrievalError(err, q.Collection)
	}

	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	printWarnings(errOut, res.Retrieval.Warnings)
	if !res.Context.Found {
		_, _ = fmt.Fprintf(errOut, "Nothing relevant was indexed: collection %q returned no usable context.\n", q.Collection)
	}

	a := res.Answer
	switch a.Outcome {
	case answer.OutcomeDegraded:
		_, _ = fmt.Fprintf(errOut, "No generation backend is configured. Set one of: %s\n",
			strings.Join(credentialHints(c.cfg.CredentialVars(), app.Router.Names()), ", "))
	case answer.OutcomeFailed:
		if lecternerr.HasCode(err, lecternerr.CodeProviderSetupFailure) {
			_, _ = fmt.Fprintf(errOut, "The generation backend could not be set up: %s: %v\n", a.Provider, err)
			break
		}
		_, _ = fmt.Fprintf(errOut, "The generation backend rejected the request: %s (%s): %v\n",
			a.Provider, answer.FailureKind(err), err)
	}

	_, _ = fmt.Fprintln(out, a.Text)
	if a.Outcome == answer.OutcomeGenerated {
		if a.Model != "" {
			_, _ = fmt.Fprintf(errOut, "(%s/%s, %d tokens)\n", a.Provider, a.Model, a.Usage.InputTokens+a.Usage.OutputTokens)
		}
	}
	if q.IncludeSources {
		printSources(out, a.Sources)
	}
	return nil
}

// explainRetrievalError rewords a missing collection so it reads as an
// empty index rather than a fault.
func explainRetrievalError(err error, collection string) error {
	if lecternerr.HasCode(err, lecternerr.CodeStoreCollectionNotFound) {
		return lecternerr.Wrapf(err, lecternerr.CodeStoreCollectionNotFound,
			"nothing relevant was indexed: collection %q does not exist, run 'lectern ingest' first", collection)
	}
	return err
}

// credentialHints lists the environment variables that would enable each
// provider, in selection order.
func credentialHints(vars map[string][]string, names []string) []string {
	var hints []string
	for _, name := range names {
		for _, v := range vars[name] {
			if !slices.Contains(hints, v) {
				hints = append(hints, v)
			}
		}
	}
	return hints
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		_, _ = fmt.Fprintf(w, "warning: %s\n", msg)
	}
}

func printSources(w io.Writer, sources []retrieval.Source) {
	if len(sources) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "\nSources:")
	for _, s := range sources {
		_, _ = fmt.Fprintf(w, "  %d. %s (distance %.4f)\n", s.Rank, s.ID, s.Distance)
	}
}
