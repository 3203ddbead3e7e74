// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package retrieval turns a question into ranked chunks and a bounded
// grounding context.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sigil-dev/lectern/internal/embed"
	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Retrieval is the ranked outcome of one query.
type Retrieval struct {
	Collection string
	Results    []store.Result
	// Warnings lists non-fatal problems, such as an embedding model that
	// differs from the one the collection was built with.
	Warnings []string
	Stats    *store.CollectionStats
}

// Retriever embeds questions and ranks them against a store.
type Retriever struct {
	store    store.VectorStore
	embedder embed.Embedder
}

func NewRetriever(vs store.VectorStore, e embed.Embedder) *Retriever {
	return &Retriever{store: vs, embedder: e}
}

// Retrieve returns at most k results for queryText, nearest first.
func (r *Retriever) Retrieve(ctx context.Context, collection, queryText string, k int) (*Retrieval, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, lecternerr.New(lecternerr.CodeRetrievalQueryInvalid, "query text is empty")
	}
	if k <= 0 {
		return nil, lecternerr.Errorf(lecternerr.CodeRetrievalQueryInvalid, "k must be positive, got %d", k)
	}

	stats, err := r.store.Stats(ctx, collection)
	if err != nil {
		return nil, err
	}

	vec, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	if stats.Dimensions > 0 && len(vec) != stats.Dimensions {
		return nil, lecternerr.Errorf(lecternerr.CodeStoreQueryDimension,
			"embedder %q produced %d dimensions, collection %q holds %d",
			r.embedder.Model(), len(vec), collection, stats.Dimensions)
	}

	out := &Retrieval{Collection: collection, Stats: stats}

	if stats.Model != "" && stats.Model != r.embedder.Model() {
		msg := fmt.Sprintf("collection %q was embedded with %q but queries use %q; rankings may be meaningless",
			collection, stats.Model, r.embedder.Model())
		slog.Warn("embedding model mismatch",
			"collection", collection,
			"ingest_model", stats.Model,
			"query_model", r.embedder.Model(),
		)
		out.Warnings = append(out.Warnings, msg)
	}

	results, err := r.store.Query(ctx, collection, vec, k)
	if err != nil {
		return nil, err
	}
	out.Results = results
	return out, nil
}
