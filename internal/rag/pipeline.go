// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package rag wires retrieval, context assembly and answer generation into
// the question pipeline shared by the CLI and the HTTP API.
package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sigil-dev/lectern/internal/answer"
	"github.com/sigil-dev/lectern/internal/retrieval"
	"github.com/sigil-dev/lectern/internal/store"
	"github.com/sigil-dev/lectern/internal/telemetry"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Question is one retrieval request.
type Question struct {
	Text       string `json:"text" validate:"required,max=4000"`
	Collection string `json:"collection" validate:"required,max=63"`
	TopK       int    `json:"top_k" validate:"min=1,max=100"`
	// MaxContextChars bounds the assembled context; 0 means unbounded.
	MaxContextChars int    `json:"max_context_chars" validate:"min=0"`
	Provider        string `json:"provider" validate:"omitempty,max=32"`
	IncludeSources  bool   `json:"include_sources"`
}

// Result is what Ask produces.
type Result struct {
	Answer    *answer.Answer
	Context   retrieval.GroundedContext
	Retrieval *retrieval.Retrieval
}

// Pipeline answers questions against a vector store.
type Pipeline struct {
	store     store.VectorStore
	retriever *retrieval.Retriever
	generator *answer.Generator
	metrics   *telemetry.Metrics
	validate  *validator.Validate
}

// New builds a pipeline. metrics may be nil.
func New(vs store.VectorStore, r *retrieval.Retriever, g *answer.Generator, m *telemetry.Metrics) *Pipeline {
	if g != nil && m != nil {
		g.WithObserver(func(name string, o answer.Outcome, elapsed time.Duration) {
			m.RecordAnswer(name, string(o), elapsed)
		})
	}
	return &Pipeline{
		store:     vs,
		retriever: r,
		generator: g,
		metrics:   m,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate checks q's field constraints before any store access.
func (p *Pipeline) Validate(q Question) error {
	q.Text = strings.TrimSpace(q.Text)
	if err := p.validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return lecternerr.Errorf(lecternerr.CodePipelineQuestionInvalid,
				"%s fails %q constraint", strings.ToLower(fe.Field()), fe.Tag())
		}
		return lecternerr.Wrap(err, lecternerr.CodePipelineQuestionInvalid, "validating question")
	}
	return nil
}

// Search retrieves ranked chunks without generating an answer.
func (p *Pipeline) Search(ctx context.Context, q Question) (_ *retrieval.Retrieval, err error) {
	if err := p.Validate(q); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "rag.retrieve",
		attribute.String("collection", q.Collection),
		attribute.Int("top_k", q.TopK),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	r, err := p.retriever.Retrieve(ctx, q.Collection, q.Text, q.TopK)
	if err != nil {
		p.metrics.RecordRetrieveError(string(lecternerr.CodeOf(err)))
		return nil, err
	}
	p.metrics.RecordQuery(q.Collection)
	span.SetAttributes(attribute.Int("results", len(r.Results)))
	return r, nil
}

// Ask retrieves, assembles a grounded context and generates an answer.
// When the provider fails, the returned Result carries a failed answer
// alongside the error.
func (p *Pipeline) Ask(ctx context.Context, q Question) (*Result, error) {
	r, err := p.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	gc := retrieval.Assemble(r.Results, q.MaxContextChars)

	ctx, span := telemetry.StartSpan(ctx, "rag.answer",
		attribute.String("provider.preference", q.Provider),
		attribute.Bool("context.found", gc.Found),
		attribute.Int("context.sources", len(gc.Sources)),
	)
	a, err := p.generator.Answer(ctx, q.Text, gc, q.Provider)
	if a != nil {
		span.SetAttributes(attribute.String("answer.outcome", string(a.Outcome)))
	}
	telemetry.EndSpan(span, err)

	if a == nil {
		return nil, err
	}
	if !q.IncludeSources {
		a.Sources = nil
	}
	return &Result{Answer: a, Context: gc, Retrieval: r}, err
}

// Ingest writes records and records ingest metrics.
func (p *Pipeline) Ingest(ctx context.Context, collection string, records []store.Record, opts store.IngestOptions) (_ *store.IngestReport, err error) {
	ctx, span := telemetry.StartSpan(ctx, "rag.ingest",
		attribute.String("collection", collection),
		attribute.Int("records", len(records)),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	report, err := p.store.Ingest(ctx, collection, records, opts)
	if report != nil {
		p.metrics.RecordIngest(collection, report.Batches, report.Records, err != nil)
	} else if err != nil {
		p.metrics.RecordIngest(collection, 0, 0, true)
	}
	return report, err
}

// Store exposes the underlying store for listing and stats.
func (p *Pipeline) Store() store.VectorStore { return p.store }
