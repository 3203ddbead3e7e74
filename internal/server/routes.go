// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/sigil-dev/lectern/internal/answer"
	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/rag"
	"github.com/sigil-dev/lectern/internal/retrieval"
	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Pipeline is the part of *rag.Pipeline the API serves.
type Pipeline interface {
	Search(ctx context.Context, q rag.Question) (*retrieval.Retrieval, error)
	Ask(ctx context.Context, q rag.Question) (*rag.Result, error)
	Store() store.VectorStore
}

// Defaults fill request fields the caller leaves out.
type Defaults struct {
	Collection      string
	TopK            int
	MaxContextChars int
	Provider        string
}

// Services are the dependencies behind the REST routes.
type Services struct {
	Pipeline Pipeline
	Defaults Defaults
}

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.registerRoutes(svc)
}

func (s *Server) registerRoutes(svc *Services) {
	h := &handlers{pipeline: svc.Pipeline, defaults: svc.Defaults}

	huma.Register(s.api, huma.Operation{
		OperationID: "list-collections",
		Method:      http.MethodGet,
		Path:        "/api/v1/collections",
		Summary:     "List collections",
		Tags:        []string{"collections"},
	}, h.listCollections)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-collection",
		Method:      http.MethodGet,
		Path:        "/api/v1/collections/{name}",
		Summary:     "Get collection statistics",
		Tags:        []string{"collections"},
	}, h.getCollection)

	huma.Register(s.api, huma.Operation{
		OperationID: "search",
		Method:      http.MethodPost,
		Path:        "/api/v1/search",
		Summary:     "Rank indexed chunks against a question",
		Tags:        []string{"retrieval"},
		Middlewares: huma.Middlewares{s.rateLimited},
	}, h.search)

	huma.Register(s.api, huma.Operation{
		OperationID: "ask",
		Method:      http.MethodPost,
		Path:        "/api/v1/ask",
		Summary:     "Answer a question from indexed context",
		Description: "Returns a generated answer, or the retrieved context with outcome \"degraded\" when no generation provider is configured.",
		Tags:        []string{"retrieval"},
		Middlewares: huma.Middlewares{s.rateLimited},
	}, h.ask)
}

type handlers struct {
	pipeline Pipeline
	defaults Defaults
}

// --- Request/Response types for huma ---

type listCollectionsOutput struct {
	Body struct {
		Collections []string `json:"collections"`
	}
}

type collectionInput struct {
	Name string `path:"name" maxLength:"63"`
}
type collectionOutput struct {
	Body *store.CollectionStats
}

// QuestionBody is the JSON body of search and ask requests. Zero fields take
// the server's configured defaults.
type QuestionBody struct {
	Text            string `json:"text" minLength:"1" maxLength:"4000" doc:"Question text"`
	Collection      string `json:"collection,omitempty" doc:"Collection to search"`
	TopK            int    `json:"top_k,omitempty" minimum:"0" maximum:"100" doc:"Number of chunks to retrieve"`
	MaxContextChars int    `json:"max_context_chars,omitempty" minimum:"0" doc:"Context budget in characters"`
	Provider        string `json:"provider,omitempty" doc:"Generation provider, or auto"`
	IncludeSources  bool   `json:"include_sources,omitempty" doc:"Return the cited chunks"`
}

type questionInput struct {
	Body QuestionBody
}

type searchOutput struct {
	Body struct {
		Collection string         `json:"collection"`
		Results    []store.Result `json:"results"`
		Warnings   []string       `json:"warnings,omitempty"`
	}
}

// AnswerBody is the JSON body of an ask response.
type AnswerBody struct {
	Outcome   answer.Outcome     `json:"outcome" enum:"generated,degraded" doc:"How the answer was produced"`
	Text      string             `json:"text"`
	Provider  string             `json:"provider,omitempty"`
	Model     string             `json:"model,omitempty"`
	Usage     provider.Usage     `json:"usage"`
	Sources   []retrieval.Source `json:"sources,omitempty"`
	Truncated bool               `json:"truncated" doc:"Some retrieved chunks did not fit the context budget"`
	Warnings  []string           `json:"warnings,omitempty"`
}

type askOutput struct {
	Body AnswerBody
}

// --- Handlers ---

func (h *handlers) listCollections(ctx context.Context, _ *struct{}) (*listCollectionsOutput, error) {
	names, err := h.pipeline.Store().ListCollections(ctx)
	if err != nil {
		return nil, apiError("listing collections", err)
	}
	out := &listCollectionsOutput{}
	out.Body.Collections = names
	if out.Body.Collections == nil {
		out.Body.Collections = []string{}
	}
	return out, nil
}

func (h *handlers) getCollection(ctx context.Context, in *collectionInput) (*collectionOutput, error) {
	stats, err := h.pipeline.Store().Stats(ctx, in.Name)
	if err != nil {
		return nil, apiError("reading collection", err)
	}
	return &collectionOutput{Body: stats}, nil
}

func (h *handlers) search(ctx context.Context, in *questionInput) (*searchOutput, error) {
	r, err := h.pipeline.Search(ctx, h.question(in.Body))
	if err != nil {
		return nil, apiError("searching", err)
	}
	out := &searchOutput{}
	out.Body.Collection = r.Collection
	out.Body.Results = r.Results
	out.Body.Warnings = r.Warnings
	if out.Body.Results == nil {
		out.Body.Results = []store.Result{}
	}
	return out, nil
}

// ask maps a failed generation to the provider error's status. A degraded
// answer is a 200.
func (h *handlers) ask(ctx context.Context, in *questionInput) (*askOutput, error) {
	res, err := h.pipeline.Ask(ctx, h.question(in.Body))
	if err != nil {
		return nil, apiError("answering", err)
	}
	a := res.Answer
	out := &askOutput{Body: AnswerBody{
		Outcome:   a.Outcome,
		Text:      a.Text,
		Provider:  a.Provider,
		Model:     a.Model,
		Usage:     a.Usage,
		Sources:   a.Sources,
		Truncated: res.Context.Truncated,
	}}
	if res.Retrieval != nil {
		out.Body.Warnings = res.Retrieval.Warnings
	}
	return out, nil
}

func (h *handlers) question(b QuestionBody) rag.Question {
	q := rag.Question{
		Text:            b.Text,
		Collection:      b.Collection,
		TopK:            b.TopK,
		MaxContextChars: b.MaxContextChars,
		Provider:        b.Provider,
		IncludeSources:  b.IncludeSources,
	}
	if q.Collection == "" {
		q.Collection = h.defaults.Collection
	}
	if q.TopK == 0 {
		q.TopK = h.defaults.TopK
	}
	if q.MaxContextChars == 0 {
		q.MaxContextChars = h.defaults.MaxContextChars
	}
	if q.Provider == "" {
		q.Provider = h.defaults.Provider
	}
	return q
}

// apiError converts a lectern error into a huma status error. Internal
// failures are logged and their detail withheld from the client.
func apiError(action string, err error) error {
	status := lecternerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		slog.Error(action, "error", err, "code", lecternerr.CodeOf(err))
		return huma.Error500InternalServerError(action + " failed")
	}
	slog.Debug(action, "error", err, "code", lecternerr.CodeOf(err))
	return huma.NewError(status, err.Error())
}
