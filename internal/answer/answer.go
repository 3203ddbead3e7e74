// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package answer turns a grounded context into a reply, degrading to the
// raw context when no generation backend can be used.
package answer

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/retrieval"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Outcome says how an answer was produced.
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	// OutcomeDegraded means no provider was available; Text is a preview of
	// the retrieved context.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeFailed means the chosen provider could not be built or returned
	// an error.
	OutcomeFailed Outcome = "failed"
)

// DegradedPrefix heads the text of degraded answers.
const DegradedPrefix = "No LLM available — showing retrieved context:"

// FailedPrefix heads the text of a failed answer. It names the provider and
// the kind of failure.
func FailedPrefix(providerName string, err error) string {
	return "Generation failed: " + providerName + " (" + FailureKind(err) + ") — showing retrieved context:"
}

// FailureKind names the class of a provider error for display.
func FailureKind(err error) string {
	switch {
	case lecternerr.IsQuotaExceeded(err):
		return "quota exceeded"
	case lecternerr.IsUnauthorized(err):
		return "authentication failed"
	case lecternerr.IsTransient(err):
		return "transient failure"
	case lecternerr.HasCode(err, lecternerr.CodeProviderSetupFailure):
		return "setup failed"
	default:
		return "request failed"
	}
}

const (
	DefaultPreviewChars = 500
	DefaultMaxTokens    = 1024
	DefaultTemperature  = 0.3
)

// Answer is the result of one question.
type Answer struct {
	Outcome  Outcome            `json:"outcome" yaml:"outcome"`
	Text     string             `json:"text" yaml:"text"`
	Sources  []retrieval.Source `json:"sources,omitempty" yaml:"sources,omitempty"`
	Provider string             `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model    string             `json:"model,omitempty" yaml:"model,omitempty"`
	Usage    provider.Usage     `json:"usage" yaml:"usage"`
	// Context is the grounded text, kept on degraded and failed answers so
	// callers can show it in full.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
}

// Selector picks a provider for a preference. *provider.Router satisfies it.
type Selector interface {
	Select(ctx context.Context, preference string) (provider.Provider, bool, error)
}

// Options tune generation.
type Options struct {
	PreviewChars int
	Temperature  float32
	MaxTokens    int
	// Timeout bounds the generation call; 0 leaves ctx as is.
	Timeout time.Duration
}

// Observer is told about every finished generation attempt.
type Observer func(providerName string, outcome Outcome, elapsed time.Duration)

// Generator answers questions from grounded context.
type Generator struct {
	selector Selector
	opts     Options
	observe  Observer
}

// NewGenerator applies defaults to zero-valued options.
func NewGenerator(sel Selector, opts Options) *Generator {
	if opts.PreviewChars <= 0 {
		opts.PreviewChars = DefaultPreviewChars
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Generator{selector: sel, opts: opts}
}

// WithObserver registers fn to be called after each answer.
func (g *Generator) WithObserver(fn Observer) *Generator {
	g.observe = fn
	return g
}

// Answer makes exactly one provider selection and at most one generation
// call. With no provider available it returns a degraded answer and a nil
// error. When the provider cannot be constructed or fails it returns both a
// failed answer and the provider's error. An explicitly requested provider
// that is unavailable returns only the error.
func (g *Generator) Answer(ctx context.Context, query string, gc retrieval.GroundedContext, preference string) (*Answer, error) {
	start := time.Now()

	p, ok, err := g.selector.Select(ctx, preference)
	if err != nil {
		if !lecternerr.HasCode(err, lecternerr.CodeProviderSetupFailure) {
			return nil, err
		}
		name, _ := lecternerr.FieldsOf(err)["provider"].(string)
		slog.Warn("provider setup failed", "provider", name, "error", err)
		return g.failed(name, err, gc, start), err
	}
	if !ok {
		slog.Info("no generation provider available, returning retrieved context")
		a := g.fallback(OutcomeDegraded, DegradedPrefix, gc)
		g.notify("", a.Outcome, start)
		return a, nil
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			slog.Debug("closing provider", "provider", p.Name(), "error", cerr)
		}
	}()

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	prompt := BuildPrompt(query, gc)
	temp := g.opts.Temperature
	resp, err := p.Generate(ctx, provider.Request{
		SystemPrompt: prompt.System,
		Messages:     []provider.Message{provider.UserMessage(prompt.User)},
		Options:      provider.Options{Temperature: &temp, MaxTokens: g.opts.MaxTokens},
	})
	if err != nil {
		slog.Warn("generation failed", "provider", p.Name(), "error", err)
		return g.failed(p.Name(), err, gc, start), err
	}

	g.notify(p.Name(), OutcomeGenerated, start)
	return &Answer{
		Outcome:  OutcomeGenerated,
		Text:     resp.Text,
		Sources:  gc.Sources,
		Provider: p.Name(),
		Model:    resp.Model,
		Usage:    resp.Usage,
	}, nil
}

func (g *Generator) failed(name string, err error, gc retrieval.GroundedContext, start time.Time) *Answer {
	a := g.fallback(OutcomeFailed, FailedPrefix(name, err), gc)
	a.Provider = name
	g.notify(name, a.Outcome, start)
	return a
}

func (g *Generator) fallback(outcome Outcome, prefix string, gc retrieval.GroundedContext) *Answer {
	return &Answer{
		Outcome: outcome,
		Text:    prefix + "\n\n" + retrieval.Preview(gc.Text, g.opts.PreviewChars),
		Sources: gc.Sources,
		Context: gc.Text,
	}
}

func (g *Generator) notify(name string, outcome Outcome, start time.Time) {
	if g.observe != nil {
		g.observe(name, outcome, time.Since(start))
	}
}
