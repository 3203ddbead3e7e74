// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package retrieval

import (
	"strings"
	"unicode/utf8"

	"github.com/sigil-dev/lectern/internal/store"
)

const (
	// Separator sits between chunks in the assembled context.
	Separator = "\n\n---\n\n"
	// NoContextMarker replaces the context text when nothing was retrieved.
	NoContextMarker = "No relevant context found."
)

// Source cites one chunk included in a GroundedContext.
type Source struct {
	Rank     int            `json:"rank" yaml:"rank"`
	ID       string         `json:"id" yaml:"id"`
	Distance float64        `json:"distance" yaml:"distance"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// GroundedContext is the text handed to the generator plus its citations,
// in the same order.
type GroundedContext struct {
	Text    string
	Sources []Source
	// Found is false when no chunk made it into Text.
	Found bool
	// Truncated reports that at least one retrieved chunk was left out.
	Truncated bool
}

// Assemble joins result texts in the given order until the next chunk
// would push the total past maxChars runes. maxChars <= 0 disables the
// bound.
func Assemble(results []store.Result, maxChars int) GroundedContext {
	if len(results) == 0 {
		return GroundedContext{Text: NoContextMarker}
	}

	var (
		b       strings.Builder
		used    int
		sources []Source
	)
	sepLen := utf8.RuneCountInString(Separator)

	for i, r := range results {
		n := utf8.RuneCountInString(r.Text)
		if i > 0 {
			n += sepLen
		}
		if maxChars > 0 && used+n > maxChars {
			break
		}
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString(r.Text)
		used += n
		sources = append(sources, Source{
			Rank:     i + 1,
			ID:       r.ID,
			Distance: r.Distance,
			Metadata: r.Metadata,
		})
	}

	if len(sources) == 0 {
		return GroundedContext{Text: NoContextMarker, Truncated: true}
	}
	return GroundedContext{
		Text:      b.String(),
		Sources:   sources,
		Found:     true,
		Truncated: len(sources) < len(results),
	}
}

// Preview returns the first n runes of s.
func Preview(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
