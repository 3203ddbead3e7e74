// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package answer

import (
	"strings"

	"github.com/sigil-dev/lectern/internal/retrieval"
)

// SystemPrompt constrains the model to the supplied passages.
const SystemPrompt = `You answer questions about audiobooks using only the context passages provided by the user.
If the context does not contain the answer, say that you could not find it in the indexed material.
Do not use outside knowledge. Quote or paraphrase the passages and keep answers concise.`

const noContextInstruction = "No relevant context was found in the indexed material. " +
	"Tell the user that nothing relevant was found; do not guess."

// Prompt is the system instruction plus the user message sent to a provider.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt places the context text verbatim ahead of the question.
func BuildPrompt(query string, gc retrieval.GroundedContext) Prompt {
	var b strings.Builder
	if gc.Found {
		b.WriteString("Context:\n")
		b.WriteString(gc.Text)
	} else {
		b.WriteString(noContextInstruction)
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(strings.TrimSpace(query))
	return Prompt{System: SystemPrompt, User: b.String()}
}
