// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
)

// Known provider names.
const (
	Google     = "google"
	OpenRouter = "openrouter"
	Ollama     = "ollama"
	OpenAI     = "openai"
	Anthropic  = "anthropic"
)

// Auto asks the router to pick the first available provider.
const Auto = "auto"

// DefaultOrder lists providers free tier first. Auto selection walks it in
// order.
var DefaultOrder = []string{Google, OpenRouter, Ollama, OpenAI, Anthropic}

// Provider is a text generation backend.
type Provider interface {
	Name() string
	// Generate sends one request and waits for the complete reply. Errors
	// carry one of the provider.upstream.* codes (see Classify).
	Generate(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Request is a single-turn generation request.
type Request struct {
	// Model overrides the provider's configured model when set.
	Model        string
	SystemPrompt string
	Messages     []Message
	Options      Options
}

// Options contains model configuration.
type Options struct {
	Temperature *float32
	MaxTokens   int
}

// Message is one conversation turn.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole defines the role of a message sender.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Response is a completed generation.
type Response struct {
	Text     string
	Provider string
	Model    string
	Usage    Usage
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
}

// Settings configures one provider.
type Settings struct {
	Model   string
	BaseURL string
	// Env names the environment variables holding the credential, first
	// non-empty wins.
	Env []string
}

// Factory builds a provider from its credential and settings.
type Factory func(ctx context.Context, credential string, s Settings) (Provider, error)

// DefaultEnv maps each known provider to the environment variables that
// carry its credential. For Ollama the "credential" is the server address.
func DefaultEnv() map[string][]string {
	return map[string][]string{
		Google:     {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
		OpenRouter: {"OPENROUTER_API_KEY"},
		Ollama:     {"OLLAMA_HOST"},
		OpenAI:     {"OPENAI_API_KEY"},
		Anthropic:  {"ANTHROPIC_API_KEY"},
	}
}

// UserMessage wraps content in a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}
