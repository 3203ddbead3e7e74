// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/lectern/internal/embed"
	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/secrets"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string // key -> value (service is always "lectern")
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Set(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Get(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", lecternerr.Errorf(lecternerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return lecternerr.Errorf(lecternerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// useSecretStore swaps secretStoreFactory for the duration of the test.
func useSecretStore(t *testing.T, s *mockSecretStore) {
	t.Helper()
	orig := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return s }
	t.Cleanup(func() { secretStoreFactory = orig })
}

// keywordEmbedder maps text onto three axes by keyword so tests can predict
// the ranking without a real model.
type keywordEmbedder struct{ model string }

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "dragon"):
		return []float32{0, 1, 0}, nil
	case strings.Contains(t, "river"):
		return []float32{0, 0, 1}, nil
	default:
		return []float32{1, 0, 0}, nil
	}
}

func (e keywordEmbedder) Model() string { return e.model }

func useKeywordEmbedder(t *testing.T) {
	t.Helper()
	orig := embedderFactory
	embedderFactory = func(_ context.Context, cfg embed.Config) (embed.Embedder, func() error, error) {
		return keywordEmbedder{model: embed.ModelName(cfg)}, func() error { return nil }, nil
	}
	t.Cleanup(func() { embedderFactory = orig })
}

// fakeProvider answers every request with text, or fails with err.
type fakeProvider struct {
	name string
	text string
	err  error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Generate(_ context.Context, _ provider.Request) (*provider.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &provider.Response{
		Text:     p.text,
		Provider: p.name,
		Model:    "fake-1",
		Usage:    provider.Usage{InputTokens: 40, OutputTokens: 8},
	}, nil
}

func (p *fakeProvider) Close() error { return nil }

// useProviders replaces the registered provider factories.
func useProviders(t *testing.T, fakes ...*fakeProvider) {
	t.Helper()
	orig := providerFactories
	providerFactories = make(map[string]provider.Factory, len(fakes))
	for _, f := range fakes {
		providerFactories[f.name] = func(context.Context, string, provider.Settings) (provider.Provider, error) {
			return f, nil
		}
	}
	t.Cleanup(func() { providerFactories = orig })
}

// clearCredentials unsets every provider credential variable.
func clearCredentials(t *testing.T) {
	t.Helper()
	for _, vars := range provider.DefaultEnv() {
		for _, v := range vars {
			t.Setenv(v, "")
		}
	}
}

// testConfig writes a config pointing the sqlite store at a temp dir and
// returns the global flags that select it.
func testConfig(t *testing.T) []string {
	t.Helper()
	clearCredentials(t)
	useSecretStore(t, newMockSecretStore())

	dir := t.TempDir()
	path := filepath.Join(dir, "lectern.yaml")
	content := "storage:\n  dir: " + filepath.Join(dir, "vectordb") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return []string{"--config", path, "--env-file="}
}

const testCSV = `text,embedding,chapter
The dragon slept beneath the mountain for a hundred years.,"[0.0, 1.0, 0.0]",1
A knight rode north at dawn.,"[1.0, 0.0, 0.0]",2
The river froze solid that winter.,"[0.0, 0.0, 1.0]",3
`

func writeCSV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.csv")
	require.NoError(t, os.WriteFile(path, []byte(testCSV), 0o600))
	return path
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}
