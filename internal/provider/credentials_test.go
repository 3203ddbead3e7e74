// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/sigil-dev/lectern/internal/provider"
	"github.com/sigil-dev/lectern/internal/secrets"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

func fakeEnv(vals map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vals[k]
		return v, ok
	}
}

func TestEnvCredentials_DefaultVariables(t *testing.T) {
	env := map[string]string{"GEMINI_API_KEY": "gm", "OPENAI_API_KEY": "  "}
	c := provider.NewEnvCredentialsWithLookup(nil, nil, fakeEnv(env))

	got, ok := c.Credential(provider.Google)
	assert.True(t, ok)
	assert.Equal(t, "gm", got)

	_, ok = c.Credential(provider.OpenAI)
	assert.False(t, ok, "blank values count as absent")

	_, ok = c.Credential(provider.Anthropic)
	assert.False(t, ok)
}

func TestEnvCredentials_FirstVariableWins(t *testing.T) {
	env := map[string]string{"GOOGLE_API_KEY": "first", "GEMINI_API_KEY": "second"}
	c := provider.NewEnvCredentialsWithLookup(nil, nil, fakeEnv(env))

	got, _ := c.Credential(provider.Google)
	assert.Equal(t, "first", got)
}

func TestEnvCredentials_Override(t *testing.T) {
	env := map[string]string{"MY_OR_KEY": "or-key", "OPENROUTER_API_KEY": "ignored"}
	c := provider.NewEnvCredentialsWithLookup(map[string][]string{provider.OpenRouter: {"MY_OR_KEY"}}, nil, fakeEnv(env))

	got, ok := c.Credential(provider.OpenRouter)
	require.True(t, ok)
	assert.Equal(t, "or-key", got)
}

func TestEnvCredentials_KeyringReference(t *testing.T) {
	keyring.MockInit()
	ks := secrets.Keyring{}
	require.NoError(t, ks.Set(secrets.DefaultService, "anthropic", "sk-from-keyring"))

	env := map[string]string{
		"ANTHROPIC_API_KEY": secrets.Reference("anthropic"),
		"OPENAI_API_KEY":    secrets.Reference("missing"),
	}
	c := provider.NewEnvCredentialsWithLookup(nil, ks, fakeEnv(env))

	got, ok := c.Credential(provider.Anthropic)
	require.True(t, ok)
	assert.Equal(t, "sk-from-keyring", got)

	_, ok = c.Credential(provider.OpenAI)
	assert.False(t, ok, "unresolvable references count as absent")
}

func TestTakeSnapshot(t *testing.T) {
	snap := provider.TakeSnapshot(provider.StaticCredentials{provider.Ollama: "http://h", provider.OpenAI: ""}, provider.DefaultOrder)

	assert.Len(t, snap, len(provider.DefaultOrder))
	assert.True(t, snap[provider.Ollama])
	assert.False(t, snap[provider.OpenAI])
	assert.False(t, snap[provider.Google])
}

func TestClassify(t *testing.T) {
	base := errors.New("upstream said no")

	tests := []struct {
		status int
		want   lecternerr.Code
		check  func(error) bool
	}{
		{status: http.StatusTooManyRequests, want: lecternerr.CodeProviderQuotaExceeded, check: lecternerr.IsQuotaExceeded},
		{status: http.StatusUnauthorized, want: lecternerr.CodeProviderUnauthorized, check: lecternerr.IsUnauthorized},
		{status: http.StatusForbidden, want: lecternerr.CodeProviderUnauthorized, check: lecternerr.IsUnauthorized},
		{status: http.StatusInternalServerError, want: lecternerr.CodeProviderTransient, check: lecternerr.IsTransient},
		{status: http.StatusServiceUnavailable, want: lecternerr.CodeProviderTransient, check: lecternerr.IsTransient},
		{status: http.StatusRequestTimeout, want: lecternerr.CodeProviderTransient, check: lecternerr.IsTransient},
		{status: 0, want: lecternerr.CodeProviderTransient, check: lecternerr.IsTransient},
		{status: http.StatusBadRequest, want: lecternerr.CodeProviderRejected, check: lecternerr.IsProviderFailure},
		{status: http.StatusNotFound, want: lecternerr.CodeProviderRejected, check: lecternerr.IsProviderFailure},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := provider.Classify("openai", tt.status, base)
			require.Error(t, err)
			assert.Equal(t, tt.want, lecternerr.CodeOf(err))
			assert.True(t, tt.check(err))
			assert.True(t, lecternerr.IsProviderFailure(err))
			assert.ErrorIs(t, err, base)
			assert.Equal(t, "openai", lecternerr.FieldsOf(err)["provider"])
		})
	}

	assert.NoError(t, provider.Classify("openai", 500, nil))
}
