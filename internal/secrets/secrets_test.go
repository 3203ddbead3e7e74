// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package secrets_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/sigil-dev/lectern/internal/secrets"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

func init() {
	keyring.MockInit()
}

func TestKeyring_SetGetDelete(t *testing.T) {
	ks := secrets.Keyring{}
	svc := "test-roundtrip"

	require.NoError(t, ks.Set(svc, "openai", "sk-1"))
	require.NoError(t, ks.Set(svc, "openai", "sk-2"))

	got, err := ks.Get(svc, "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-2", got)

	names, err := ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"openai"}, names)

	require.NoError(t, ks.Delete(svc, "openai"))
	_, err = ks.Get(svc, "openai")
	assert.True(t, lecternerr.HasCode(err, lecternerr.CodeSecretNotFound))

	names, err = ks.List(svc)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestKeyring_ListSorted(t *testing.T) {
	ks := secrets.Keyring{}
	svc := "test-list"

	for _, k := range []string{"openrouter", "anthropic", "google"} {
		require.NoError(t, ks.Set(svc, k, "v"))
	}

	names, err := ks.List(svc)
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic", "google", "openrouter"}, names)
}

func TestKeyring_Errors(t *testing.T) {
	ks := secrets.Keyring{}

	err := ks.Delete("test-missing", "nothing")
	assert.True(t, lecternerr.IsNotFound(err))

	err = ks.Set("", "key", "v")
	assert.True(t, lecternerr.IsInvalidInput(err))

	err = ks.Set("svc", "__index__", "v")
	assert.True(t, lecternerr.IsInvalidInput(err))
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		ref     string
		service string
		key     string
		wantErr bool
	}{
		{ref: "keyring://lectern/openai", service: "lectern", key: "openai"},
		{ref: "keyring://lectern/a/b", service: "lectern", key: "a/b"},
		{ref: "keyring://lectern/", wantErr: true},
		{ref: "keyring:///openai", wantErr: true},
		{ref: "keyring://lectern", wantErr: true},
		{ref: "sk-plain", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			svc, key, err := secrets.ParseReference(tt.ref)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, lecternerr.CodeSecretReferenceInvalid, lecternerr.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.service, svc)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestResolve(t *testing.T) {
	ks := secrets.Keyring{}
	require.NoError(t, ks.Set(secrets.DefaultService, "anthropic", "sk-ant"))

	got, err := secrets.Resolve(ks, secrets.Reference("anthropic"))
	require.NoError(t, err)
	assert.Equal(t, "sk-ant", got)

	got, err = secrets.Resolve(ks, "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", got)

	_, err = secrets.Resolve(ks, secrets.Reference("absent"))
	require.Error(t, err)
	assert.True(t, lecternerr.IsNotFound(err))
}

func TestResolveViper(t *testing.T) {
	ks := secrets.Keyring{}
	require.NoError(t, ks.Set(secrets.DefaultService, "qdrant", "qd-key"))

	v := viper.New()
	v.Set("storage.qdrant.api_key", "keyring://lectern/qdrant")
	v.Set("storage.dir", "./vectordb")
	require.NoError(t, secrets.ResolveViper(v, ks))

	assert.Equal(t, "qd-key", v.GetString("storage.qdrant.api_key"))
	assert.Equal(t, "./vectordb", v.GetString("storage.dir"))

	v.Set("storage.pgvector.dsn", "keyring://lectern/missing-dsn")
	err := secrets.ResolveViper(v, ks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.pgvector.dsn")
}
