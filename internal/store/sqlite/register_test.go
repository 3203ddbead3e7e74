// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"context"
	"testing"

	"github.com/sigil-dev/lectern/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteBackendRegistered(t *testing.T) {
	assert.Contains(t, store.Backends(), "sqlite")

	vs, err := store.Open(context.Background(), &store.StorageConfig{Dir: testDir(t)})
	require.NoError(t, err)
	defer func() { _ = vs.Close() }()

	names, err := vs.ListCollections(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}
