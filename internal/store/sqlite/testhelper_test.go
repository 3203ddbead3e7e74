// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite_test

import (
	"os"
	"testing"

	"github.com/sigil-dev/lectern/internal/store"
	"github.com/sigil-dev/lectern/internal/store/sqlite"
	"github.com/stretchr/testify/require"
)

// testDir creates a temp directory for a test and registers its cleanup.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "lectern-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testStore returns a store rooted in a fresh temp directory.
func testStore(t *testing.T) *sqlite.VectorStore {
	t.Helper()
	vs := sqlite.NewVectorStore(testDir(t))
	t.Cleanup(func() { _ = vs.Close() })
	return vs
}

func rec(id, text string, vec ...float32) store.Record {
	return store.Record{ID: id, Text: text, Vector: vec, Metadata: map[string]any{"source": "test"}}
}
