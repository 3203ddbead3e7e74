// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"

	"github.com/sigil-dev/lectern/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newVectorStore)
}

func newVectorStore(_ context.Context, cfg *store.StorageConfig) (store.VectorStore, error) {
	return NewVectorStore(cfg.Dir), nil
}
