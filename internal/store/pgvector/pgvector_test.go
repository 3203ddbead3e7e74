// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package pgvector_test

import (
	"context"
	"testing"

	"github.com/sigil-dev/lectern/internal/store"
	"github.com/sigil-dev/lectern/internal/store/pgvector"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestDistanceExpr(t *testing.T) {
	assert.Equal(t, "embedding <=> $2", pgvector.DistanceExpr(store.MetricCosine))
	assert.Equal(t, "embedding <-> $2", pgvector.DistanceExpr(store.MetricL2))
	assert.Equal(t, "1 + (embedding <#> $2)", pgvector.DistanceExpr(store.MetricIP))
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := pgvector.New(context.Background(), "")
	assert.True(t, lecternerr.IsInvalidInput(err))
}

func TestOpen_PGVectorBackendRegistered(t *testing.T) {
	assert.Contains(t, store.Backends(), "pgvector")
}
