// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package qdrant

import (
	"testing"
	"time"

	"github.com/google/uuid"
	qdrantsdk "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/lectern/internal/store"
)

func TestPointID_StableUUID(t *testing.T) {
	id := PointID("abc")
	assert.Equal(t, id, PointID("abc"))
	assert.NotEqual(t, id, PointID("abd"))

	_, err := uuid.Parse(id)
	assert.NoError(t, err)
}

func TestScoreToDistance(t *testing.T) {
	assert.InDelta(t, 0.0, ScoreToDistance(store.MetricCosine, 1), 1e-9)
	assert.InDelta(t, 0.75, ScoreToDistance(store.MetricCosine, 0.25), 1e-6)
	assert.InDelta(t, -1.0, ScoreToDistance(store.MetricIP, 2), 1e-9)
	assert.InDelta(t, 1.5, ScoreToDistance(store.MetricL2, 1.5), 1e-9)
}

func TestQdrantDistance(t *testing.T) {
	assert.Equal(t, qdrantsdk.Distance_Cosine, qdrantDistance(store.MetricCosine))
	assert.Equal(t, qdrantsdk.Distance_Euclid, qdrantDistance(store.MetricL2))
	assert.Equal(t, qdrantsdk.Distance_Dot, qdrantDistance(store.MetricIP))
}

func TestFilterCollections(t *testing.T) {
	got := FilterCollections([]string{"zeta", registryCollection, "alpha"})
	assert.Equal(t, []string{"alpha", "zeta"}, got)
	assert.Equal(t, []string{"a", "b"}, mergeNames([]string{"b"}, []string{"a", "b"}))
}

func TestRecordPayloadRoundTrip(t *testing.T) {
	r := store.Record{ID: "doc-1", Text: "chapter one"}
	md := map[string]any{"source": "book", "index": int64(4), "length": float64(11), "draft": true}

	payload := qdrantsdk.NewValueMap(recordPayload(r, md))
	got := resultFromPayload(payload)

	assert.Equal(t, "doc-1", got.ID)
	assert.Equal(t, "chapter one", got.Text)
	assert.Equal(t, md, got.Metadata)
}

func TestRegistryPayloadRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := registryEntry{Name: "books", Metric: store.MetricL2, Model: "m", Description: "d", CreatedAt: created}

	got := entryFromPayload(qdrantsdk.NewValueMap(entryPayload(e)))
	require.NotNil(t, got)
	assert.Equal(t, e, *got)
}

func TestValueToAnyNil(t *testing.T) {
	assert.Nil(t, valueToAny(nil))
}
