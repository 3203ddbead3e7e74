// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store_test

import (
	"testing"
	"time"

	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordID_DeterministicPerSourceAndIndex(t *testing.T) {
	assert.Equal(t, store.RecordID("chapter1", 0), store.RecordID("chapter1", 0))
	assert.NotEqual(t, store.RecordID("chapter1", 0), store.RecordID("chapter1", 1))
	assert.NotEqual(t, store.RecordID("chapter1", 0), store.RecordID("chapter2", 0))
	assert.Len(t, store.RecordID("chapter1", 0), 16)
}

func TestBatches(t *testing.T) {
	records := make([]store.Record, 250)
	batches := store.Batches(records, 100)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 100)
	assert.Len(t, batches[2], 50)

	assert.Empty(t, store.Batches(nil, 10))
	assert.Len(t, store.Batches(records, 0), 3, "non-positive size uses the default")
}

func TestIngestOptionsDefaults(t *testing.T) {
	var opts store.IngestOptions
	assert.Equal(t, store.DefaultBatchSize, opts.BatchSizeOrDefault())
	assert.Equal(t, store.MetricCosine, opts.MetricOrDefault())
}

func TestParseMetric(t *testing.T) {
	tests := map[string]store.Metric{
		"":          store.MetricCosine,
		"cosine":    store.MetricCosine,
		"L2":        store.MetricL2,
		"euclidean": store.MetricL2,
		"ip":        store.MetricIP,
		"dot":       store.MetricIP,
	}
	for in, want := range tests {
		got, err := store.ParseMetric(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := store.ParseMetric("manhattan")
	assert.True(t, lecternerr.IsInvalidInput(err))
}

func TestDistance(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}

	assert.InDelta(t, 0.0, store.Distance(store.MetricCosine, a, []float32{3, 0}), 1e-9)
	assert.InDelta(t, 1.0, store.Distance(store.MetricCosine, a, b), 1e-9)
	assert.InDelta(t, 1.4142135, store.Distance(store.MetricL2, a, b), 1e-6)
	assert.InDelta(t, 1.0, store.Distance(store.MetricIP, a, b), 1e-9)
	assert.InDelta(t, 1.0, store.Distance(store.MetricCosine, a, []float32{0, 0}), 1e-9)
}

func TestCheckDimensions(t *testing.T) {
	batch := []store.Record{
		{ID: "a", Vector: []float32{1, 2}},
		{ID: "b", Vector: []float32{3, 4}},
	}
	dims, err := store.CheckDimensions("c", batch, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, dims)

	_, err = store.CheckDimensions("c", batch, 3)
	assert.True(t, lecternerr.IsDimensionMismatch(err))

	_, err = store.CheckDimensions("c", []store.Record{{ID: "x"}}, 0)
	assert.True(t, lecternerr.IsDimensionMismatch(err))

	assert.NoError(t, store.CheckQueryDimensions("c", []float32{1}, 0))
	assert.True(t, lecternerr.IsDimensionMismatch(store.CheckQueryDimensions("c", []float32{1}, 2)))
}

func TestValidateCollectionName(t *testing.T) {
	for _, ok := range []string{"audiobook_embeddings", "a", "book-1.v2"} {
		assert.NoError(t, store.ValidateCollectionName(ok), ok)
	}
	for _, bad := range []string{"", "../x", "a/b", "-lead", "a..b", string(make([]byte, 70))} {
		assert.Error(t, store.ValidateCollectionName(bad), bad)
	}
}

func TestNormalizeMetadata(t *testing.T) {
	md, err := store.NormalizeMetadata(map[string]any{
		"index":  3,
		"ratio":  float32(0.5),
		"source": "ch1",
		"ok":     true,
		"skip":   nil,
		"when":   time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), md["index"])
	assert.Equal(t, float64(0.5), md["ratio"])
	assert.Equal(t, "1s", md["when"])
	assert.NotContains(t, md, "skip")

	_, err = store.NormalizeMetadata(map[string]any{"bad": []int{1}})
	assert.True(t, lecternerr.IsInvalidInput(err))

	md, err = store.NormalizeMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, md)
}
