// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"context"
	"time"
)

// DefaultBatchSize is the number of records written per ingest transaction
// when IngestOptions.BatchSize is not set.
const DefaultBatchSize = 100

// VectorStore manages named, persistent collections of embedded text chunks.
//
// A single process must be the only writer to a collection while Ingest runs.
// Query, ListCollections and Stats never mutate the store and are safe to
// call concurrently against a stable collection.
type VectorStore interface {
	// Ingest writes records in batches of opts.BatchSize. Each batch commits
	// atomically; a failed batch is reported with its index and leaves the
	// batches committed before it intact.
	Ingest(ctx context.Context, collection string, records []Record, opts IngestOptions) (*IngestReport, error)

	// Query returns at most k results ordered by ascending distance.
	Query(ctx context.Context, collection string, vector []float32, k int) ([]Result, error)

	ListCollections(ctx context.Context) ([]string, error)
	Stats(ctx context.Context, collection string) (*CollectionStats, error)
	Close() error
}

// Record is one indexed chunk of text with its embedding.
type Record struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]any
}

// Result is a single ranked match returned by Query.
type Result struct {
	ID       string         `json:"id" yaml:"id"`
	Text     string         `json:"text" yaml:"text"`
	Distance float64        `json:"distance" yaml:"distance"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// IngestOptions apply when a collection is created. Metric, Model and
// Description are ignored for a collection that already exists.
type IngestOptions struct {
	BatchSize   int
	Metric      Metric
	Model       string
	Description string
}

// IngestReport summarises a completed Ingest call.
type IngestReport struct {
	Collection string `json:"collection" yaml:"collection"`
	Batches    int    `json:"batches" yaml:"batches"`
	Records    int    `json:"records" yaml:"records"`
	Count      int64  `json:"count" yaml:"count"`
	Created    bool   `json:"created" yaml:"created"`
}

// CollectionStats describes a persisted collection.
type CollectionStats struct {
	Name        string    `json:"name" yaml:"name"`
	Count       int64     `json:"count" yaml:"count"`
	Metric      Metric    `json:"metric" yaml:"metric"`
	Dimensions  int       `json:"dimensions" yaml:"dimensions"`
	Model       string    `json:"model,omitempty" yaml:"model,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
}

// BatchSizeOrDefault returns the effective batch size for opts.
func (o IngestOptions) BatchSizeOrDefault() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}

// MetricOrDefault returns the effective metric for opts.
func (o IngestOptions) MetricOrDefault() Metric {
	if o.Metric == "" {
		return MetricCosine
	}
	return o.Metric
}

// Batches splits records into consecutive slices of at most size records.
// The returned slices share the backing array of records.
func Batches(records []Record, size int) [][]Record {
	if size <= 0 {
		size = DefaultBatchSize
	}
	out := make([][]Record, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}
