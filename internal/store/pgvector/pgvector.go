// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package pgvector implements store.VectorStore on PostgreSQL with the
// pgvector extension. All collections share two tables keyed by collection
// name.
package pgvector

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

func init() {
	store.RegisterBackend("pgvector", func(ctx context.Context, cfg *store.StorageConfig) (store.VectorStore, error) {
		return New(ctx, cfg.PGVector.DSN)
	})
}

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore is backed by a pgx connection pool.
type VectorStore struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the vector extension and creates the schema.
func New(ctx context.Context, dsn string) (*VectorStore, error) {
	if dsn == "" {
		return nil, lecternerr.New(lecternerr.CodeStoreCollectionInvalid, "pgvector backend requires storage.pgvector.dsn")
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreCollectionInvalid, "parsing pgvector dsn")
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "creating pgx pool")
	}

	var extExists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&extExists)
	if err != nil {
		pool.Close()
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "checking pgvector extension")
	}
	if !extExists {
		pool.Close()
		return nil, lecternerr.New(lecternerr.CodeStoreBackendUnsupported, "pgvector extension not installed; run: CREATE EXTENSION vector")
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "migrating pgvector schema")
	}

	return &VectorStore{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	const collectionsDDL = `
CREATE TABLE IF NOT EXISTS lectern_collections (
	name        TEXT PRIMARY KEY,
	metric      TEXT NOT NULL,
	dimensions  INTEGER NOT NULL DEFAULT 0,
	model       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	if _, err := pool.Exec(ctx, collectionsDDL); err != nil {
		return fmt.Errorf("creating lectern_collections: %w", err)
	}

	const recordsDDL = `
CREATE TABLE IF NOT EXISTS lectern_records (
	collection TEXT NOT NULL REFERENCES lectern_collections(name),
	id         TEXT NOT NULL,
	text       TEXT NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}',
	embedding  vector NOT NULL,
	PRIMARY KEY (collection, id)
)`
	if _, err := pool.Exec(ctx, recordsDDL); err != nil {
		return fmt.Errorf("creating lectern_records: %w", err)
	}
	return nil
}

// DistanceExpr returns the SQL expression computing the store distance
// between the embedding column and parameter $2.
func DistanceExpr(m store.Metric) string {
	switch m {
	case store.MetricL2:
		return "embedding <-> $2"
	case store.MetricIP:
		// <#> is the negated inner product.
		return "1 + (embedding <#> $2)"
	default:
		return "embedding <=> $2"
	}
}

func (v *VectorStore) stats(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, name string) (*store.CollectionStats, error) {
	const sql = `
SELECT c.metric, c.dimensions, c.model, c.description, c.created_at,
       (SELECT COUNT(*) FROM lectern_records r WHERE r.collection = c.name)
FROM lectern_collections c WHERE c.name = $1`

	st := &store.CollectionStats{Name: name}
	var metric string
	err := q.QueryRow(ctx, sql, name).Scan(&metric, &st.Dimensions, &st.Model, &st.Description, &st.CreatedAt, &st.Count)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, store.CollectionNotFound(name)
	}
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "reading collection", lecternerr.FieldCollection(name))
	}
	st.Metric = store.Metric(metric)
	return st, nil
}

// Ingest writes each batch in its own transaction.
func (v *VectorStore) Ingest(ctx context.Context, collection string, records []store.Record, opts store.IngestOptions) (*store.IngestReport, error) {
	if err := store.ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	const insertCollection = `
INSERT INTO lectern_collections(name, metric, model, description)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO NOTHING`
	tag, err := v.pool.Exec(ctx, insertCollection, collection, string(opts.MetricOrDefault()), opts.Model, opts.Description)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "registering collection", lecternerr.FieldCollection(collection))
	}
	report := &store.IngestReport{Collection: collection, Created: tag.RowsAffected() == 1}

	st, err := v.stats(ctx, v.pool, collection)
	if err != nil {
		return nil, err
	}
	dims := st.Dimensions

	for i, batch := range store.Batches(records, opts.BatchSizeOrDefault()) {
		batchDims, err := store.CheckDimensions(collection, batch, dims)
		if err != nil {
			return report, lecternerr.With(err, lecternerr.FieldBatch(i))
		}

		if err := v.writeBatch(ctx, collection, batch, dims == 0, batchDims); err != nil {
			return report, lecternerr.Wrapf(err, lecternerr.CodeStoreIngestBatchFailure,
				"writing batch %d of collection %s", i, collection)
		}
		dims = batchDims

		report.Batches++
		report.Records += len(batch)
		slog.Debug("ingested batch", "collection", collection, "batch", i, "records", len(batch))
	}

	st, err = v.stats(ctx, v.pool, collection)
	if err != nil {
		return report, err
	}
	report.Count = st.Count
	return report, nil
}

func (v *VectorStore) writeBatch(ctx context.Context, collection string, batch []store.Record, first bool, dims int) error {
	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	if first {
		b.Queue(`UPDATE lectern_collections SET dimensions = $2 WHERE name = $1 AND dimensions = 0`, collection, dims)
	}

	const upsert = `
INSERT INTO lectern_records(collection, id, text, metadata, embedding)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (collection, id) DO UPDATE SET
	text = EXCLUDED.text,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding`
	for _, r := range batch {
		md, err := store.NormalizeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		if md == nil {
			md = map[string]any{}
		}
		b.Queue(upsert, collection, r.ID, r.Text, md, pgv.NewVector(r.Vector))
	}

	results := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("executing statement %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch results: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// Query orders by the distance operator matching the collection metric.
func (v *VectorStore) Query(ctx context.Context, collection string, vector []float32, k int) ([]store.Result, error) {
	if k <= 0 {
		return nil, lecternerr.Errorf(lecternerr.CodeStoreQueryInvalid, "k must be positive, got %d", k)
	}
	if err := store.ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	st, err := v.stats(ctx, v.pool, collection)
	if err != nil {
		return nil, err
	}
	if st.Dimensions == 0 {
		return []store.Result{}, nil
	}
	if err := store.CheckQueryDimensions(collection, vector, st.Dimensions); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
SELECT id, text, metadata, %s AS distance
FROM lectern_records
WHERE collection = $1
ORDER BY distance
LIMIT $3`, DistanceExpr(st.Metric))

	rows, err := v.pool.Query(ctx, sql, collection, pgv.NewVector(vector), k)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "searching vectors", lecternerr.FieldCollection(collection))
	}
	defer rows.Close()

	results := make([]store.Result, 0, k)
	for rows.Next() {
		var r store.Result
		var md map[string]any
		if err := rows.Scan(&r.ID, &r.Text, &md, &r.Distance); err != nil {
			return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "scanning vector result")
		}
		if len(md) > 0 {
			r.Metadata = md
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "iterating vector results")
	}
	return results, nil
}

// ListCollections returns registered collection names in order.
func (v *VectorStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := v.pool.Query(ctx, `SELECT name FROM lectern_collections ORDER BY name`)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "listing collections")
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "scanning collection names")
	}
	return names, nil
}

func (v *VectorStore) Stats(ctx context.Context, collection string) (*store.CollectionStats, error) {
	if err := store.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	return v.stats(ctx, v.pool, collection)
}

// Close closes the pool.
func (v *VectorStore) Close() error {
	v.pool.Close()
	return nil
}
