// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// DefaultDir is used when no storage directory is configured.
const DefaultDir = "./vectordb"

// dbFile is the database file inside each collection directory.
const dbFile = "collection.db"

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore implements store.VectorStore with one SQLite database per
// collection, each holding a sqlite-vec vec0 table for the embeddings.
//
// Layout: <dir>/<collection>/collection.db
type VectorStore struct {
	dir string

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewVectorStore returns a store rooted at dir. Nothing is created on disk
// until the first Ingest.
func NewVectorStore(dir string) *VectorStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &VectorStore{dir: dir, dbs: make(map[string]*sql.DB)}
}

// collectionMeta mirrors the collection_meta key/value table.
type collectionMeta struct {
	Metric      store.Metric
	Dimensions  int
	Model       string
	Description string
	CreatedAt   time.Time
}

func (v *VectorStore) dbPath(name string) string {
	return filepath.Join(v.dir, name, dbFile)
}

// open returns the cached handle for a collection. With create unset a
// missing database yields a not-found error and nothing is written.
func (v *VectorStore) open(ctx context.Context, name string, create bool) (*sql.DB, error) {
	if err := store.ValidateCollectionName(name); err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if db, ok := v.dbs[name]; ok {
		return db, nil
	}

	path := v.dbPath(name)
	if _, err := os.Stat(path); err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			return nil, lecternerr.Wrapf(err, lecternerr.CodeStoreDatabaseFailure, "checking collection %s", name)
		}
		if !create {
			return nil, store.CollectionNotFound(name)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, lecternerr.Wrapf(err, lecternerr.CodeStoreDatabaseFailure, "creating collection directory %s", name)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, lecternerr.Wrapf(err, lecternerr.CodeStoreDatabaseFailure, "opening sqlite db for %s", name)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, lecternerr.Wrapf(err, lecternerr.CodeStoreDatabaseFailure, "pinging sqlite db for %s", name)
	}

	if create {
		if err := migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, lecternerr.Wrapf(err, lecternerr.CodeStoreDatabaseFailure, "migrating collection %s", name)
		}
	}

	v.dbs[name] = db
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	const metaDDL = `
CREATE TABLE IF NOT EXISTS collection_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`
	if _, err := db.ExecContext(ctx, metaDDL); err != nil {
		return fmt.Errorf("creating collection_meta table: %w", err)
	}

	const recordsDDL = `
CREATE TABLE IF NOT EXISTS records (
	id       TEXT PRIMARY KEY,
	text     TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
)`
	if _, err := db.ExecContext(ctx, recordsDDL); err != nil {
		return fmt.Errorf("creating records table: %w", err)
	}

	return nil
}

// vecDDL builds the vec0 table for a dimensionality. Inner product has no
// vec0 metric, so those collections are ranked by a full scan in Go.
func vecDDL(metric store.Metric, dims int) string {
	vecMetric := "cosine"
	if metric != store.MetricCosine {
		vecMetric = "l2"
	}
	return fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vectors USING vec0(id TEXT PRIMARY KEY, embedding float[%d] distance_metric=%s)`,
		dims, vecMetric,
	)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func readMeta(ctx context.Context, q querier) (collectionMeta, error) {
	var meta collectionMeta

	rows, err := q.QueryContext(ctx, `SELECT key, value FROM collection_meta`)
	if err != nil {
		return meta, fmt.Errorf("reading collection metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return meta, fmt.Errorf("scanning collection metadata: %w", err)
		}
		switch key {
		case "metric":
			meta.Metric = store.Metric(value)
		case "dimensions":
			meta.Dimensions, _ = strconv.Atoi(value)
		case "model":
			meta.Model = value
		case "description":
			meta.Description = value
		case "created_at":
			meta.CreatedAt, _ = time.Parse(time.RFC3339, value)
		}
	}
	if err := rows.Err(); err != nil {
		return meta, fmt.Errorf("iterating collection metadata: %w", err)
	}

	return meta, nil
}

// initMeta records creation-time settings. Existing keys are left untouched.
func initMeta(ctx context.Context, db *sql.DB, opts store.IngestOptions) error {
	const q = `INSERT OR IGNORE INTO collection_meta(key, value) VALUES (?, ?)`
	pairs := [][2]string{
		{"metric", string(opts.MetricOrDefault())},
		{"model", opts.Model},
		{"description", opts.Description},
		{"created_at", time.Now().UTC().Format(time.RFC3339)},
	}
	for _, p := range pairs {
		if _, err := db.ExecContext(ctx, q, p[0], p[1]); err != nil {
			return fmt.Errorf("writing collection metadata %s: %w", p[0], err)
		}
	}
	return nil
}

// Ingest writes records in batches, one transaction per batch.
func (v *VectorStore) Ingest(ctx context.Context, collection string, records []store.Record, opts store.IngestOptions) (*store.IngestReport, error) {
	if err := store.ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	_, statErr := os.Stat(v.dbPath(collection))
	report := &store.IngestReport{
		Collection: collection,
		Created:    stderrors.Is(statErr, fs.ErrNotExist),
	}

	db, err := v.open(ctx, collection, true)
	if err != nil {
		return nil, err
	}

	if err := initMeta(ctx, db, opts); err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "initialising collection", lecternerr.FieldCollection(collection))
	}

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "loading collection", lecternerr.FieldCollection(collection))
	}

	for i, batch := range store.Batches(records, opts.BatchSizeOrDefault()) {
		dims, err := store.CheckDimensions(collection, batch, meta.Dimensions)
		if err != nil {
			return report, lecternerr.With(err, lecternerr.FieldBatch(i))
		}

		if err := writeBatch(ctx, db, batch, meta, dims); err != nil {
			return report, lecternerr.Wrapf(err, lecternerr.CodeStoreIngestBatchFailure,
				"writing batch %d of collection %s", i, collection)
		}
		meta.Dimensions = dims

		report.Batches++
		report.Records += len(batch)
		slog.Debug("ingested batch", "collection", collection, "batch", i, "records", len(batch))
	}

	report.Count, err = countRecords(ctx, db)
	if err != nil {
		return report, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "counting records", lecternerr.FieldCollection(collection))
	}

	return report, nil
}

// writeBatch upserts one batch atomically. The vec0 table is created inside
// the first batch's transaction once the dimensionality is known.
func writeBatch(ctx context.Context, db *sql.DB, batch []store.Record, meta collectionMeta, dims int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if meta.Dimensions == 0 {
		if _, err := tx.ExecContext(ctx, vecDDL(meta.Metric, dims)); err != nil {
			return fmt.Errorf("creating vectors virtual table: %w", err)
		}
		const q = `INSERT OR REPLACE INTO collection_meta(key, value) VALUES ('dimensions', ?)`
		if _, err := tx.ExecContext(ctx, q, strconv.Itoa(dims)); err != nil {
			return fmt.Errorf("recording dimensions: %w", err)
		}
	}

	// vec0 does not support ON CONFLICT; delete first for upsert.
	delVec, err := tx.PrepareContext(ctx, `DELETE FROM vectors WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("preparing vector delete: %w", err)
	}
	defer func() { _ = delVec.Close() }()

	insVec, err := tx.PrepareContext(ctx, `INSERT INTO vectors(id, embedding) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing vector insert: %w", err)
	}
	defer func() { _ = insVec.Close() }()

	const recQ = `INSERT INTO records(id, text, metadata) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET text = excluded.text, metadata = excluded.metadata`
	insRec, err := tx.PrepareContext(ctx, recQ)
	if err != nil {
		return fmt.Errorf("preparing record upsert: %w", err)
	}
	defer func() { _ = insRec.Close() }()

	for _, r := range batch {
		md, err := store.NormalizeMetadata(r.Metadata)
		if err != nil {
			return err
		}
		metaJSON := []byte("{}")
		if len(md) > 0 {
			metaJSON, err = json.Marshal(md)
			if err != nil {
				return fmt.Errorf("marshalling metadata for %s: %w", r.ID, err)
			}
		}

		blob, err := sqlite_vec.SerializeFloat32(r.Vector)
		if err != nil {
			return fmt.Errorf("serializing embedding %s: %w", r.ID, err)
		}

		if _, err := delVec.ExecContext(ctx, r.ID); err != nil {
			return fmt.Errorf("deleting existing vector %s: %w", r.ID, err)
		}
		if _, err := insVec.ExecContext(ctx, r.ID, blob); err != nil {
			return fmt.Errorf("inserting vector %s: %w", r.ID, err)
		}
		if _, err := insRec.ExecContext(ctx, r.ID, r.Text, string(metaJSON)); err != nil {
			return fmt.Errorf("upserting record %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// Query performs a k-nearest-neighbor search. Distance is lower for closer
// matches; 0.0 is an exact match under cosine and l2.
func (v *VectorStore) Query(ctx context.Context, collection string, vector []float32, k int) ([]store.Result, error) {
	if k <= 0 {
		return nil, lecternerr.Errorf(lecternerr.CodeStoreQueryInvalid, "k must be positive, got %d", k)
	}

	db, err := v.open(ctx, collection, false)
	if err != nil {
		return nil, err
	}

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "loading collection", lecternerr.FieldCollection(collection))
	}

	// No batch has been committed yet.
	if meta.Dimensions == 0 {
		return []store.Result{}, nil
	}

	if err := store.CheckQueryDimensions(collection, vector, meta.Dimensions); err != nil {
		return nil, err
	}

	if meta.Metric == store.MetricIP {
		return scanQuery(ctx, db, collection, vector, k)
	}

	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreQueryInvalid, "serializing query vector")
	}

	const q = `SELECT v.id, v.distance, COALESCE(r.text, ''), COALESCE(r.metadata, '{}')
FROM vectors v
LEFT JOIN records r ON r.id = v.id
WHERE v.embedding MATCH ? AND k = ?
ORDER BY v.distance`

	rows, err := db.QueryContext(ctx, q, blob, k)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "searching vectors", lecternerr.FieldCollection(collection))
	}
	defer func() { _ = rows.Close() }()

	results := make([]store.Result, 0, k)
	for rows.Next() {
		var r store.Result
		var metaStr string

		if err := rows.Scan(&r.ID, &r.Distance, &r.Text, &metaStr); err != nil {
			return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "scanning vector result")
		}
		if r.Metadata, err = decodeMetadata(metaStr); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "iterating vector results")
	}

	return results, nil
}

// scanQuery ranks every stored vector by inner-product distance.
func scanQuery(ctx context.Context, db *sql.DB, collection string, vector []float32, k int) ([]store.Result, error) {
	const q = `SELECT v.id, v.embedding, COALESCE(r.text, ''), COALESCE(r.metadata, '{}')
FROM vectors v
LEFT JOIN records r ON r.id = v.id`

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "scanning vectors", lecternerr.FieldCollection(collection))
	}
	defer func() { _ = rows.Close() }()

	var results []store.Result
	for rows.Next() {
		var r store.Result
		var blob []byte
		var metaStr string

		if err := rows.Scan(&r.ID, &blob, &r.Text, &metaStr); err != nil {
			return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "scanning vector row")
		}
		r.Distance = store.Distance(store.MetricIP, vector, decodeFloat32(blob))
		if r.Metadata, err = decodeMetadata(metaStr); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "iterating vectors")
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance == results[j].Distance {
			return results[i].ID < results[j].ID
		}
		return results[i].Distance < results[j].Distance
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// decodeFloat32 reverses sqlite_vec.SerializeFloat32 (little-endian float32).
func decodeFloat32(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

func decodeMetadata(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreMetadataInvalid, "unmarshalling record metadata")
	}
	return md, nil
}

func countRecords(ctx context.Context, db *sql.DB) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// ListCollections returns every directory under the root that holds a
// collection database.
func (v *VectorStore) ListCollections(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, lecternerr.Wrapf(err, lecternerr.CodeStoreDatabaseFailure, "listing %s", v.dir)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(v.dbPath(e.Name())); err == nil {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Stats reports the record count and creation-time metadata.
func (v *VectorStore) Stats(ctx context.Context, collection string) (*store.CollectionStats, error) {
	db, err := v.open(ctx, collection, false)
	if err != nil {
		return nil, err
	}

	meta, err := readMeta(ctx, db)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "loading collection", lecternerr.FieldCollection(collection))
	}

	count, err := countRecords(ctx, db)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreDatabaseFailure, "counting records", lecternerr.FieldCollection(collection))
	}

	return &store.CollectionStats{
		Name:        collection,
		Count:       count,
		Metric:      meta.Metric,
		Dimensions:  meta.Dimensions,
		Model:       meta.Model,
		Description: meta.Description,
		CreatedAt:   meta.CreatedAt,
	}, nil
}

// Close closes every open collection database.
func (v *VectorStore) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	var errs []error
	for name, db := range v.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
		delete(v.dbs, name)
	}
	return stderrors.Join(errs...)
}
