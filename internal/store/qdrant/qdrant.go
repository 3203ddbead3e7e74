// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package qdrant implements store.VectorStore on a Qdrant server.
//
// Every collection maps to a Qdrant collection of the same name. Creation-time
// settings that Qdrant does not track (embedding model, description, creation
// time) live as points in the reserved registry collection.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	qdrantsdk "github.com/qdrant/go-client/qdrant"

	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

const (
	// registryCollection stores one point per user collection.
	registryCollection = "_lectern_collections"

	payloadRecordID = "record_id"
	payloadText     = "text"
	payloadMetadata = "metadata"
)

// pointNamespace scopes the name-based UUIDs generated for record IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("lectern.record"))

func init() {
	store.RegisterBackend("qdrant", func(_ context.Context, cfg *store.StorageConfig) (store.VectorStore, error) {
		return New(cfg.Qdrant)
	})
}

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore talks to Qdrant over gRPC.
type VectorStore struct {
	client *qdrantsdk.Client
}

// New connects to the Qdrant server described by cfg.
func New(cfg store.QdrantConfig) (*VectorStore, error) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}

	client, err := qdrantsdk.NewClient(&qdrantsdk.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, lecternerr.Wrapf(err, lecternerr.CodeStoreBackendUnreachable, "connecting to qdrant at %s:%d", host, port)
	}

	return &VectorStore{client: client}, nil
}

// registryEntry is the payload of a registry point.
type registryEntry struct {
	Name        string
	Metric      store.Metric
	Model       string
	Description string
	CreatedAt   time.Time
}

func (v *VectorStore) ensureRegistry(ctx context.Context) error {
	exists, err := v.client.CollectionExists(ctx, registryCollection)
	if err != nil {
		return lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "checking qdrant registry")
	}
	if exists {
		return nil
	}

	err = v.client.CreateCollection(ctx, &qdrantsdk.CreateCollection{
		CollectionName: registryCollection,
		VectorsConfig: qdrantsdk.NewVectorsConfig(&qdrantsdk.VectorParams{
			Size:     1,
			Distance: qdrantsdk.Distance_Dot,
		}),
	})
	if err != nil {
		return lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "creating qdrant registry")
	}
	return nil
}

func (v *VectorStore) readRegistry(ctx context.Context, name string) (*registryEntry, error) {
	exists, err := v.client.CollectionExists(ctx, registryCollection)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "checking qdrant registry")
	}
	if !exists {
		return nil, nil
	}

	points, err := v.client.Get(ctx, &qdrantsdk.GetPoints{
		CollectionName: registryCollection,
		Ids:            []*qdrantsdk.PointId{qdrantsdk.NewIDUUID(PointID(name))},
		WithPayload:    qdrantsdk.NewWithPayload(true),
	})
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "reading qdrant registry", lecternerr.FieldCollection(name))
	}
	if len(points) == 0 {
		return nil, nil
	}
	return entryFromPayload(points[0].GetPayload()), nil
}

func (v *VectorStore) writeRegistry(ctx context.Context, e registryEntry) error {
	if err := v.ensureRegistry(ctx); err != nil {
		return err
	}
	_, err := v.client.Upsert(ctx, &qdrantsdk.UpsertPoints{
		CollectionName: registryCollection,
		Wait:           qdrantsdk.PtrOf(true),
		Points: []*qdrantsdk.PointStruct{{
			Id:      qdrantsdk.NewIDUUID(PointID(e.Name)),
			Vectors: qdrantsdk.NewVectors(1),
			Payload: qdrantsdk.NewValueMap(entryPayload(e)),
		}},
	})
	if err != nil {
		return lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "writing qdrant registry", lecternerr.FieldCollection(e.Name))
	}
	return nil
}

// vectorSize returns the dimensionality of an existing collection, or 0 when
// the Qdrant collection has not been created yet.
func (v *VectorStore) vectorSize(ctx context.Context, name string) (int, error) {
	exists, err := v.client.CollectionExists(ctx, name)
	if err != nil {
		return 0, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "checking collection", lecternerr.FieldCollection(name))
	}
	if !exists {
		return 0, nil
	}

	info, err := v.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "reading collection info", lecternerr.FieldCollection(name))
	}
	return int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()), nil
}

// Ingest upserts records one batch per Upsert call. Qdrant applies a single
// upsert request as one operation.
func (v *VectorStore) Ingest(ctx context.Context, collection string, records []store.Record, opts store.IngestOptions) (*store.IngestReport, error) {
	if err := store.ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	entry, err := v.readRegistry(ctx, collection)
	if err != nil {
		return nil, err
	}
	report := &store.IngestReport{Collection: collection, Created: entry == nil}
	if entry == nil {
		entry = &registryEntry{
			Name:        collection,
			Metric:      opts.MetricOrDefault(),
			Model:       opts.Model,
			Description: opts.Description,
			CreatedAt:   time.Now().UTC(),
		}
		if err := v.writeRegistry(ctx, *entry); err != nil {
			return nil, err
		}
	}

	dims, err := v.vectorSize(ctx, collection)
	if err != nil {
		return nil, err
	}

	for i, batch := range store.Batches(records, opts.BatchSizeOrDefault()) {
		batchDims, err := store.CheckDimensions(collection, batch, dims)
		if err != nil {
			return report, lecternerr.With(err, lecternerr.FieldBatch(i))
		}

		if dims == 0 {
			if err := v.createCollection(ctx, collection, entry.Metric, batchDims); err != nil {
				return report, err
			}
			dims = batchDims
		}

		points, err := toPoints(batch)
		if err != nil {
			return report, lecternerr.With(err, lecternerr.FieldBatch(i))
		}

		_, err = v.client.Upsert(ctx, &qdrantsdk.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrantsdk.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			return report, lecternerr.Wrapf(err, lecternerr.CodeStoreIngestBatchFailure,
				"upserting batch %d of collection %s", i, collection)
		}

		report.Batches++
		report.Records += len(batch)
		slog.Debug("ingested batch", "collection", collection, "batch", i, "records", len(batch))
	}

	report.Count, err = v.count(ctx, collection, dims)
	if err != nil {
		return report, err
	}
	return report, nil
}

func (v *VectorStore) createCollection(ctx context.Context, name string, metric store.Metric, dims int) error {
	err := v.client.CreateCollection(ctx, &qdrantsdk.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrantsdk.NewVectorsConfig(&qdrantsdk.VectorParams{
			Size:     uint64(dims),
			Distance: qdrantDistance(metric),
		}),
	})
	if err != nil {
		return lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "creating collection", lecternerr.FieldCollection(name))
	}
	return nil
}

func toPoints(batch []store.Record) ([]*qdrantsdk.PointStruct, error) {
	points := make([]*qdrantsdk.PointStruct, 0, len(batch))
	for _, r := range batch {
		md, err := store.NormalizeMetadata(r.Metadata)
		if err != nil {
			return nil, err
		}
		points = append(points, &qdrantsdk.PointStruct{
			Id:      qdrantsdk.NewIDUUID(PointID(r.ID)),
			Vectors: qdrantsdk.NewVectors(r.Vector...),
			Payload: qdrantsdk.NewValueMap(recordPayload(r, md)),
		})
	}
	return points, nil
}

func (v *VectorStore) count(ctx context.Context, name string, dims int) (int64, error) {
	if dims == 0 {
		return 0, nil
	}
	n, err := v.client.Count(ctx, &qdrantsdk.CountPoints{
		CollectionName: name,
		Exact:          qdrantsdk.PtrOf(true),
	})
	if err != nil {
		return 0, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "counting points", lecternerr.FieldCollection(name))
	}
	return int64(n), nil
}

// Query runs a nearest-neighbor search and converts scores to distances.
func (v *VectorStore) Query(ctx context.Context, collection string, vector []float32, k int) ([]store.Result, error) {
	if k <= 0 {
		return nil, lecternerr.Errorf(lecternerr.CodeStoreQueryInvalid, "k must be positive, got %d", k)
	}
	if err := store.ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	entry, err := v.readRegistry(ctx, collection)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, store.CollectionNotFound(collection)
	}

	dims, err := v.vectorSize(ctx, collection)
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		return []store.Result{}, nil
	}
	if err := store.CheckQueryDimensions(collection, vector, dims); err != nil {
		return nil, err
	}

	points, err := v.client.Query(ctx, &qdrantsdk.QueryPoints{
		CollectionName: collection,
		Query:          qdrantsdk.NewQuery(vector...),
		Limit:          qdrantsdk.PtrOf(uint64(k)),
		WithPayload:    qdrantsdk.NewWithPayload(true),
	})
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "querying collection", lecternerr.FieldCollection(collection))
	}

	results := make([]store.Result, 0, len(points))
	for _, p := range points {
		r := resultFromPayload(p.GetPayload())
		r.Distance = ScoreToDistance(entry.Metric, p.GetScore())
		results = append(results, r)
	}
	return results, nil
}

// ListCollections returns every registered collection name.
func (v *VectorStore) ListCollections(ctx context.Context) ([]string, error) {
	all, err := v.client.ListCollections(ctx)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "listing collections")
	}
	names := FilterCollections(all)

	// Registered but still empty collections have no Qdrant collection yet.
	registered, err := v.registeredNames(ctx)
	if err != nil {
		return nil, err
	}
	return mergeNames(names, registered), nil
}

func (v *VectorStore) registeredNames(ctx context.Context) ([]string, error) {
	exists, err := v.client.CollectionExists(ctx, registryCollection)
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "checking qdrant registry")
	}
	if !exists {
		return nil, nil
	}

	points, err := v.client.Scroll(ctx, &qdrantsdk.ScrollPoints{
		CollectionName: registryCollection,
		WithPayload:    qdrantsdk.NewWithPayload(true),
		Limit:          qdrantsdk.PtrOf(uint32(10000)),
	})
	if err != nil {
		return nil, lecternerr.Wrap(err, lecternerr.CodeStoreBackendUnreachable, "scrolling qdrant registry")
	}
	names := make([]string, 0, len(points))
	for _, p := range points {
		if e := entryFromPayload(p.GetPayload()); e.Name != "" {
			names = append(names, e.Name)
		}
	}
	return names, nil
}

// Stats reports the point count plus registry metadata.
func (v *VectorStore) Stats(ctx context.Context, collection string) (*store.CollectionStats, error) {
	if err := store.ValidateCollectionName(collection); err != nil {
		return nil, err
	}

	entry, err := v.readRegistry(ctx, collection)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, store.CollectionNotFound(collection)
	}

	dims, err := v.vectorSize(ctx, collection)
	if err != nil {
		return nil, err
	}
	count, err := v.count(ctx, collection, dims)
	if err != nil {
		return nil, err
	}

	return &store.CollectionStats{
		Name:        collection,
		Count:       count,
		Metric:      entry.Metric,
		Dimensions:  dims,
		Model:       entry.Model,
		Description: entry.Description,
		CreatedAt:   entry.CreatedAt,
	}, nil
}

// Close releases the gRPC connection.
func (v *VectorStore) Close() error {
	if err := v.client.Close(); err != nil {
		return fmt.Errorf("closing qdrant client: %w", err)
	}
	return nil
}
