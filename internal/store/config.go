// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend  string // "sqlite" (default), "qdrant" or "pgvector".
	Dir      string // Root directory for the sqlite backend.
	Qdrant   QdrantConfig
	PGVector PGVectorConfig
}

// QdrantConfig addresses a Qdrant server over gRPC.
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// PGVectorConfig addresses a PostgreSQL database with the vector extension.
type PGVectorConfig struct {
	DSN string
}
