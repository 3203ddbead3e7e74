// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	stderrors "errors"
	"log/slog"
	"math"

	"github.com/dgraph-io/badger/v4"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Cached memoises another embedder in a Badger database keyed by model and
// text hash. Cache failures are logged and fall through to the wrapped
// embedder.
type Cached struct {
	next Embedder
	db   *badger.DB
}

// Compile-time interface check.
var _ Embedder = (*Cached)(nil)

// NewCached opens (or creates) the cache at dir.
func NewCached(next Embedder, dir string) (*Cached, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, lecternerr.Wrapf(err, lecternerr.CodeEmbedCacheFailure, "opening embedding cache at %s", dir)
	}
	return &Cached{next: next, db: db}, nil
}

func (c *Cached) Model() string { return c.next.Model() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.next.Model(), text)

	var hit []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			hit = decodeVector(val)
			return nil
		})
	})
	switch {
	case err == nil && len(hit) > 0:
		return hit, nil
	case err != nil && !stderrors.Is(err, badger.ErrKeyNotFound):
		slog.Warn("embedding cache read failed", "error", err)
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, encodeVector(vec))
	}); err != nil {
		slog.Warn("embedding cache write failed", "error", err)
	}
	return vec, nil
}

// Close closes the underlying database.
func (c *Cached) Close() error {
	return c.db.Close()
}

// CacheKey is "<model>:<sha256(text)>".
func CacheKey(model, text string) []byte {
	sum := sha256.Sum256([]byte(text))
	return []byte(model + ":" + hex.EncodeToString(sum[:]))
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
