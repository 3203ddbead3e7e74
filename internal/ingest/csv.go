// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package ingest turns the output of an embedding stage into store records.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/sigil-dev/lectern/internal/store"
	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

const (
	columnText      = "text"
	columnEmbedding = "embedding"
)

// LoadFile reads a CSV of embeddings. The file stem becomes each record's
// source, so IDs stay stable across runs over the same file.
func LoadFile(path string) ([]store.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lecternerr.Wrapf(err, lecternerr.CodeIngestSourceReadFailure, "opening %s", path)
	}
	defer func() { _ = f.Close() }()

	return ReadCSV(f, SourceName(path))
}

// SourceName returns the file name without directory or extension.
func SourceName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadCSV parses rows with a "text" column and an "embedding" column holding a
// JSON array of numbers. Python-style single-quoted arrays are accepted. Any
// other column is carried into metadata as a string.
func ReadCSV(r io.Reader, source string) ([]store.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil, lecternerr.New(lecternerr.CodeIngestSourceInvalidFormat, "embedding file is empty")
		}
		return nil, lecternerr.Wrap(err, lecternerr.CodeIngestSourceReadFailure, "reading csv header")
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	textIdx, ok := cols[columnText]
	if !ok {
		return nil, lecternerr.Errorf(lecternerr.CodeIngestSourceInvalidFormat, "missing %q column", columnText)
	}
	embIdx, ok := cols[columnEmbedding]
	if !ok {
		return nil, lecternerr.Errorf(lecternerr.CodeIngestSourceInvalidFormat, "missing %q column", columnEmbedding)
	}

	var records []store.Record
	for index := 0; ; index++ {
		row, err := cr.Read()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, lecternerr.Wrapf(err, lecternerr.CodeIngestSourceInvalidFormat, "reading row %d", index)
		}
		line, _ := cr.FieldPos(0)
		if textIdx >= len(row) || embIdx >= len(row) {
			return nil, lecternerr.Errorf(lecternerr.CodeIngestSourceInvalidFormat,
				"line %d: expected at least %d columns, got %d", line, max(textIdx, embIdx)+1, len(row))
		}

		text := row[textIdx]
		if strings.TrimSpace(text) == "" {
			slog.Warn("skipping row with empty text", "source", source, "line", line)
			continue
		}

		vec, err := ParseVector(row[embIdx])
		if err != nil {
			return nil, lecternerr.Wrapf(err, lecternerr.CodeIngestSourceInvalidFormat, "line %d", line)
		}

		md := map[string]any{
			"index":  int64(index),
			"source": source,
			"length": int64(utf8.RuneCountInString(text)),
		}
		for name, i := range cols {
			if i == textIdx || i == embIdx || i >= len(row) || name == "" {
				continue
			}
			if _, reserved := md[name]; reserved {
				continue
			}
			md[name] = row[i]
		}

		records = append(records, store.Record{
			ID:       store.RecordID(source, index),
			Text:     text,
			Vector:   vec,
			Metadata: md,
		})
	}

	return records, nil
}

// ParseVector decodes a serialized embedding such as "[0.1, -0.2]". Numbers
// wrapped in single or double quotes are accepted.
func ParseVector(raw string) ([]float32, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "'", "\""))
	if raw == "" {
		return nil, fmt.Errorf("empty embedding")
	}

	var vals []json.Number
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&vals); err != nil {
		return nil, fmt.Errorf("embedding is not a JSON array of numbers: %w", err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}

	out := make([]float32, len(vals))
	for i, n := range vals {
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	return out, nil
}
