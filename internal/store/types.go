// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	lecternerr "github.com/sigil-dev/lectern/pkg/errors"
)

// Metric is the distance function a collection ranks by.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
	MetricIP     Metric = "ip"
)

// ParseMetric accepts the canonical names plus common aliases.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine", "cos":
		return MetricCosine, nil
	case "l2", "euclidean", "euclid":
		return MetricL2, nil
	case "ip", "dot", "inner_product":
		return MetricIP, nil
	default:
		return "", lecternerr.Errorf(lecternerr.CodeStoreCollectionInvalid, "unknown distance metric %q", s)
	}
}

// Distance computes the dissimilarity between a and b under m. Lower is more
// similar. Cosine is 1-cos(a,b), l2 is the Euclidean distance and ip is 1-a·b.
func Distance(m Metric, a, b []float32) float64 {
	switch m {
	case MetricL2:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	case MetricIP:
		return 1 - dot(a, b)
	default:
		na, nb := math.Sqrt(dot(a, a)), math.Sqrt(dot(b, b))
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot(a, b)/(na*nb)
	}
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// RecordID derives a stable record identifier from the record's source and
// its position within that source, so re-ingesting the same input upserts.
func RecordID(source string, index int) string {
	sum := sha256.Sum256([]byte(source + "#" + strconv.Itoa(index)))
	return hex.EncodeToString(sum[:8])
}

var collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,62}$`)

// ValidateCollectionName rejects names that cannot be used as a directory or
// table name on every backend.
func ValidateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) || strings.Contains(name, "..") {
		return lecternerr.New(lecternerr.CodeStoreCollectionInvalid,
			fmt.Sprintf("invalid collection name %q: use 1-63 letters, digits, '.', '_' or '-'", name),
			lecternerr.FieldCollection(name))
	}
	return nil
}

// CheckDimensions validates every record in batch against want. When want is
// zero the first record's length establishes it. The established
// dimensionality is returned.
func CheckDimensions(collection string, batch []Record, want int) (int, error) {
	for _, r := range batch {
		if want == 0 {
			want = len(r.Vector)
		}
		if len(r.Vector) == 0 {
			return want, lecternerr.New(lecternerr.CodeStoreDimensionMismatch,
				fmt.Sprintf("record %q has an empty vector", r.ID),
				lecternerr.FieldCollection(collection))
		}
		if len(r.Vector) != want {
			return want, lecternerr.New(lecternerr.CodeStoreDimensionMismatch,
				fmt.Sprintf("record %q has %d dimensions, collection expects %d", r.ID, len(r.Vector), want),
				lecternerr.FieldCollection(collection))
		}
	}
	return want, nil
}

// CheckQueryDimensions fails when a query vector cannot be ranked against a
// collection of the given dimensionality.
func CheckQueryDimensions(collection string, vector []float32, want int) error {
	if want != 0 && len(vector) != want {
		return lecternerr.New(lecternerr.CodeStoreQueryDimension,
			fmt.Sprintf("query vector has %d dimensions, collection expects %d", len(vector), want),
			lecternerr.FieldCollection(collection))
	}
	return nil
}

// NormalizeMetadata coerces metadata values to the scalar set every backend
// can persist: string, bool, int64 and float64.
func NormalizeMetadata(md map[string]any) (map[string]any, error) {
	if len(md) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		switch val := v.(type) {
		case nil:
			continue
		case string, bool, int64, float64:
			out[k] = val
		case int:
			out[k] = int64(val)
		case int32:
			out[k] = int64(val)
		case uint32:
			out[k] = int64(val)
		case float32:
			out[k] = float64(val)
		case fmt.Stringer:
			out[k] = val.String()
		default:
			return nil, lecternerr.Errorf(lecternerr.CodeStoreMetadataInvalid,
				"metadata %q has unsupported type %T", k, v)
		}
	}
	return out, nil
}

// CollectionNotFound builds the error returned when a collection is absent.
func CollectionNotFound(name string) error {
	return lecternerr.New(lecternerr.CodeStoreCollectionNotFound,
		fmt.Sprintf("collection %q does not exist; ingest data first", name),
		lecternerr.FieldCollection(name))
}
