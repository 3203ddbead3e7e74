// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package qdrant

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	qdrantsdk "github.com/qdrant/go-client/qdrant"

	"github.com/sigil-dev/lectern/internal/store"
)

// PointID maps a record ID onto the UUID space Qdrant accepts. The mapping
// is stable, so re-ingesting a record overwrites its point.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

func qdrantDistance(m store.Metric) qdrantsdk.Distance {
	switch m {
	case store.MetricL2:
		return qdrantsdk.Distance_Euclid
	case store.MetricIP:
		return qdrantsdk.Distance_Dot
	default:
		return qdrantsdk.Distance_Cosine
	}
}

// ScoreToDistance converts a Qdrant score to the store's distance: Qdrant
// reports similarity for cosine and dot, and the raw distance for Euclid.
func ScoreToDistance(m store.Metric, score float32) float64 {
	if m == store.MetricL2 {
		return float64(score)
	}
	return 1 - float64(score)
}

// FilterCollections drops internal collections and sorts the rest.
func FilterCollections(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if strings.HasPrefix(n, "_lectern_") {
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func mergeNames(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, n := range append(append([]string{}, a...), b...) {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func recordPayload(r store.Record, md map[string]any) map[string]any {
	payload := map[string]any{
		payloadRecordID: r.ID,
		payloadText:     r.Text,
	}
	if len(md) > 0 {
		payload[payloadMetadata] = md
	}
	return payload
}

func resultFromPayload(p map[string]*qdrantsdk.Value) store.Result {
	r := store.Result{
		ID:   p[payloadRecordID].GetStringValue(),
		Text: p[payloadText].GetStringValue(),
	}
	if md, ok := valueToAny(p[payloadMetadata]).(map[string]any); ok && len(md) > 0 {
		r.Metadata = md
	}
	return r
}

func entryPayload(e registryEntry) map[string]any {
	return map[string]any{
		"name":        e.Name,
		"metric":      string(e.Metric),
		"model":       e.Model,
		"description": e.Description,
		"created_at":  e.CreatedAt.Format(time.RFC3339),
	}
}

func entryFromPayload(p map[string]*qdrantsdk.Value) *registryEntry {
	created, _ := time.Parse(time.RFC3339, p["created_at"].GetStringValue())
	return &registryEntry{
		Name:        p["name"].GetStringValue(),
		Metric:      store.Metric(p["metric"].GetStringValue()),
		Model:       p["model"].GetStringValue(),
		Description: p["description"].GetStringValue(),
		CreatedAt:   created,
	}
}

// valueToAny unwraps a payload value into plain Go types.
func valueToAny(v *qdrantsdk.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *qdrantsdk.Value_StringValue:
		return kind.StringValue
	case *qdrantsdk.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrantsdk.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrantsdk.Value_BoolValue:
		return kind.BoolValue
	case *qdrantsdk.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, fv := range kind.StructValue.GetFields() {
			out[k] = valueToAny(fv)
		}
		return out
	case *qdrantsdk.Value_ListValue:
		vals := kind.ListValue.GetValues()
		out := make([]any, 0, len(vals))
		for _, lv := range vals {
			out = append(out, valueToAny(lv))
		}
		return out
	default:
		return nil
	}
}
