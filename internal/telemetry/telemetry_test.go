// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package telemetry_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/lectern/internal/telemetry"
)

func TestMetrics_Counters(t *testing.T) {
	m := telemetry.NewMetrics()

	m.RecordIngest("books", 3, 250, false)
	m.RecordIngest("books", 1, 0, true)
	m.RecordQuery("books")
	m.RecordQuery("books")
	m.RecordRetrieveError("")
	m.RecordAnswer("", "degraded", 5*time.Millisecond)
	m.RecordAnswer("google", "generated", time.Second)

	expected := `
# HELP lectern_answers_total Answers by outcome and provider.
# TYPE lectern_answers_total counter
lectern_answers_total{outcome="degraded",provider="none"} 1
lectern_answers_total{outcome="generated",provider="google"} 1
# HELP lectern_ingest_batches_total Ingest batches by result.
# TYPE lectern_ingest_batches_total counter
lectern_ingest_batches_total{collection="books",result="failed"} 1
lectern_ingest_batches_total{collection="books",result="ok"} 4
# HELP lectern_ingested_records_total Records written to a collection.
# TYPE lectern_ingested_records_total counter
lectern_ingested_records_total{collection="books"} 250
# HELP lectern_queries_total Retrieval queries served.
# TYPE lectern_queries_total counter
lectern_queries_total{collection="books"} 2
# HELP lectern_retrieve_errors_total Retrieval failures by error code.
# TYPE lectern_retrieve_errors_total counter
lectern_retrieve_errors_total{code="unknown"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"lectern_answers_total", "lectern_ingest_batches_total", "lectern_ingested_records_total", "lectern_queries_total", "lectern_retrieve_errors_total"))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.RecordIngest("c", 1, 1, false)
		m.RecordQuery("c")
		m.RecordRetrieveError("x")
		m.RecordAnswer("p", "generated", time.Millisecond)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := telemetry.NewMetrics()
	m.RecordQuery("books")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `lectern_queries_total{collection="books"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSetupTracing_Disabled(t *testing.T) {
	shutdown, err := telemetry.SetupTracing(context.Background(), "lectern", "", false)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))

	_, span := telemetry.StartSpan(context.Background(), "noop")
	telemetry.EndSpan(span, assert.AnError)
}
