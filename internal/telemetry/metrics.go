// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing
// for the retrieval pipeline.
//
// Scraping /metrics yields, for example:
//
//	lectern_queries_total{collection="audiobook_embeddings"} 12
//	lectern_answers_total{outcome="degraded",provider="none"} 3
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lectern"

// Metrics holds the collectors lectern records into, on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ingestedRecords *prometheus.CounterVec
	ingestBatches   *prometheus.CounterVec
	queries         *prometheus.CounterVec
	retrieveErrors  *prometheus.CounterVec
	answers         *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

// NewMetrics registers all collectors, plus the Go runtime and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ingestedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_records_total",
			Help:      "Records written to a collection.",
		}, []string{"collection"}),
		ingestBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Ingest batches by result.",
		}, []string{"collection", "result"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Retrieval queries served.",
		}, []string{"collection"}),
		retrieveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieve_errors_total",
			Help:      "Retrieval failures by error code.",
		}, []string{"code"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers by outcome and provider.",
		}, []string{"outcome", "provider"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_duration_seconds",
			Help:      "Time spent selecting a provider and generating an answer.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"provider"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestedRecords,
		m.ingestBatches,
		m.queries,
		m.retrieveErrors,
		m.answers,
		m.providerLatency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Every recorder below is safe on a nil *Metrics.

func (m *Metrics) RecordIngest(collection string, batches, records int, failed bool) {
	if m == nil {
		return
	}
	m.ingestedRecords.WithLabelValues(collection).Add(float64(records))
	m.ingestBatches.WithLabelValues(collection, "ok").Add(float64(batches))
	if failed {
		m.ingestBatches.WithLabelValues(collection, "failed").Inc()
	}
}

func (m *Metrics) RecordQuery(collection string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(collection).Inc()
}

func (m *Metrics) RecordRetrieveError(code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.retrieveErrors.WithLabelValues(code).Inc()
}

// RecordAnswer counts an answer; an empty provider is reported as "none".
func (m *Metrics) RecordAnswer(providerName, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if providerName == "" {
		providerName = "none"
	}
	m.answers.WithLabelValues(outcome, providerName).Inc()
	m.providerLatency.WithLabelValues(providerName).Observe(elapsed.Seconds())
}
