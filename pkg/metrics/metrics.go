// Package metrics defines the Prometheus metrics exported by the engine.
// Metrics are registered via promauto and served by promhttp from cmd/api.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts processed HTTP requests by method, path and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgengine_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures server response time. Buckets span cache-hit
	// lookups up to LLM explanation latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kgengine_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// NodesTotal tracks graph node counts by kind.
	NodesTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kgengine_graph_nodes_total",
			Help: "Number of nodes in the knowledge graph",
		},
		[]string{"kind"},
	)

	// EdgesTotal tracks the graph edge count.
	EdgesTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kgengine_graph_edges_total",
			Help: "Number of edges in the knowledge graph",
		},
	)

	// VectorsTotal tracks the number of vectors in the index.
	VectorsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kgengine_vectors_total",
			Help: "Number of vectors in the similarity index",
		},
	)

	// UpsertsTotal counts upsert outcomes ("created", "exists", "error").
	UpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgengine_upserts_total",
			Help: "Total node upsert operations by outcome",
		},
		[]string{"outcome"},
	)

	// RebuildsTotal counts full rebuild outcomes ("ok", "failed").
	RebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kgengine_rebuilds_total",
			Help: "Total full rebuild attempts by outcome",
		},
		[]string{"outcome"},
	)

	// RebuildDuration measures full rebuild wall time.
	RebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kgengine_rebuild_duration_seconds",
			Help:    "Duration of full rebuilds in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)

	// PersistenceFailuresTotal counts durable-write failures. The in-memory
	// mutation stands when a write fails; this is the required observability.
	PersistenceFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kgengine_persistence_failures_total",
			Help: "Total snapshot/log write failures",
		},
	)

	// GeneratorFailuresTotal counts explanation-generator failures and timeouts.
	GeneratorFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kgengine_generator_failures_total",
			Help: "Total explanation generator failures (fallback substituted)",
		},
	)

	// EncoderFailuresTotal counts text-encoder failures. A failed encode
	// downgrades the upsert to a structural embedding, it never fails it.
	EncoderFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kgengine_encoder_failures_total",
			Help: "Total text encoder failures (structural embedding substituted)",
		},
	)
)
