// Package metrics exposes Prometheus collectors for the graph engine.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "graphdb",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphdb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphdb",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	storageOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphdb",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total storage engine operations by backend, op, and result.",
		},
		[]string{"backend", "op", "result"},
	)

	storageOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphdb",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Duration of storage engine operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"backend", "op"},
	)

	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphdb",
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Hybrid store Tier-1 cache hits/misses/evictions by tier.",
		},
		[]string{"tier", "event"},
	)

	indexOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphdb",
			Subsystem: "index",
			Name:      "operations_total",
			Help:      "Index maintenance operations by kind and op.",
		},
		[]string{"kind", "op"},
	)

	txnOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphdb",
			Subsystem: "txn",
			Name:      "outcomes_total",
			Help:      "Transaction outcomes by isolation level and result.",
		},
		[]string{"isolation", "result"},
	)

	txnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphdb",
			Subsystem: "txn",
			Name:      "duration_seconds",
			Help:      "Transaction lifetime from begin to commit/rollback.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		},
		[]string{"isolation"},
	)

	lockEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphdb",
			Subsystem: "lock",
			Name:      "events_total",
			Help:      "Lock manager events: waits, grants, deadlocks, timeouts.",
		},
		[]string{"event"},
	)

	queryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphdb",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Duration of query phases (parse, execute) by statement kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		},
		[]string{"phase", "kind"},
	)

	algoDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "graphdb",
			Subsystem: "algo",
			Name:      "run_duration_seconds",
			Help:      "Duration of graph algorithm runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 18),
		},
		[]string{"algorithm"},
	)

	streamItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphdb",
			Subsystem: "stream",
			Name:      "items_total",
			Help:      "Stream items delivered by kind (node, relationship, batch_end).",
		},
		[]string{"kind"},
	)

	streamBackpressure = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "graphdb",
			Subsystem: "stream",
			Name:      "backpressure_total",
			Help:      "Times a non-blocking stream offer was rejected because the buffer was full.",
		},
		[]string{"stream"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		storageOps,
		storageOpDuration,
		cacheEvents,
		indexOps,
		txnOutcomes,
		txnDuration,
		lockEvents,
		queryDuration,
		algoDuration,
		streamItems,
		streamBackpressure,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordStorageOp records a storage-engine operation outcome and latency.
func RecordStorageOp(backend, op string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storageOps.WithLabelValues(backend, op, result).Inc()
	storageOpDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
}

// RecordCacheEvent records a hybrid-store Tier-1 cache hit/miss/eviction.
func RecordCacheEvent(tier, event string) {
	cacheEvents.WithLabelValues(tier, event).Inc()
}

// RecordIndexOp records an index maintenance or query operation.
func RecordIndexOp(kind, op string) {
	indexOps.WithLabelValues(kind, op).Inc()
}

// RecordTransaction records a transaction's terminal outcome and duration.
func RecordTransaction(isolation, result string, duration time.Duration) {
	txnOutcomes.WithLabelValues(isolation, result).Inc()
	txnDuration.WithLabelValues(isolation).Observe(duration.Seconds())
}

// RecordLockEvent records a lock-manager event (wait, grant, deadlock, timeout).
func RecordLockEvent(event string) {
	lockEvents.WithLabelValues(event).Inc()
}

// RecordQueryPhase records the duration of a parse or execute phase.
func RecordQueryPhase(phase, kind string, duration time.Duration) {
	queryDuration.WithLabelValues(phase, kind).Observe(duration.Seconds())
}

// RecordAlgorithmRun records the duration of a graph algorithm invocation.
func RecordAlgorithmRun(algorithm string, duration time.Duration) {
	algoDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
}

// RecordStreamItem increments the delivered-item counter for a stream kind.
func RecordStreamItem(kind string) {
	streamItems.WithLabelValues(kind).Inc()
}

// RecordStreamBackpressure increments the backpressure counter for a named stream.
func RecordStreamBackpressure(stream string) {
	streamBackpressure.WithLabelValues(stream).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses identifiers out of request paths so label
// cardinality stays bounded, e.g. /nodes/1234 -> /nodes/:id.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if isNumericID(p) {
			out = append(out, ":id")
			continue
		}
		out = append(out, p)
	}
	return "/" + strings.Join(out, "/")
}

func isNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
