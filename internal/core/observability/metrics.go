package observability

import (
	"errors"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	importFeaturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_features_total",
			Help: "Imported features by entity kind and outcome (imported, duplicate, error).",
		},
		[]string{"kind", "outcome"},
	)

	importRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_runs_total",
			Help: "Import pipeline runs by entity kind and result.",
		},
		[]string{"kind", "result"},
	)

	importDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "import_duration_seconds",
			Help:    "Wall time of one import pipeline run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"kind"},
	)

	searchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_duration_seconds",
			Help:    "Latency of search and bounds queries.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"op"},
	)

	searchResults = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "search_results",
			Help:    "Number of results returned per search.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	storeOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_op_duration_seconds",
			Help:    "Latency of entity store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0002, 2, 14),
		},
		[]string{"op", "result"},
	)

	catalogCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cache_total",
			Help: "Search catalog cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_events_published_total",
			Help: "Import events handed to the Kafka producer, by result.",
		},
		[]string{"result"},
	)

	invalidationLagSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "invalidation_lag_seconds",
			Help: "Delay between an import event timestamp and its processing.",
		},
	)

	scopeInvalidatedAt = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "catalog_invalidated_timestamp_seconds",
			Help: "Unix time a scope/kind catalog was last invalidated.",
		},
		[]string{"scope", "kind"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds,
		importFeaturesTotal, importRunsTotal, importDurationSeconds,
		searchDurationSeconds, searchResults,
		storeOpDurationSeconds, catalogCacheTotal,
		eventsPublishedTotal, invalidationLagSeconds, scopeInvalidatedAt,
	}
}

// Init registers the service metrics on reg. With on=false every Observe* call
// becomes a no-op. Registering twice on the same registry is tolerated.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	if reg == nil || !on {
		return
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			panic(err)
		}
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// ObserveImport records one finished run. result is "ok" or the abort reason.
func ObserveImport(kind, result string, imported, duplicates, errs int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	importRunsTotal.WithLabelValues(kind, result).Inc()
	importDurationSeconds.WithLabelValues(kind).Observe(durationSeconds)
	if imported > 0 {
		importFeaturesTotal.WithLabelValues(kind, "imported").Add(float64(imported))
	}
	if duplicates > 0 {
		importFeaturesTotal.WithLabelValues(kind, "duplicate").Add(float64(duplicates))
	}
	if errs > 0 {
		importFeaturesTotal.WithLabelValues(kind, "error").Add(float64(errs))
	}
}

func ObserveSearch(op string, results int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	searchDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
	if op == "search" {
		searchResults.Observe(float64(results))
	}
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	res := "ok"
	if err != nil {
		res = "error"
	}
	storeOpDurationSeconds.WithLabelValues(op, res).Observe(durationSeconds)
}

func IncCatalogHit() {
	if enabled.Load() {
		catalogCacheTotal.WithLabelValues("hit").Inc()
	}
}

func IncCatalogMiss() {
	if enabled.Load() {
		catalogCacheTotal.WithLabelValues("miss").Inc()
	}
}

func IncEventPublished(result string) {
	if enabled.Load() {
		eventsPublishedTotal.WithLabelValues(result).Inc()
	}
}

func SetInvalidationLagSeconds(v float64) {
	if enabled.Load() {
		invalidationLagSeconds.Set(v)
	}
}

func SetCatalogInvalidatedAt(scope, kind string, unixSeconds float64) {
	if enabled.Load() {
		scopeInvalidatedAt.WithLabelValues(scope, kind).Set(unixSeconds)
	}
}
