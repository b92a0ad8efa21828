package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline Prometheus metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foliorag",
			Name:      "search_requests_total",
			Help:      "Total number of retrieval requests",
		},
		[]string{"status"}, // "ok" / "invalid" / "error"
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "foliorag",
			Name:      "search_duration_seconds",
			Help:      "End-to-end retrieval duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	SearchPathResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "foliorag",
			Name:      "search_path_results",
			Help:      "Raw result count per retrieval path before fusion",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		},
		[]string{"path"}, // "semantic" / "keyword"
	)

	SearchPathErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foliorag",
			Name:      "search_path_errors_total",
			Help:      "Retrieval path failures absorbed by the hybrid merge",
		},
		[]string{"path"},
	)

	SearchCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "foliorag",
			Name:      "search_cache_total",
			Help:      "Search outcome cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)
)

var retrievalMetricsRegistered bool

// RegisterRetrievalMetrics registers Prometheus retrieval metrics. Must be called once from main.
func RegisterRetrievalMetrics() {
	if retrievalMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchPathResults)
	prometheus.MustRegister(SearchPathErrorsTotal)
	prometheus.MustRegister(SearchCacheTotal)
	retrievalMetricsRegistered = true
}
