package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storeRequestsTotal, rateLimitTotal) }

var (
	storeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Reads of redis-backed stores by result (hit, miss, error).",
		},
		[]string{"cache", "result"},
	)
	rateLimitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limit_total",
			Help: "Rate limiter decisions by result (allowed, limited, error).",
		},
		[]string{"result"},
	)
)

func IncCacheRequest(store, result string) {
	storeRequestsTotal.WithLabelValues(norm(store), norm(result)).Inc()
}

func IncRateLimit(result string) {
	rateLimitTotal.WithLabelValues(norm(result)).Inc()
}
