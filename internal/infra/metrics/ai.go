package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		assistantRequestsTotal,
		assistantLatencyMs,
		chatTokensIn,
		mediaGenerationsTotal,
	)
}

var (
	assistantRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_requests_total",
			Help: "Assistant API requests by operation and outcome.",
		},
		[]string{"op", "outcome"}, // outcome: ok|transport|bad_response|parse
	)

	assistantLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_request_latency_ms",
			Help:    "Assistant API request latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"op"},
	)

	chatTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	mediaGenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_generations_total",
			Help: "Image and speech generations by kind and success.",
		},
		[]string{"kind", "success"},
	)
)

func ObserveAssistantRequest(op, outcome string, latencyMs int) {
	assistantRequestsTotal.WithLabelValues(norm(op), norm(outcome)).Inc()
	assistantLatencyMs.WithLabelValues(norm(op)).Observe(float64(latencyMs))
}

func AddChatTokens(provider, model string, tokens int) {
	chatTokensIn.WithLabelValues(norm(provider), norm(model)).Add(float64(tokens))
}

func IncMediaGeneration(kind string, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	mediaGenerationsTotal.WithLabelValues(norm(kind), s).Inc()
}
