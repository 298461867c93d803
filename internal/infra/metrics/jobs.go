package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsTotal, pollTransitionsTotal, pollChecks) }

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_total",
			Help: "Total number of assistant jobs finished, labeled by status.",
		},
		[]string{"status"}, // 'completed', 'failed'
	)

	pollTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_transitions_total",
			Help: "Poller state transitions, labeled by target state.",
		},
		[]string{"to"},
	)

	pollChecks = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poll_checks",
			Help:    "Status checks performed per poll, labeled by outcome.",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 30, 50},
		},
		[]string{"outcome"},
	)
)

func IncJob(status string) {
	jobsTotal.WithLabelValues(norm(status)).Inc()
}

func IncPollTransition(to string) {
	pollTransitionsTotal.WithLabelValues(norm(to)).Inc()
}

func ObservePollChecks(outcome string, checks int) {
	pollChecks.WithLabelValues(norm(outcome)).Observe(float64(checks))
}
