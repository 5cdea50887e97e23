package observability

import "github.com/prometheus/client_golang/prometheus"

// Collectors for the refresh pipeline. Label values are kept to small closed
// sets: quote status is the HTTP code or "error", cycle result is
// "ok|failed|skipped", notification result is "sent|failed".
var (
	QuoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertbot_quote_requests_total",
			Help: "Quote API attempts by HTTP status.",
		},
		[]string{"status"},
	)

	RefreshCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertbot_refresh_cycles_total",
			Help: "Refresh-and-notify cycles by result.",
		},
		[]string{"result"},
	)

	RefreshCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertbot_refresh_cycle_duration_seconds",
			Help:    "Wall time of completed refresh cycles.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertbot_notifications_total",
			Help: "Price alert sends by result.",
		},
		[]string{"result"},
	)

	TrackedTokens = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "alertbot_tracked_tokens",
			Help: "Tokens seen by the last refresh cycle.",
		},
	)
)

func init() {
	prometheus.MustRegister(QuoteRequests, RefreshCycles, RefreshCycleDuration, Notifications, TrackedTokens)
}
