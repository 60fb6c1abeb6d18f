// Package metrics exposes the assistant's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemindersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "reminders",
			Name:      "fired_total",
			Help:      "Due reminders processed by the due-detection loop, by delivery result.",
		},
		[]string{"result"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "Requests rejected by the per-user rate limiter.",
		},
		[]string{"category"},
	)

	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "External provider calls by operation and result.",
		},
		[]string{"op", "result"},
	)

	LoopErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "background",
			Name:      "errors_total",
			Help:      "Failed background loop iterations.",
		},
		[]string{"loop"},
	)

	HistoryPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "history",
			Name:      "purged_total",
			Help:      "History entries deleted by the retention sweep.",
		},
	)
)

// Result maps an error to a result label.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
