package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamqueue",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	queueCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamqueue",
			Name:      "queue_commands_total",
			Help:      "Queue commands by type and outcome.",
		},
		[]string{"command", "outcome"},
	)

	webhooks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "streamqueue",
			Name:      "webhooks_total",
			Help:      "Inbound order webhooks by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, queueCommands, webhooks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncCommand increments the queue command counter.
func IncCommand(command, outcome string) {
	queueCommands.WithLabelValues(command, outcome).Inc()
}

// IncWebhook increments the webhook counter for a result label
// (eligible, ignored, rejected, error).
func IncWebhook(result string) {
	webhooks.WithLabelValues(result).Inc()
}
