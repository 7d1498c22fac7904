package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chat_relay",
			Name:      "requests_total",
			Help:      "Chat completions handled, by response status.",
		},
		[]string{"status"},
	)

	upstreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chat_relay",
			Name:      "upstream_duration_seconds",
			Help:      "Latency of upstream completion calls.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
