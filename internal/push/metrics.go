package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pushSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_sent_total",
		Help: "Push attempts by result (ok, gone, rejected, unavailable, error).",
	}, []string{"result"})
	pushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "push_latency_seconds",
		Help:    "Latency of push service requests.",
		Buckets: prometheus.DefBuckets,
	})
	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_breaker_transitions_total",
		Help: "Circuit breaker state changes by target state.",
	}, []string{"to"})
)
