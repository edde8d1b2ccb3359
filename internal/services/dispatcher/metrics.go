package dispatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_runs_total", Help: "Dispatch runs by outcome (ok, empty, error, skipped).",
	}, []string{"outcome"})
	mBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatcher_batches_total", Help: "Seller batches built.",
	})
	mDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_deliveries_total", Help: "Delivery results (sent, pruned, failed).",
	}, []string{"result"})
	mRunDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "dispatcher_run_duration_seconds", Help: "Dispatch run duration",
		Buckets: prometheus.DefBuckets,
	})
)

func observeSummary(s *Summary) {
	if s == nil {
		return
	}
	mBatches.Add(float64(s.Batches))
	for _, r := range s.Results {
		switch {
		case r.Pruned:
			mDeliveries.WithLabelValues("pruned").Inc()
		case r.Success:
			mDeliveries.WithLabelValues("sent").Inc()
		default:
			mDeliveries.WithLabelValues("failed").Inc()
		}
	}
}
