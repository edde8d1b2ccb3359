package obs

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var buildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "renewly_build_info",
	Help: "Build metadata of the running process.",
}, []string{"service", "version"})

type Probe func(context.Context) error

// BootstrapMetricsServer serves /metrics, /livez and /readyz on addr.
// /readyz runs every probe under a short deadline.
func BootstrapMetricsServer(addr string, l *zap.Logger, info LogConfig, probes ...Probe) *http.Server {
	buildInfo.WithLabelValues(info.App, info.Ver).Set(1)
	ms := &http.Server{
		Addr:         addr,
		Handler:      opsRouter(probes),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		l.Info("metrics listening", zap.String("addr", addr))
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server error", zap.Error(err))
		}
	}()

	return ms
}

func opsRouter(probes []Probe) http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 500*time.Millisecond)
		defer cancel()
		for _, p := range probes {
			if err := p(ctx); err != nil {
				http.Error(w, "not ready: "+err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}
