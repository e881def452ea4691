package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aumrank_outcomes_total",
			Help: "Completed fetch tasks by outcome kind",
		},
		[]string{"kind"},
	)

	ruleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aumrank_rule_matches_total",
			Help: "Successful extractions by the rule that matched",
		},
		[]string{"rule"},
	)

	fetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aumrank_fetch_duration_seconds",
			Help:    "Wall time of remote document fetches",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	inflightTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aumrank_inflight_tasks",
			Help: "Tasks currently running in the worker pool",
		},
	)
)

// serveMetrics exposes /metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics: listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics: server failed", "err", err)
	}
}
