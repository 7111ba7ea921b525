package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

type PrometheusRecorder struct {
	registry             *prometheus.Registry
	joins                *prometheus.CounterVec
	leaves               prometheus.Counter
	reconcileCorrections *prometheus.CounterVec
	invariantViolations  *prometheus.CounterVec
	commandDuration      *prometheus.HistogramVec
}

func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		joins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "genkaipoint_joins_total",
			Help: "Voice joins by outcome",
		}, []string{"result"}),
		leaves: factory.NewCounter(prometheus.CounterOpts{
			Name: "genkaipoint_leaves_total",
			Help: "Closed voice sessions",
		}),
		reconcileCorrections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "genkaipoint_reconcile_corrections_total",
			Help: "Sessions opened or closed by reconciliation",
		}, []string{"kind"}),
		invariantViolations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "genkaipoint_invariant_violations_total",
			Help: "Operations that found the session store in an unexpected state",
		}, []string{"op"}),
		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genkaipoint_command_duration_seconds",
			Help:    "Time spent answering chat commands",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
	}
}

func (m *PrometheusRecorder) IncJoin(result string) {
	m.joins.WithLabelValues(result).Inc()
}

func (m *PrometheusRecorder) IncLeave() {
	m.leaves.Inc()
}

func (m *PrometheusRecorder) IncReconcileCorrection(kind string) {
	m.reconcileCorrections.WithLabelValues(kind).Inc()
}

func (m *PrometheusRecorder) IncInvariantViolation(op string) {
	m.invariantViolations.WithLabelValues(op).Inc()
}

func (m *PrometheusRecorder) ObserveCommand(name string, duration time.Duration) {
	m.commandDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func (m *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *PrometheusRecorder) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown failed", "error", err)
		}
	}()

	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
