// Package metrics exposes Prometheus counters for mail intake and
// extraction. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quickestimate/internal/extract"
)

const namespace = "quickestimate"

type Metrics struct {
	emails         *prometheus.CounterVec
	extractions    *prometheus.CounterVec
	extractLatency *prometheus.HistogramVec
	polls          *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Emails handled by the processing pipeline, by final status.",
		}, []string{"status"}),
		extractions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extraction calls by source and outcome (ok or the failure kind).",
		}, []string{"source", "outcome"}),
		extractLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_duration_seconds",
			Help:      "Wall time of one extraction call.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"source"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_polls_total",
			Help:      "Listener poll cycles by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.emails, m.extractions, m.extractLatency, m.polls)
	return m
}

func (m *Metrics) EmailHandled(status string) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveExtraction(source string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(extract.KindOf(err))
		if outcome == "" {
			outcome = "other"
		}
	}
	m.extractions.WithLabelValues(source, outcome).Inc()
	m.extractLatency.WithLabelValues(source).Observe(took.Seconds())
}

func (m *Metrics) Poll(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.polls.WithLabelValues(result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
