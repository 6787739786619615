package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anthropic/dirwatch/internal/watcher"
)

// Metrics holds the daemon's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	delivered     *prometheus.CounterVec
	suppressed    *prometheus.CounterVec
	pumps         prometheus.Counter
	journalErrors prometheus.Counter
	watchpoints   prometheus.Gauge

	last watcher.Stats
}

// New registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dirwatch_events_delivered_total",
			Help: "Events delivered by Poll, by watch.",
		}, []string{"watch"}),
		suppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dirwatch_events_suppressed_total",
			Help: "Notifications dropped before queueing, by reason.",
		}, []string{"reason"}),
		pumps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dirwatch_pumps_total",
			Help: "Passes made over the OS notification source.",
		}),
		journalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dirwatch_journal_errors_total",
			Help: "Delivered events that could not be written to the journal.",
		}),
		watchpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dirwatch_watchpoints",
			Help: "Registered watchpoints.",
		}),
	}
	m.registry.MustRegister(
		m.delivered, m.suppressed, m.pumps, m.journalErrors, m.watchpoints,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Delivered counts one event for watch.
func (m *Metrics) Delivered(watch string) {
	m.delivered.WithLabelValues(watch).Inc()
}

// JournalError counts one failed journal write.
func (m *Metrics) JournalError() {
	m.journalErrors.Inc()
}

// SetWatchpoints sets the watchpoint gauge.
func (m *Metrics) SetWatchpoints(n int) {
	m.watchpoints.Set(float64(n))
}

// ObserveStats adds whatever the watcher counted since the previous call.
func (m *Metrics) ObserveStats(s watcher.Stats) {
	m.pumps.Add(float64(s.Pumps - m.last.Pumps))
	m.suppressed.WithLabelValues("hidden").Add(float64(s.Hidden - m.last.Hidden))
	m.suppressed.WithLabelValues("duplicate").Add(float64(s.Duplicates - m.last.Duplicates))
	m.suppressed.WithLabelValues("unreadable").Add(float64(s.Unreadable - m.last.Unreadable))
	m.last = s
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
