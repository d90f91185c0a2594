// Package health exposes Prometheus self-observability metrics for
// the collection pipeline, plus the HTTP server that serves them.
package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Config configures the health metrics server.
type Config struct {
	// Addr is the listen address for the health metrics server.
	// Defaults to ":9090".
	Addr string `yaml:"addr"`
}

// Metrics exposes Prometheus metrics for pipeline health. All fields
// are safe to use from multiple goroutines; a nil *Metrics disables
// instrumentation entirely.
type Metrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	// Reader layer.
	CollectionsTotal   prometheus.Counter
	CollectErrors      *prometheus.CounterVec // reason
	MeterProduceErrors *prometheus.CounterVec // meter

	// Exporter layer.
	ExportsTotal       prometheus.Counter
	ExportErrors       prometheus.Counter
	ExportDuration     prometheus.Histogram
	ExportBatchSize    prometheus.Histogram
	ForceFlushTimeouts prometheus.Counter

	running atomic.Bool
}

// New creates a new health metrics set with its own registry.
func New(log logrus.FieldLogger, cfg Config) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		CollectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metrik",
			Name:      "collections_total",
			Help:      "Total collection cycles started.",
		}),
		CollectErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metrik",
				Name:      "collect_errors_total",
				Help:      "Total failed collection cycles by reason.",
			},
			[]string{"reason"},
		),
		MeterProduceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "metrik",
				Name:      "meter_produce_errors_total",
				Help:      "Total per-meter aggregation failures.",
			},
			[]string{"meter"},
		),
		ExportsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metrik",
			Name:      "exports_total",
			Help:      "Total export attempts handed to the exporter.",
		}),
		ExportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metrik",
			Name:      "export_errors_total",
			Help:      "Total exports reported as failed.",
		}),
		ExportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "metrik",
			Name:      "export_duration_seconds",
			Help:      "Duration of exporter calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		ExportBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "metrik",
			Name:      "export_batch_size",
			Help:      "Measurements entries per exported batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		ForceFlushTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "metrik",
			Name:      "force_flush_timeouts_total",
			Help:      "Total force-flush calls that hit their deadline.",
		}),
	}

	reg.MustRegister(
		m.CollectionsTotal,
		m.CollectErrors,
		m.MeterProduceErrors,
		m.ExportsTotal,
		m.ExportErrors,
		m.ExportDuration,
		m.ExportBatchSize,
		m.ForceFlushTimeouts,
	)

	return m
}

// Start begins serving the /metrics endpoint.
func (m *Metrics) Start(_ context.Context) error {
	if m.addr == "" {
		m.addr = ":9090"
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	// pprof endpoints for CPU/memory profiling.
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", m.addr, err)
	}

	m.listener = ln

	m.server = &http.Server{
		Handler: mux,
	}

	m.running.Store(true)

	go func() {
		m.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := m.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			m.log.WithError(err).
				Error("Health metrics server error")
		}

		m.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (m *Metrics) Addr() string {
	if m.listener != nil {
		return m.listener.Addr().String()
	}

	return m.addr
}

// Stop gracefully shuts down the health metrics server.
func (m *Metrics) Stop() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}
