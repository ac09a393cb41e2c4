// Package observability wires up the metrics and tracing hooks embedded
// at plugin and listener boundaries: a prometheus.Registry exposed over
// HTTP, and an OTel tracer provider backed by an OTLP exporter.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the prometheus-backed implementation of dnsserver.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	panicsTotal   prometheus.Counter
}

// NewMetrics builds a fresh registry and the counters/histograms
// instrumented at every listener boundary, generalized to per-protocol,
// per-rcode labels.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vdns",
			Name:      "queries_total",
			Help:      "Total DNS queries served, by protocol and response code.",
		}, []string{"proto", "rcode"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vdns",
			Name:      "query_duration_seconds",
			Help:      "Query resolution latency, by protocol.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"proto"}),
		panicsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "vdns",
			Name:      "server_panics_total",
			Help:      "Panics recovered from the server's request handler.",
		}),
	}

	reg.MustRegister(m.queriesTotal, m.queryDuration, m.panicsTotal)
	return m
}

// ObserveQuery implements dnsserver.Recorder.
func (m *Metrics) ObserveQuery(proto string, rcode int, elapsed time.Duration) {
	m.queriesTotal.WithLabelValues(proto, strconv.Itoa(rcode)).Inc()
	if elapsed > 0 {
		m.queryDuration.WithLabelValues(proto).Observe(elapsed.Seconds())
	}
}

// ObservePanic implements dnsserver.Recorder.
func (m *Metrics) ObservePanic() {
	m.panicsTotal.Inc()
}

// Serve exposes the registry at /metrics on addr. It blocks until ctx is
// canceled or the listener fails.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("observability: metrics server: %w", err)
	}
}
