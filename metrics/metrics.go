// Package metrics provides Prometheus metrics for the discovery engine.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"

	"pingmesh/discovery"
	"pingmesh/hwaddr"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	registry *prometheus.Registry

	// Membership metrics
	Peers         prometheus.Gauge
	PeersAdded    prometheus.Counter
	PeersRejected prometheus.Counter
	PeersEvicted  prometheus.Counter
	EvictFailures prometheus.Counter

	// Liveness metrics
	ProbesSent prometheus.Counter
	ProbeRTT   prometheus.Histogram

	// Link metrics
	SendFailures *prometheus.CounterVec
}

var _ discovery.Observer = (*Metrics)(nil)

// NewMetrics creates a new Metrics instance with the given namespace on its own registry.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Number of peers currently in the peer table",
		}),
		PeersAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_added_total",
			Help:      "Total number of peers discovered and added",
		}),
		PeersRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_rejected_total",
			Help:      "Total number of discovered peers rejected because the table was full",
		}),
		PeersEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_evicted_total",
			Help:      "Total number of peers evicted after a probe timeout",
		}),
		EvictFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evict_failures_total",
			Help:      "Total number of evictions the link refused",
		}),
		ProbesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_sent_total",
			Help:      "Total number of liveness probes sent",
		}),
		ProbeRTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_rtt_seconds",
			Help:      "Round-trip time of answered liveness probes",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Total number of sends the link did not complete",
		}, []string{"message"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) PeerAdded(hwaddr.Addr, uint64) {
	m.PeersAdded.Inc()
	m.Peers.Inc()
}

func (m *Metrics) PeerRejected(hwaddr.Addr, uint64, error) {
	m.PeersRejected.Inc()
}

func (m *Metrics) PeerEvicted(hwaddr.Addr, uint64) {
	m.PeersEvicted.Inc()
	m.Peers.Dec()
}

func (m *Metrics) EvictFailed(hwaddr.Addr, uint64, error) {
	m.EvictFailures.Inc()
}

func (m *Metrics) ProbeSent(hwaddr.Addr, uint64) {
	m.ProbesSent.Inc()
}

func (m *Metrics) ProbeLatency(_ hwaddr.Addr, _ uint64, rttMillis uint64) {
	m.ProbeRTT.Observe((time.Duration(rttMillis) * time.Millisecond).Seconds())
}

func (m *Metrics) SendFailed(_ hwaddr.Addr, msg discovery.MessageType, _ uint64, _ error) {
	m.SendFailures.WithLabelValues(msg.String()).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("metrics: shutdown: %v", err)
		}
	}()

	log.Infof("metrics: serving on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
