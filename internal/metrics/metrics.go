// Package metrics exports the node's operational gauges and counters via
// a Prometheus-compatible HTTP endpoint: one registry, one namespace, one
// collector per exported series.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "rdnode"

// Metrics holds every collector this node exports. Callers set gauges
// directly (they reflect point-in-time state pulled from the storage
// engine and cluster table) and increment counters as events occur.
type Metrics struct {
	registry *prometheus.Registry

	KeyspaceSize   prometheus.Gauge
	CommandsTotal  *prometheus.CounterVec
	ExpiredKeys    prometheus.Counter
	ClusterSlots   prometheus.Gauge
	PubsubSubs     prometheus.Gauge
	AOFWritesTotal prometheus.Counter
	SnapshotTotal  prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		KeyspaceSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keyspace_size",
			Help:      "Number of keys currently held by this node.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands processed, partitioned by command name.",
		}, []string{"command"}),
		ExpiredKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expired_keys_total",
			Help:      "Keys removed because their TTL elapsed.",
		}),
		ClusterSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_slots_owned",
			Help:      "Hash slots currently owned by this node.",
		}),
		PubsubSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pubsub_subscribers",
			Help:      "Local (channel, subscriber) pairs currently registered.",
		}),
		AOFWritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aof_writes_total",
			Help:      "Write commands appended to the append-only file.",
		}),
		SnapshotTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_total",
			Help:      "Completed point-in-time snapshots, scheduled or manual.",
		}),
	}

	reg.MustRegister(
		m.KeyspaceSize,
		m.CommandsTotal,
		m.ExpiredKeys,
		m.ClusterSlots,
		m.PubsubSubs,
		m.AOFWritesTotal,
		m.SnapshotTotal,
	)
	return m
}

// Server serves the /metrics endpoint on addr until ctx is cancelled. A
// zero-value addr (empty string, caller's port 0) means the caller
// should skip calling Serve entirely; a configured metrics port of 0
// disables the exporter.
type Server struct {
	httpSrv *http.Server
	log     *zap.Logger
}

// NewServer builds an HTTP server exposing m on /metrics with a bare
// ServeMux: one route and no session or request state means there's
// nothing for a heavier router or middleware stack to do.
func NewServer(addr string, m *Metrics, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	return &Server{
		httpSrv: &http.Server{Addr: addr, Handler: mux},
		log:     log.Named("metrics"),
	}
}

// Serve blocks until the listener fails or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.httpSrv.Close()
	}()
	s.log.Info("metrics server listening", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
