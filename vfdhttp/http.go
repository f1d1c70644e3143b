// Package vfdhttp exposes a Manager's runtime state over HTTP: JSON
// debug dumps in the style of rclone's fs/rc remote-control server, and
// a Prometheus /metrics endpoint, both mounted on a go-chi/chi router.
// This is operator tooling only — nothing in package vfd depends on it.
package vfdhttp

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vfdstore/vfd/vfd"
)

// Server wraps a chi.Router exposing a Manager's state.
type Server struct {
	mgr      *vfd.Manager
	registry *prometheus.Registry
	Router   chi.Router
}

// New builds a Server for mgr, with its own Prometheus registry so that
// constructing more than one Server (as tests do) never collides with
// the global default registry. The caller is responsible for calling
// http.ListenAndServe(addr, srv.Router) or mounting Router under an
// existing mux.
func New(mgr *vfd.Manager) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(mgr))

	s := &Server{mgr: mgr, registry: registry, Router: chi.NewRouter()}
	s.Router.Use(middleware.Recoverer)
	s.Router.Get("/debug/vfds", s.handleDebugVfds)
	s.Router.Get("/debug/stats", s.handleDebugStats)
	s.Router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return s
}

type statsPayload struct {
	NFile           int   `json:"nfile"`
	NAllocatedDescs int   `json:"n_allocated_descs"`
	MaxSafeFds      int   `json:"max_safe_fds"`
	Evictions       int64 `json:"evictions"`
	PoolEntries     int   `json:"pool_entries"`
}

func (s *Server) handleDebugStats(w http.ResponseWriter, r *http.Request) {
	payload := statsPayload{
		NFile:           s.mgr.NFile(),
		NAllocatedDescs: s.mgr.NAllocatedDescs(),
		MaxSafeFds:      s.mgr.MaxSafeFds(),
		Evictions:       s.mgr.Evictions(),
		PoolEntries:     s.mgr.PoolEntries(),
	}
	writeJSON(w, payload)
}

func (s *Server) handleDebugVfds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.mgr.DebugSlots())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// collector adapts a Manager's counters to prometheus.Collector without
// requiring the vfd package itself to import prometheus.
type collector struct {
	mgr       *vfd.Manager
	nfile     *prometheus.Desc
	ndescs    *prometheus.Desc
	maxSafe   *prometheus.Desc
	evictions *prometheus.Desc
	poolSize  *prometheus.Desc
}

func newCollector(mgr *vfd.Manager) *collector {
	return &collector{
		mgr:       mgr,
		nfile:     prometheus.NewDesc("vfd_nfile", "Count of locally, physically open VFD slots.", nil, nil),
		ndescs:    prometheus.NewDesc("vfd_allocated_descs", "Count of occupied allocated-desc table entries.", nil, nil),
		maxSafe:   prometheus.NewDesc("vfd_max_safe_fds", "Computed file descriptor budget.", nil, nil),
		evictions: prometheus.NewDesc("vfd_evictions_total", "Lifetime count of LRU evictions.", nil, nil),
		poolSize:  prometheus.NewDesc("vfd_pool_entries", "Count of pooled remote connections.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.nfile
	ch <- c.ndescs
	ch <- c.maxSafe
	ch <- c.evictions
	ch <- c.poolSize
}

// Collect implements prometheus.Collector.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.nfile, prometheus.GaugeValue, float64(c.mgr.NFile()))
	ch <- prometheus.MustNewConstMetric(c.ndescs, prometheus.GaugeValue, float64(c.mgr.NAllocatedDescs()))
	ch <- prometheus.MustNewConstMetric(c.maxSafe, prometheus.GaugeValue, float64(c.mgr.MaxSafeFds()))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(c.mgr.Evictions()))
	ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(c.mgr.PoolEntries()))
}
