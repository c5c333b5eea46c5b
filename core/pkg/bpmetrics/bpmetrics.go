// Package bpmetrics exposes Prometheus counters and histograms for the
// validation engine's external calls — the slow, flaky part of every
// run (HTTP probes, nmap scans, whois lookups) is exactly where
// operators want latency and failure-rate visibility.
package bpmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the engine's metrics and the registerer they live on.
type Registry struct {
	ProbesTotal      *prometheus.CounterVec
	ProbeDuration    *prometheus.HistogramVec
	FindingsTotal    *prometheus.CounterVec
	TLSScansTotal    prometheus.Counter
	CacheHitsTotal   *prometheus.CounterVec
	CooldownWaitSecs prometheus.Histogram
}

// New registers and returns the engine's metrics on reg.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bpvalidate_probes_total",
			Help: "Number of probe calls made, by class and outcome.",
		}, []string{"class", "outcome"}),
		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bpvalidate_probe_duration_seconds",
			Help:    "Probe call latency, by class.",
			Buckets: prometheus.DefBuckets,
		}, []string{"class"}),
		FindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bpvalidate_findings_total",
			Help: "Findings recorded, by class and kind.",
		}, []string{"class", "kind"}),
		TLSScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bpvalidate_tls_scans_total",
			Help: "Number of external TLS scans invoked (cache misses only).",
		}),
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bpvalidate_cache_hits_total",
			Help: "Cache lookups, by table and hit/miss.",
		}, []string{"table", "result"}),
		CooldownWaitSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bpvalidate_tls_cooldown_wait_seconds",
			Help:    "Time spent waiting out the global TLS-scan cooldown.",
			Buckets: []float64{0, 1, 5, 10, 15, 20},
		}),
	}

	reg.MustRegister(
		r.ProbesTotal, r.ProbeDuration, r.FindingsTotal,
		r.TLSScansTotal, r.CacheHitsTotal, r.CooldownWaitSecs,
	)
	return r
}

// ObserveFinding increments FindingsTotal for class/kind — a thin
// wrapper so callers iterating a finding stream don't touch the vec
// directly.
func (r *Registry) ObserveFinding(class, kind string) {
	r.FindingsTotal.WithLabelValues(class, kind).Inc()
}

// ObserveProbe records one probe call's outcome and duration.
func (r *Registry) ObserveProbe(class, outcome string, seconds float64) {
	r.ProbesTotal.WithLabelValues(class, outcome).Inc()
	r.ProbeDuration.WithLabelValues(class).Observe(seconds)
}
