package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics owns the prometheus registry and the engine's counters. It is an
// injected component so tests can run with isolated registries.
type Metrics struct {
	registry *prometheus.Registry

	ScansStarted      prometheus.Counter
	BrokerScans       *prometheus.CounterVec
	FindingsStored    prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	RemovalOutcomes   *prometheus.CounterVec
	RetriesSpawned    prometheus.Counter
}

func NewMetrics(runtimeMetrics bool) *Metrics {
	reg := prometheus.NewRegistry()
	if runtimeMetrics {
		_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		_ = reg.Register(collectors.NewGoCollector())
	}

	m := &Metrics{
		registry: reg,
		ScansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delist_scans_started_total",
			Help: "Scan jobs started.",
		}),
		BrokerScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delist_broker_scans_total",
			Help: "Broker scans finished, by terminal status.",
		}, []string{"status"}),
		FindingsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delist_findings_stored_total",
			Help: "Findings persisted after deduplication.",
		}),
		DuplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delist_findings_duplicates_total",
			Help: "Parser matches dropped by the per-job dedup constraint.",
		}),
		RemovalOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delist_removal_outcomes_total",
			Help: "Removal attempts classified, by outcome kind.",
		}, []string{"outcome"}),
		RetriesSpawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delist_removal_retries_total",
			Help: "Failed removal attempts re-queued by user retry.",
		}),
	}

	reg.MustRegister(m.ScansStarted, m.BrokerScans, m.FindingsStored,
		m.DuplicatesSkipped, m.RemovalOutcomes, m.RetriesSpawned)
	return m
}

// Registry exposes the underlying registry for an HTTP handler or test
// gathering.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
