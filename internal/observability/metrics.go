package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// snapshot service.
type Metrics struct {
	FleetRefreshes prometheus.Counter
	RefreshErrors  prometheus.Counter
	ServiceRunning prometheus.Gauge

	MonitorsTracked             prometheus.Gauge
	MonitorsDischarging         prometheus.Gauge
	MonitorsRecentlyDischarging prometheus.Gauge
	ImpactedNodes               prometheus.Gauge

	SnapshotDuration prometheus.Histogram

	HistoryRefreshes       prometheus.Counter
	HistoryFetchErrors     prometheus.Counter
	AlertsSent             prometheus.Counter
	ImpactRecordsPublished prometheus.Counter

	// EDM history cache lookups, labelled result={hit,miss}.
	HistoryCache *prometheus.CounterVec
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FleetRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cso_impact",
			Name:      "fleet_refreshes_total",
			Help:      "Total successful active-monitor refreshes.",
		}),
		RefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cso_impact",
			Name:      "refresh_errors_total",
			Help:      "Total failed snapshot cycles.",
		}),
		ServiceRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cso_impact",
			Name:      "service_running",
			Help:      "1 when the snapshot loop is active, 0 when shut down.",
		}),
		MonitorsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cso_impact",
			Name:      "monitors_tracked",
			Help:      "Active monitors in the fleet after the last refresh.",
		}),
		MonitorsDischarging: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cso_impact",
			Name:      "monitors_discharging",
			Help:      "Monitors currently recording a discharge event.",
		}),
		MonitorsRecentlyDischarging: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cso_impact",
			Name:      "monitors_recently_discharging",
			Help:      "Monitors flagged as having discharged in the last 48 hours.",
		}),
		ImpactedNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cso_impact",
			Name:      "impacted_nodes",
			Help:      "Grid nodes downstream of at least one discharging source.",
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cso_impact",
			Name:      "snapshot_duration_seconds",
			Help:      "Duration of a complete refresh-propagate-publish cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		HistoryRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cso_impact",
			Name:      "history_refreshes_total",
			Help:      "Total bulk event-history refreshes.",
		}),
		HistoryFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cso_impact",
			Name:      "history_fetch_errors_total",
			Help:      "Total failed bulk event-history refreshes.",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cso_impact",
			Name:      "alerts_sent_total",
			Help:      "Total discharge-start alerts delivered.",
		}),
		ImpactRecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cso_impact",
			Name:      "impact_records_published_total",
			Help:      "Total impacted-node records written to the sink topic.",
		}),
		HistoryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cso_impact",
			Name:      "history_cache_total",
			Help:      "EDM history cache lookups by result.",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.FleetRefreshes,
		m.RefreshErrors,
		m.ServiceRunning,
		m.MonitorsTracked,
		m.MonitorsDischarging,
		m.MonitorsRecentlyDischarging,
		m.ImpactedNodes,
		m.SnapshotDuration,
		m.HistoryRefreshes,
		m.HistoryFetchErrors,
		m.AlertsSent,
		m.ImpactRecordsPublished,
		m.HistoryCache,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FleetRefreshes:              prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cso_impact", Name: "fleet_refreshes_total"}),
		RefreshErrors:               prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cso_impact", Name: "refresh_errors_total"}),
		ServiceRunning:              prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "cso_impact", Name: "service_running"}),
		MonitorsTracked:             prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "cso_impact", Name: "monitors_tracked"}),
		MonitorsDischarging:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "cso_impact", Name: "monitors_discharging"}),
		MonitorsRecentlyDischarging: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "cso_impact", Name: "monitors_recently_discharging"}),
		ImpactedNodes:               prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "cso_impact", Name: "impacted_nodes"}),
		SnapshotDuration:            prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "cso_impact", Name: "snapshot_duration_seconds"}),
		HistoryRefreshes:            prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cso_impact", Name: "history_refreshes_total"}),
		HistoryFetchErrors:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cso_impact", Name: "history_fetch_errors_total"}),
		AlertsSent:                  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cso_impact", Name: "alerts_sent_total"}),
		ImpactRecordsPublished:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cso_impact", Name: "impact_records_published_total"}),
		HistoryCache:                prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "cso_impact", Name: "history_cache_total"}, []string{"result"}),
	}
}
