// Package telemetry exposes Prometheus counters and gauges for the pool
// size, scaling decisions, and disk-threshold refusals. Scraping and
// alerting on these metrics is an out-of-scope external collaborator;
// this package only registers and updates them.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the orchestrator's Prometheus instruments.
type Metrics struct {
	PoolSize        *prometheus.GaugeVec
	ScaleEventsUp   prometheus.Counter
	ScaleEventsDown prometheus.Counter
	DiskRefusals    prometheus.Counter
}

// New constructs and registers the orchestrator's metrics against reg.
// Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to expose via promhttp's default handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PoolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "runner_orchestrator",
			Name:      "pool_runners",
			Help:      "Current runner count by occupancy state.",
		}, []string{"state"}),
		ScaleEventsUp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runner_orchestrator",
			Name:      "scale_up_total",
			Help:      "Number of scale-up decisions applied.",
		}),
		ScaleEventsDown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runner_orchestrator",
			Name:      "scale_down_total",
			Help:      "Number of scale-down decisions applied.",
		}),
		DiskRefusals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "runner_orchestrator",
			Name:      "disk_threshold_refusals_total",
			Help:      "Number of runner additions refused for insufficient disk space.",
		}),
	}

	reg.MustRegister(m.PoolSize, m.ScaleEventsUp, m.ScaleEventsDown, m.DiskRefusals)
	return m
}

// ObservePool updates the pool-size gauges from a (total, idle, busy)
// snapshot.
func (m *Metrics) ObservePool(total, idle, busy int) {
	m.PoolSize.WithLabelValues("total").Set(float64(total))
	m.PoolSize.WithLabelValues("idle").Set(float64(idle))
	m.PoolSize.WithLabelValues("busy").Set(float64(busy))
}
