// Package metrics registers the Prometheus instruments for the doctrine
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the doctrine engine.
type Metrics struct {
	ViolationsTotal *prometheus.CounterVec
	DispatchesTotal *prometheus.CounterVec
	RecoveriesTotal *prometheus.CounterVec
	Locked          prometheus.Gauge
}

// New creates and registers the engine metrics on reg. Tests pass a fresh
// registry so suites do not collide on the default one.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ViolationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "doctrine_violations_total",
			Help: "Total contract violations recorded, by tool and enforcement mode",
		}, []string{"tool_id", "mode"}),
		DispatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "doctrine_dispatches_total",
			Help: "Total dispatch attempts, by sink kind and outcome",
		}, []string{"sink_kind", "status"}),
		RecoveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "doctrine_recoveries_total",
			Help: "Total recovery attempts, by outcome",
		}, []string{"outcome"}),
		Locked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "doctrine_locked",
			Help: "Whether the global doctrine lockdown is active (1) or not (0)",
		}),
	}
}
