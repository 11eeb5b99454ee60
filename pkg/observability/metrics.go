// Package observability exposes Prometheus instrumentation as lifecycle
// hooks, so the engine core stays free of metrics plumbing.
package observability

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pergolab/pergola/pkg/domain"
)

// Metrics holds the collectors fed by the lifecycle hooks.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	nodeDuration  *prometheus.HistogramVec
	itemOutcomes  *prometheus.CounterVec
	activeItems   prometheus.Gauge
	registerOnce  sync.Once
	registerError error
}

// NewMetrics creates the collector set. Call Register before serving.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pergola",
			Name:      "runs_total",
			Help:      "Completed runs partitioned by outcome.",
		}, []string{"graph", "outcome"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pergola",
			Name:      "node_duration_seconds",
			Help:      "Wall time spent per node execution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"graph", "node"}),
		itemOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pergola",
			Name:      "item_outcomes_total",
			Help:      "Batch item outcomes partitioned by status.",
		}, []string{"graph", "status"}),
		activeItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pergola",
			Name:      "active_items",
			Help:      "Batch items currently executing.",
		}),
	}
}

// Register registers all collectors with the given registerer. It is safe to
// call more than once; only the first call takes effect.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	m.registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{m.runsTotal, m.nodeDuration, m.itemOutcomes, m.activeItems} {
			if err := reg.Register(c); err != nil {
				m.registerError = err
				return
			}
		}
	})
	return m.registerError
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks(graphName string) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRunEnd: func(_ context.Context, ev *domain.RunEvent) {
			outcome := "completed"
			switch {
			case ev.Err != "":
				outcome = "aborted"
			case ev.Report != nil && !ev.Report.Completed():
				outcome = "degraded"
			}
			m.runsTotal.WithLabelValues(graphName, outcome).Inc()
		},
		OnNodeLeave: func(_ context.Context, ev *domain.NodeEvent) {
			m.nodeDuration.WithLabelValues(graphName, ev.NodeID).Observe(ev.Duration.Seconds())
		},
		OnItemStart: func(_ context.Context, _ *domain.ItemEvent) {
			m.activeItems.Inc()
		},
		OnItemEnd: func(_ context.Context, ev *domain.ItemEvent) {
			m.activeItems.Dec()
			status := string(domain.StatusFailed)
			if ev.Outcome != nil {
				status = string(ev.Outcome.Status)
			}
			m.itemOutcomes.WithLabelValues(graphName, status).Inc()
		},
	}
}
