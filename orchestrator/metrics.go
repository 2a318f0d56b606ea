package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the orchestrator's Prometheus instrumentation (SPEC_FULL.md
// DOMAIN STACK: github.com/prometheus/client_golang), grounded on
// _examples/quay-claircore/libvuln/updates/manager.go's sibling metrics
// file pattern of one counter/histogram pair per stage, registered against
// a private registry so cmd/sofa decides whether/where to expose it.
type Metrics struct {
	Registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	runsTotal     prometheus.Counter
}

// NewMetrics builds and registers the orchestrator's metric set.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sofa",
			Subsystem: "orchestrator",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each orchestrator stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sofa",
			Subsystem: "orchestrator",
			Name:      "stage_failures_total",
			Help:      "Count of fatal stage failures, by stage.",
		}, []string{"stage"}),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sofa",
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs started.",
		}),
	}
	reg.MustRegister(m.stageDuration, m.stageFailures, m.runsTotal)
	return m
}

// ObserveStage records one stage's duration and, if err is non-nil, counts
// it as a fatal stage failure.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}
