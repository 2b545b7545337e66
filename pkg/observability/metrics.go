package observability

import (
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors exported by the executor.
type Metrics struct {
	transitions  *prometheus.CounterVec
	stepOutcomes *prometheus.CounterVec
	activeRoutes prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routeflow_process_transitions_total",
				Help: "Process status transitions observed across all routes.",
			},
			[]string{"type", "status"},
		),
		stepOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "routeflow_step_outcomes_total",
				Help: "Steps reaching a terminal execution status.",
			},
			[]string{"status"},
		),
		activeRoutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "routeflow_active_routes",
			Help: "Routes currently registered with the executor.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.transitions, m.stepOutcomes, m.activeRoutes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Observe records the changes from prev to next. prev may be nil for the
// first snapshot of a route.
func (m *Metrics) Observe(prev, next *domain.Route) *domain.RouteDiff {
	diff := domain.Diff(prev, next)
	if diff == nil {
		return nil
	}
	for _, sd := range diff.Steps {
		for _, pc := range sd.Processes {
			m.transitions.WithLabelValues(string(pc.Type), string(pc.Status)).Inc()
		}
		if sd.Status != nil {
			switch *sd.Status {
			case domain.ExecutionDone, domain.ExecutionFailed:
				m.stepOutcomes.WithLabelValues(string(*sd.Status)).Inc()
			}
		}
	}
	return diff
}

// RouteStarted increments the active route gauge.
func (m *Metrics) RouteStarted() {
	m.activeRoutes.Inc()
}

// RouteStopped decrements the active route gauge.
func (m *Metrics) RouteStopped() {
	m.activeRoutes.Dec()
}
