// Package metrics exports simulation state as Prometheus metrics.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"microgrid_simulator/internal/model"
	"microgrid_simulator/internal/simulator"
)

// Collector holds the metric vectors shared by every session.
type Collector struct {
	ticks      *prometheus.CounterVec
	resets     *prometheus.CounterVec
	decisions  *prometheus.CounterVec
	running    *prometheus.GaugeVec
	hour       *prometheus.GaugeVec
	battery    *prometheus.GaugeVec
	generation *prometheus.GaugeVec
	demand     *prometheus.GaugeVec
	carbon     *prometheus.GaugeVec
	efficiency *prometheus.GaugeVec
}

// NewCollector registers the simulation metrics on reg. If reg is nil, the
// default registerer is used. Collectors that are already registered are
// reused.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microgrid_ticks_total",
			Help: "Total number of simulated hours",
		}, []string{"session"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microgrid_resets_total",
			Help: "Total number of session resets",
		}, []string{"session"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microgrid_decisions_total",
			Help: "Decisions taken by the rule engine",
		}, []string{"session", "battery_action", "grid_action", "ev_rate"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_running",
			Help: "1 while the session clock is running",
		}, []string{"session"}),
		hour: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_hour",
			Help: "Simulated hours since the last reset",
		}, []string{"session"}),
		battery: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_battery_level_percent",
			Help: "Battery state of charge",
		}, []string{"session"}),
		generation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_generation_kw",
			Help: "Renewable generation by source",
		}, []string{"session", "source"}),
		demand: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_demand_kw",
			Help: "EV charging demand",
		}, []string{"session"}),
		carbon: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_carbon_saved_kg",
			Help: "Cumulative carbon saved since the last reset",
		}, []string{"session"}),
		efficiency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microgrid_efficiency_percent",
			Help: "Reported system efficiency",
		}, []string{"session"}),
	}

	var err error
	if c.ticks, err = register(reg, c.ticks); err != nil {
		return nil, err
	}
	if c.resets, err = register(reg, c.resets); err != nil {
		return nil, err
	}
	if c.decisions, err = register(reg, c.decisions); err != nil {
		return nil, err
	}
	for _, g := range []**prometheus.GaugeVec{&c.running, &c.hour, &c.battery, &c.generation, &c.demand, &c.carbon, &c.efficiency} {
		if *g, err = register(reg, *g); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, err
	}
	return col, nil
}

// ForSession returns a callback recording one session's events.
func (c *Collector) ForSession(id string) simulator.Callback {
	return &sessionRecorder{c: c, session: id}
}

// Forget drops every series of a deleted session.
func (c *Collector) Forget(id string) {
	labels := prometheus.Labels{"session": id}
	c.ticks.DeletePartialMatch(labels)
	c.resets.DeletePartialMatch(labels)
	c.decisions.DeletePartialMatch(labels)
	c.running.DeletePartialMatch(labels)
	c.hour.DeletePartialMatch(labels)
	c.battery.DeletePartialMatch(labels)
	c.generation.DeletePartialMatch(labels)
	c.demand.DeletePartialMatch(labels)
	c.carbon.DeletePartialMatch(labels)
	c.efficiency.DeletePartialMatch(labels)
}

type sessionRecorder struct {
	c       *Collector
	session string
}

func (r *sessionRecorder) OnState(s simulator.State) {
	running := 0.0
	if s.Running {
		running = 1
	}
	r.c.running.WithLabelValues(r.session).Set(running)
	r.c.hour.WithLabelValues(r.session).Set(float64(s.Hour))
}

func (r *sessionRecorder) OnTick(t simulator.Tick) {
	r.c.ticks.WithLabelValues(r.session).Inc()
	r.recordSnapshot(t.Snapshot)
	if d := t.Snapshot.Decision; d != nil {
		r.c.decisions.WithLabelValues(r.session, string(d.BatteryAction), string(d.GridAction), string(d.EVChargingRate)).Inc()
	}
}

func (r *sessionRecorder) OnSummary(simulator.Summary) {}

func (r *sessionRecorder) OnReset(_ simulator.State, snap model.Snapshot) {
	r.c.resets.WithLabelValues(r.session).Inc()
	r.recordSnapshot(snap)
}

func (r *sessionRecorder) recordSnapshot(s model.Snapshot) {
	r.c.battery.WithLabelValues(r.session).Set(s.BatteryLevel)
	r.c.generation.WithLabelValues(r.session, "solar").Set(s.Solar)
	r.c.generation.WithLabelValues(r.session, "wind").Set(s.Wind)
	r.c.demand.WithLabelValues(r.session).Set(s.EVDemand)
	r.c.carbon.WithLabelValues(r.session).Set(s.CarbonSaved)
	r.c.efficiency.WithLabelValues(r.session).Set(s.Efficiency)
}
