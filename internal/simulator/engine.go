package simulator

import (
	"math/rand"
	"sync"
	"time"

	"microgrid_simulator/internal/generator"
	"microgrid_simulator/internal/logger"
	"microgrid_simulator/internal/model"
)

const (
	carbonKgPerKWh = 0.5
	minEfficiency  = 82.0
	maxEfficiency  = 88.0
)

// State represents the current simulation clock.
type State struct {
	Hour    int  `json:"hour"`
	Running bool `json:"running"`
}

// HourOfDay returns the clock's time of day.
func (s State) HourOfDay() int {
	return generator.HourOfDay(s.Hour)
}

// Tick is emitted once per simulated hour.
type Tick struct {
	Hour     int
	Snapshot model.Snapshot
	Record   model.HistoryRecord
	Rules    []string // rules that fired, in evaluation order
}

// Summary holds running totals since the last reset. Every tick is one hour,
// so kW readings accumulate directly as kWh.
type Summary struct {
	Ticks      int     `json:"ticks"`
	SolarKWh   float64 `json:"solar_kwh"`
	WindKWh    float64 `json:"wind_kwh"`
	DemandKWh  float64 `json:"demand_kwh"`
	SurplusKWh float64 `json:"surplus_kwh"`
	DeficitKWh float64 `json:"deficit_kwh"`

	ChargeHours    int `json:"charge_hours"`
	DischargeHours int `json:"discharge_hours"`
	ImportHours    int `json:"import_hours"`
	ExportHours    int `json:"export_hours"`
	FastEVHours    int `json:"fast_ev_hours"`
	SlowEVHours    int `json:"slow_ev_hours"`

	CarbonSavedKg        float64     `json:"carbon_saved_kg"`
	BatteryThroughputPct float64     `json:"battery_throughput_pct"`
	BatteryCycles        float64     `json:"battery_cycles"`
	TimeAtLevelHours     map[int]int `json:"time_at_level_hours"`
}

// Callback receives simulation events. Calls for one tick happen after the
// tick's state has been committed and before the next tick starts.
type Callback interface {
	OnState(state State)
	OnTick(tick Tick)
	OnSummary(summary Summary)
	OnReset(state State, snapshot model.Snapshot)
}

// TickerFunc starts a periodic driver and returns its channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

// SystemTicker drives the engine from a time.Ticker.
func SystemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Config configures an Engine. Zero fields fall back to DefaultConfig values.
type Config struct {
	TickInterval time.Duration
	Profile      generator.Profile
	Battery      BatteryConfig
	Oscillator   generator.Oscillator
	Rand         generator.Rand
	Ticker       TickerFunc
	Logger       logger.Logger
}

func DefaultConfig() Config {
	return Config{
		TickInterval: time.Second,
		Profile:      generator.DefaultProfile(),
		Battery:      DefaultBatteryConfig(),
		Oscillator:   generator.SimulatedOscillator(generator.DefaultRadPerHour),
		Ticker:       SystemTicker,
		Logger:       logger.NopLogger{},
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.Profile == (generator.Profile{}) {
		c.Profile = d.Profile
	}
	if c.Battery == (BatteryConfig{}) {
		c.Battery = d.Battery
	}
	if c.Oscillator == nil {
		c.Oscillator = d.Oscillator
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Ticker == nil {
		c.Ticker = d.Ticker
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}

// Engine is one simulation session. It owns the clock, the current snapshot
// and the history buffer; readers only ever get copies.
type Engine struct {
	// tickMu serializes a tick together with its callbacks against Reset and
	// other ticks. mu guards the fields below.
	tickMu sync.Mutex
	mu     sync.Mutex

	cfg      Config
	callback Callback
	log      logger.Logger
	battery  *Battery

	hour     int
	running  bool
	snapshot model.Snapshot
	history  *History
	summary  Summary

	stopCh chan struct{}
}

func New(cfg Config, cb Callback) *Engine {
	cfg = cfg.withDefaults()
	if cb == nil {
		cb = NopCallback{}
	}
	return &Engine{
		cfg:      cfg,
		callback: cb,
		log:      cfg.Logger,
		battery:  NewBattery(cfg.Battery),
		snapshot: model.InitialSnapshot(),
		history:  NewHistory(HistoryCapacity),
	}
}

// State returns the current clock state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Hour: e.hour, Running: e.running}
}

// IsRunning reports whether the periodic driver is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Snapshot returns a copy of the current status.
func (e *Engine) Snapshot() model.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSnapshot(e.snapshot)
}

// History returns the retained records, oldest first.
func (e *Engine) History() []model.HistoryRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Records()
}

// Summary returns running totals since the last reset.
func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summaryLocked()
}

// Stats returns statistics over the history window.
func (e *Engine) Stats() Stats {
	return WindowStats(e.History())
}

// Start begins ticking. No-op when already running.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	stop := make(chan struct{})
	e.stopCh = stop
	hour := e.hour
	e.mu.Unlock()

	e.log.Infof("simulation started at hour %d", hour)
	e.broadcastState()
	go e.loop(stop)
}

// Pause stops ticking. No-op when already stopped. A tick already in
// progress completes.
func (e *Engine) Pause() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	hour := e.hour
	e.mu.Unlock()

	e.log.Infof("simulation paused at hour %d", hour)
	e.broadcastState()
}

// Reset stops ticking and restores the clock, snapshot, history and totals
// to their initial values as one unit.
func (e *Engine) Reset() {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	e.mu.Lock()
	if e.running {
		e.running = false
		close(e.stopCh)
	}
	e.hour = 0
	e.snapshot = model.InitialSnapshot()
	e.history.Reset()
	e.battery.Reset()
	e.summary = Summary{}
	state := State{Hour: e.hour, Running: e.running}
	snap := cloneSnapshot(e.snapshot)
	summary := e.summaryLocked()
	e.mu.Unlock()

	e.log.Infof("simulation reset")
	e.callback.OnReset(state, snap)
	e.callback.OnState(state)
	e.callback.OnSummary(summary)
}

// Step advances the simulation by one hour regardless of the running state
// and returns the new snapshot. Useful for deterministic testing.
func (e *Engine) Step() model.Snapshot {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.advance().Snapshot
}

// StepN advances the simulation by n hours as one batch: a concurrent Reset
// lands either before the first step or after the last.
func (e *Engine) StepN(n int) model.Snapshot {
	if n <= 0 {
		return e.Snapshot()
	}
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	var snap model.Snapshot
	for i := 0; i < n; i++ {
		snap = e.advance().Snapshot
	}
	return snap
}

// Evaluate runs the decision rules on externally supplied readings without
// touching session state.
func (e *Engine) Evaluate(in Inputs) (model.Decision, error) {
	if err := in.Validate(); err != nil {
		return model.Decision{}, err
	}
	return Decide(in), nil
}

func (e *Engine) loop(stop <-chan struct{}) {
	ticks, cancel := e.cfg.Ticker(e.cfg.TickInterval)
	defer cancel()

	for {
		select {
		case <-stop:
			return
		case <-ticks:
			e.tickUnlessStopped(stop)
		}
	}
}

func (e *Engine) tickUnlessStopped(stop <-chan struct{}) {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	select {
	case <-stop:
		return
	default:
	}
	e.advance()
}

// advance runs one tick. Must be called with tickMu held.
func (e *Engine) advance() Tick {
	e.mu.Lock()
	t := e.computeTick()
	state := State{Hour: e.hour, Running: e.running}
	summary := e.summaryLocked()
	e.mu.Unlock()

	e.log.Debugw("tick", map[string]any{
		"hour":           t.Hour,
		"battery_action": t.Snapshot.Decision.BatteryAction,
		"grid_action":    t.Snapshot.Decision.GridAction,
		"ev_rate":        t.Snapshot.Decision.EVChargingRate,
		"battery_level":  t.Snapshot.BatteryLevel,
		"rules":          t.Rules,
	})

	e.callback.OnTick(t)
	e.callback.OnState(state)
	e.callback.OnSummary(summary)
	return t
}

// computeTick generates readings, decides, updates the battery and commits
// the new snapshot and history record. Must be called with mu held.
func (e *Engine) computeTick() Tick {
	p := e.cfg.Profile
	r := e.cfg.Rand
	hour := e.hour
	hod := generator.HourOfDay(hour)

	solar := generator.Solar(p, hod, r)
	wind := generator.Wind(p, e.cfg.Oscillator, hour, r)
	demand := generator.EVDemand(p, hod, r)

	in := Inputs{Solar: solar, Wind: wind, Demand: demand, BatteryLevel: e.snapshot.BatteryLevel}
	decision, fired := Trace(in)
	surplus := in.Surplus()
	level := e.battery.Step(decision.BatteryAction, surplus, in.BatteryLevel)

	efficiency := generator.Uniform(r, minEfficiency, maxEfficiency)
	carbon := e.snapshot.CarbonSaved + (solar+wind)*carbonKgPerKWh/24

	snap := model.Snapshot{
		Solar:           solar,
		Wind:            wind,
		EVDemand:        demand,
		BatteryLevel:    level,
		GridStatus:      model.GridStatusFor(decision.GridAction),
		TotalGeneration: solar + wind,
		TotalDemand:     demand,
		Efficiency:      efficiency,
		CarbonSaved:     carbon,
		Decision:        &decision,
	}
	rec := model.HistoryRecord{
		Tick:       hour,
		Hour:       hod,
		Solar:      Round1(solar),
		Wind:       Round1(wind),
		Demand:     Round1(demand),
		Battery:    RoundInt(level),
		Surplus:    Round1(surplus),
		Efficiency: RoundInt(efficiency),
	}

	e.snapshot = snap
	e.history.Append(rec)
	e.recordSummary(snap, surplus)
	e.hour++

	return Tick{Hour: hour, Snapshot: cloneSnapshot(snap), Record: rec, Rules: fired}
}

// recordSummary folds one tick into the totals. Must be called with mu held.
func (e *Engine) recordSummary(s model.Snapshot, surplus float64) {
	sum := &e.summary
	sum.Ticks++
	sum.SolarKWh += s.Solar
	sum.WindKWh += s.Wind
	sum.DemandKWh += s.EVDemand
	if surplus > 0 {
		sum.SurplusKWh += surplus
	} else {
		sum.DeficitKWh += -surplus
	}
	switch s.Decision.BatteryAction {
	case model.BatteryCharge:
		sum.ChargeHours++
	case model.BatteryDischarge:
		sum.DischargeHours++
	}
	switch s.Decision.GridAction {
	case model.GridBuy:
		sum.ImportHours++
	case model.GridSell:
		sum.ExportHours++
	}
	switch s.Decision.EVChargingRate {
	case model.EVFast:
		sum.FastEVHours++
	case model.EVSlow:
		sum.SlowEVHours++
	}
	sum.CarbonSavedKg = s.CarbonSaved
}

// summaryLocked returns a copy of the totals. Must be called with mu held.
func (e *Engine) summaryLocked() Summary {
	s := e.summary
	s.BatteryThroughputPct = e.battery.ThroughputPct
	s.BatteryCycles = e.battery.Cycles()
	s.TimeAtLevelHours = make(map[int]int, len(e.battery.TimeAtLevelHours))
	for k, v := range e.battery.TimeAtLevelHours {
		s.TimeAtLevelHours[k] = v
	}
	return s
}

func (e *Engine) broadcastState() {
	e.callback.OnState(e.State())
}

func cloneSnapshot(s model.Snapshot) model.Snapshot {
	if s.Decision != nil {
		d := *s.Decision
		s.Decision = &d
	}
	return s
}
