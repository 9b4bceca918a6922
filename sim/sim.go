// sim/sim.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package sim is the flight state machine and reservation loop: it
// advances every flight each tick, clears landings through a pluggable
// decision authority, assigns runways, gates and slots with the
// scheduler, and moves flights across the taxiway graph to their gates
// without ever letting two of them share a runway slot or a taxiway
// segment.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atcflow/atcflow/log"
	"github.com/atcflow/atcflow/math"
	"github.com/atcflow/atcflow/priority"
	"github.com/atcflow/atcflow/rand"
	"github.com/atcflow/atcflow/sched"
	"github.com/atcflow/atcflow/taxi"
	"github.com/atcflow/atcflow/util"

	"github.com/brunoga/deep"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultLogSize = 200
	minSimRate     = 0.1
	maxSimRate     = 10
)

type Options struct {
	// Rand is the source for all of the engine's random choices; nil
	// selects a randomly seeded one.
	Rand *rand.Rand
	// Authority resolves landing clearance requests; nil selects an
	// AutomaticPolicy with the configured thresholds.
	Authority DecisionAuthority
	// AutoSpawn and AutoSchedule enable periodic random spawns and
	// scheduling passes at the configured intervals.
	AutoSpawn    bool
	AutoSchedule bool
	// MeterProvider receives the engine's metrics; nil disables them.
	MeterProvider metric.MeterProvider
	// LogSize is the number of recent events kept for snapshots.
	LogSize        int
	RouteCacheSize int
}

type resolution struct {
	flight    FlightID
	requestID string
	outcome   Outcome
}

// Sim holds all engine state. Every exported method is safe for
// concurrent use.
type Sim struct {
	mu  util.LoggingMutex
	lg  *log.Logger
	cfg AirportConfig

	now    time.Duration
	rate   float32
	paused bool

	flights      map[FlightID]*Flight
	order        []FlightID
	nextID       int
	runways      map[string]*Runway
	gates        []sched.Gate
	reservations map[taxi.Edge]FlightID
	planner      *taxi.Planner

	authority    DecisionAuthority
	autoSpawn    bool
	autoSchedule bool
	nextSpawn    time.Duration
	nextSchedule time.Duration

	// Rollout scheduling is not retried until schedulerRetryAt after a
	// failure.
	schedulerRetryAt time.Duration

	weatherOverride *float32
	taxiCongestion  float32

	kpis    KPIs
	log     *util.RingBuffer[Event]
	events  *EventStream
	metrics *engineMetrics
	rand    *rand.Rand

	// Decision outcomes are queued here by the resolve callbacks and
	// applied under mu.
	resolveMu sync.Mutex
	resolved  []resolution
	ticking   atomic.Bool
}

// NewSim validates the configuration and returns an engine with no
// flights at time zero.
func NewSim(cfg AirportConfig, opts Options, lg *log.Logger) (*Sim, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	g, err := taxi.NewGraph(cfg.TaxiNodes, cfg.TaxiEdges)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidGraphReference, err)
	}
	m, err := newEngineMetrics(opts.MeterProvider)
	if err != nil {
		return nil, err
	}

	s := &Sim{
		lg:             lg,
		cfg:            deep.MustCopy(cfg),
		rate:           1,
		flights:        make(map[FlightID]*Flight),
		nextID:         2000,
		runways:        make(map[string]*Runway),
		reservations:   make(map[taxi.Edge]FlightID),
		planner:        taxi.NewPlanner(g, opts.RouteCacheSize),
		authority:      opts.Authority,
		autoSpawn:      opts.AutoSpawn,
		autoSchedule:   opts.AutoSchedule,
		nextSpawn:      cfg.AutoSpawnInterval.D(),
		nextSchedule:   cfg.AutoScheduleInterval.D(),
		taxiCongestion: 1,
		kpis:           KPIs{RunwayBusy: make(map[string]time.Duration)},
		log:            util.NewRingBuffer[Event](util.Select(opts.LogSize > 0, opts.LogSize, defaultLogSize)),
		events:         NewEventStream(lg),
		metrics:        m,
		rand:           opts.Rand,
	}
	if s.rand == nil {
		s.rand = rand.Make()
	}
	if s.authority == nil {
		s.authority = AutomaticPolicy{
			GrantThreshold:  cfg.Decision.GrantThreshold,
			DivertThreshold: cfg.Decision.DivertThreshold,
		}
	}
	for _, r := range cfg.Runways {
		s.runways[r.ID] = &Runway{ID: r.ID}
	}
	for _, gc := range cfg.Gates {
		s.gates = append(s.gates, sched.Gate{ID: gc.ID, Size: gc.Size})
	}

	lg.Info("engine initialized", slog.String("airport", cfg.Name),
		slog.Int("runways", len(cfg.Runways)), slog.Int("gates", len(cfg.Gates)),
		slog.Int("taxi_nodes", len(g.Nodes)))
	return s, nil
}

func (s *Sim) Config() AirportConfig {
	return deep.MustCopy(s.cfg)
}

// Subscribe returns a subscription to the engine's event stream.
func (s *Sim) Subscribe() *EventsSubscription {
	return s.events.Subscribe()
}

func (s *Sim) SimTime() time.Duration {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.now
}

// SetSimRate sets the multiplier applied to wall-clock time by Run. It
// is clamped to [0.1, 10] and the value in effect is returned.
func (s *Sim) SetSimRate(r float32) float32 {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	s.rate = math.Clamp(r, minSimRate, maxSimRate)
	return s.rate
}

// TogglePause pauses or resumes Run and returns whether the engine is now
// paused. Tick is not affected.
func (s *Sim) TogglePause() bool {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	s.paused = !s.paused
	s.lg.Info("pause toggled", slog.Bool("paused", s.paused))
	return s.paused
}

// Spawn adds a flight on approach to its runway. It fails with an error
// wrapping ErrCapacityExceeded if the population limits are reached.
func (s *Sim) Spawn(spec FlightSpec) (FlightID, error) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.spawn(spec)
}

// Tick advances the simulation by dt.
func (s *Sim) Tick(dt time.Duration) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	s.tick(dt)
}

// Run ticks the engine every period of wall-clock time, scaled by the sim
// rate, until ctx is canceled. Ticks are skipped while paused. A panic
// during a tick is logged and the loop carries on.
func (s *Sim) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runTick(period)
		}
	}
}

func (s *Sim) runTick(period time.Duration) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	defer s.lg.CatchAndReportCrash()

	if !s.paused {
		s.tick(time.Duration(float64(period) * float64(s.rate)))
	}
}

// RunScheduler assigns a runway, gate and slot to every flight that is
// still in play and has no assignment yet, consistent with the existing
// assignments. The new assignments are returned.
func (s *Sim) RunScheduler() (map[FlightID]sched.Assignment, error) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return s.runScheduler()
}

// PlanRoute finds a taxi route avoiding the blocked nodes.
func (s *Sim) PlanRoute(start, goal taxi.NodeID, blocked []taxi.NodeID) ([]taxi.NodeID, error) {
	var bl map[taxi.NodeID]struct{}
	if len(blocked) > 0 {
		bl = make(map[taxi.NodeID]struct{}, len(blocked))
		for _, n := range blocked {
			bl[n] = struct{}{}
		}
	}
	// The planner and graph are immutable, so no lock is needed.
	return s.planner.Route(start, goal, bl)
}

// ResolveDecision applies an outcome to the flight's pending landing
// clearance request.
func (s *Sim) ResolveDecision(id FlightID, o Outcome) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	f, ok := s.flights[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownFlight)
	}
	if f.State != Requesting || f.PendingRequest == "" {
		return fmt.Errorf("%s: %w", id, ErrNoPendingDecision)
	}
	s.cancelPending(f)
	s.applyOutcome(f, o)
	return nil
}

// DivertFlight sends an airborne flight that has not been cleared to
// land away from the airport.
func (s *Sim) DivertFlight(id FlightID) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	f, ok := s.flights[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownFlight)
	}
	switch f.State {
	case Approaching, Holding, Requesting:
		s.cancelPending(f)
		s.divert(f)
		return nil
	default:
		return fmt.Errorf("%s is %s: %w", id, f.State, ErrInvalidState)
	}
}

// CloseRunway keeps the runway from being granted for the next d of
// simulation time. It never shortens an existing reservation.
func (s *Sim) CloseRunway(id string, d time.Duration) error {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	r, ok := s.runways[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownRunway)
	}
	r.extend(s.now + d)
	s.lg.Info("runway closed", slog.Any("runway", r))
	return nil
}

// SetWeather raises the weather severity seen by every flight to at
// least severity until ClearWeather is called, and updates priorities.
func (s *Sim) SetWeather(severity float32) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	sev := math.Clamp(severity, 0, 1)
	s.weatherOverride = &sev
	for _, f := range s.flights {
		s.updateWeather(f)
	}
}

func (s *Sim) ClearWeather() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	s.weatherOverride = nil
	for _, f := range s.flights {
		s.updateWeather(f)
	}
}

func (s *Sim) updateWeather(f *Flight) {
	f.WeatherSeverity = f.ReportedWeather
	if s.weatherOverride != nil {
		f.WeatherSeverity = max(f.WeatherSeverity, *s.weatherOverride)
	}
	f.Priority = priority.Score(f.FuelPct, f.WeatherSeverity, f.Emergency)
}

// SetTaxiCongestion divides taxi speeds by factor; 1 restores normal
// operations.
func (s *Sim) SetTaxiCongestion(factor float32) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	s.taxiCongestion = max(factor, 1)
}

///////////////////////////////////////////////////////////////////////////
// Snapshots

type Reservation struct {
	Edge   taxi.Edge
	Flight FlightID
}

// Snapshot is a copy of the engine state; it shares nothing with the
// engine.
type Snapshot struct {
	Time    time.Duration
	SimRate float32
	Paused  bool
	// Flights are in spawn order.
	Flights      []Flight
	Runways      []Runway
	Gates        []sched.Gate
	Reservations []Reservation
	KPIs         KPIs
	// Log holds the most recent events, oldest first.
	Log []Event
}

func (s Snapshot) Flight(id FlightID) (Flight, bool) {
	idx := slices.IndexFunc(s.Flights, func(f Flight) bool { return f.ID == id })
	if idx == -1 {
		return Flight{}, false
	}
	return s.Flights[idx], true
}

func (s *Sim) Snapshot() Snapshot {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	snap := Snapshot{
		Time:    s.now,
		SimRate: s.rate,
		Paused:  s.paused,
		Gates:   s.gates,
		KPIs:    s.kpis,
		Log:     s.log.Items(),
	}
	for _, id := range s.order {
		snap.Flights = append(snap.Flights, *s.flights[id])
	}
	for _, rc := range s.cfg.Runways {
		snap.Runways = append(snap.Runways, *s.runways[rc.ID])
	}
	for e, id := range s.reservations {
		snap.Reservations = append(snap.Reservations, Reservation{Edge: e, Flight: id})
	}
	slices.SortFunc(snap.Reservations, func(a, b Reservation) int { return a.Edge.Compare(b.Edge) })
	return deep.MustCopy(snap)
}

// FlightCount returns the number of flights that have not yet completed
// or left the world.
func (s *Sim) FlightCount() int {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return len(s.flights)
}

func (s *Sim) KPIs() KPIs {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)
	return deep.MustCopy(s.kpis)
}

///////////////////////////////////////////////////////////////////////////
// Internals; all expect s.mu to be held.

func (s *Sim) post(e Event) {
	e.Time = s.now
	s.log.Add(e)
	s.events.Post(e)
}

func (s *Sim) setState(f *Flight, to FlightState) {
	if f.State == to {
		return
	}
	s.lg.Debug("state change", slog.String("flight", string(f.ID)),
		slog.String("from", f.State.String()), slog.String("to", to.String()))
	s.post(Event{Type: StateChangeEvent, Flight: f.ID, From: f.State, To: to})
	f.State = to
}

// airborneCount returns the number of flights counted against the active
// flight limit.
func (s *Sim) airborneCount() int {
	n := 0
	for _, f := range s.flights {
		if f.State.Airborne() {
			n++
		}
	}
	return n
}

func (s *Sim) rejectSpawn(err error) (FlightID, error) {
	s.kpis.RejectedSpawns++
	s.metrics.inc(s.metrics.rejected)
	s.post(Event{Type: SpawnRejectedEvent, Message: err.Error()})
	s.lg.Info("spawn rejected", slog.Any("error", err))
	return "", err
}

func (s *Sim) spawn(spec FlightSpec) (FlightID, error) {
	if n := len(s.flights); n >= s.cfg.MaxFlights {
		return s.rejectSpawn(fmt.Errorf("%d flights: %w", n, ErrCapacityExceeded))
	}
	if n := s.airborneCount(); n >= s.cfg.MaxActiveFlights {
		return s.rejectSpawn(fmt.Errorf("%d airborne flights: %w", n, ErrActiveCapacityExceeded))
	}

	rwy := spec.PreferredRunway
	if rwy == "" {
		rwy = s.cfg.Runways[s.rand.Intn(len(s.cfg.Runways))].ID
	} else if _, ok := s.runways[rwy]; !ok {
		return "", fmt.Errorf("%s: %w", rwy, ErrUnknownRunway)
	}

	id := spec.ID
	if id == "" {
		for {
			id = FlightID(fmt.Sprintf("F%d", s.nextID))
			s.nextID++
			if _, ok := s.flights[id]; !ok {
				break
			}
		}
	} else if _, ok := s.flights[id]; ok {
		return "", fmt.Errorf("%s: %w", id, ErrDuplicateFlight)
	}

	typ := spec.Type
	if typ == "" && len(s.cfg.AircraftTypes) > 0 {
		typ = rand.SampleSlice(s.rand, s.cfg.AircraftTypes)
	}
	edge := spec.Edge
	if edge == EdgeAny {
		edge = rand.SampleSlice(s.rand, allEdges)
	}
	slot := spec.RequestedSlot
	if slot <= 0 {
		slot = 1 + s.rand.Intn(5)
	}

	f := &Flight{
		ID:              id,
		Type:            typ,
		Size:            s.cfg.SizeOf(typ),
		FuelPct:         math.Clamp(spec.FuelPct, 0, 100),
		ReportedWeather: math.Clamp(spec.WeatherSeverity, 0, 1),
		Emergency:       spec.Emergency,
		State:           Spawning,
		TargetRunway:    rwy,
		EntryEdge:       edge,
		RequestedSlot:   slot,
		SpawnTime:       s.now,
	}
	s.updateWeather(f)

	rc, _ := s.cfg.Runway(rwy)
	f.ApproachPath = s.approachPath(rc, edge)
	f.Position = f.ApproachPath[0]

	s.flights[id] = f
	s.order = append(s.order, id)
	s.kpis.Spawned++
	s.metrics.inc(s.metrics.spawned)
	s.post(Event{Type: SpawnEvent, Flight: id, Runway: rwy})
	s.lg.Info("spawned", slog.Any("flight", f))

	s.setState(f, Approaching)
	return id, nil
}

// approachPath returns a smoothed curve from a random point beyond the
// given world edge, past the runway's funnel point, to its threshold.
func (s *Sim) approachPath(rc RunwayConfig, edge Edge) []math.Point2f {
	m := s.cfg.Motion
	b := s.cfg.Bounds
	jitter := func() float32 { return s.rand.Uniform(-m.SpawnJitter, m.SpawnJitter) }
	inset := min(80, b.Width()/4, b.Height()/4)
	along := func(lo, hi float32) float32 { return s.rand.Uniform(lo+inset, hi-inset) }

	var start math.Point2f
	switch edge {
	case EdgeLeft:
		start = math.Point2f{b.P0[0] - m.SpawnMargin + jitter(), along(b.P0[1], b.P1[1])}
	case EdgeRight:
		start = math.Point2f{b.P1[0] + m.SpawnMargin + jitter(), along(b.P0[1], b.P1[1])}
	case EdgeTop:
		start = math.Point2f{along(b.P0[0], b.P1[0]), b.P0[1] - m.SpawnMargin + jitter()}
	default:
		start = math.Point2f{along(b.P0[0], b.P1[0]), b.P1[1] + m.SpawnMargin + jitter()}
	}

	mid := math.Add2f(rc.FunnelMid, math.Point2f{s.rand.Uniform(-80, 80), s.rand.Uniform(-30, 30)})
	path := math.QuadBezier(start, mid, rc.Threshold, m.ApproachSteps)
	return math.ChaikinSmooth(path, m.ApproachSmoothing)
}

func (s *Sim) tick(dt time.Duration) {
	s.ticking.Store(true)
	defer s.ticking.Store(false)

	s.drainResolutions()
	s.now += dt

	if s.autoSpawn && s.now >= s.nextSpawn {
		s.nextSpawn = s.now + s.cfg.AutoSpawnInterval.D()
		_, _ = s.spawn(RandomFlightSpec(s.rand, 0))
	}
	if s.autoSchedule && s.now >= s.nextSchedule {
		s.nextSchedule = s.now + s.cfg.AutoScheduleInterval.D()
		_, _ = s.runScheduler()
	}

	ts := s.startTick()
	for _, id := range slices.Clone(s.order) {
		if f, ok := s.flights[id]; ok {
			s.updateFlight(f, dt, ts)
		}
	}
	s.drainResolutions()
	s.removeTerminal()
}

func (s *Sim) removeTerminal() {
	s.order = slices.DeleteFunc(s.order, func(id FlightID) bool {
		f := s.flights[id]
		if !f.State.Terminal() {
			return false
		}
		s.releaseReservations(id)
		s.cancelPending(f)
		delete(s.flights, id)
		s.post(Event{Type: RemovedEvent, Flight: id, Message: f.State.String()})
		return true
	})
}

func (s *Sim) releaseReservations(id FlightID) {
	for e, holder := range s.reservations {
		if holder == id {
			delete(s.reservations, e)
		}
	}
}

///////////////////////////////////////////////////////////////////////////
// Decisions

func (s *Sim) requestDecision(f *Flight) {
	req := DecisionRequest{
		RequestID:       newRequestID(),
		Flight:          f.ID,
		Runway:          f.TargetRunway,
		Priority:        f.Priority,
		FuelPct:         f.FuelPct,
		WeatherSeverity: f.WeatherSeverity,
		Emergency:       f.Emergency,
		Time:            s.now,
	}
	f.PendingRequest = req.RequestID
	s.setState(f, Requesting)
	s.post(Event{Type: DecisionRequestEvent, Flight: f.ID, Runway: f.TargetRunway, RequestID: req.RequestID})
	s.lg.Debug("requesting landing clearance", slog.Any("request", req))

	s.authority.RequestDecision(req, s.resolver(f.ID, req.RequestID))
	s.drainResolutions()
}

// resolver returns the callback handed to the decision authority for a
// request. Outcomes are queued; if no tick is running, the queue is
// drained here under the engine lock.
func (s *Sim) resolver(id FlightID, requestID string) func(Outcome) {
	var once sync.Once
	return func(o Outcome) {
		once.Do(func() {
			s.resolveMu.Lock()
			s.resolved = append(s.resolved, resolution{flight: id, requestID: requestID, outcome: o})
			s.resolveMu.Unlock()

			if !s.ticking.Load() {
				s.mu.Lock(s.lg)
				s.drainResolutions()
				s.mu.Unlock(s.lg)
			}
		})
	}
}

func (s *Sim) drainResolutions() {
	s.resolveMu.Lock()
	pending := s.resolved
	s.resolved = nil
	s.resolveMu.Unlock()

	for _, r := range pending {
		f, ok := s.flights[r.flight]
		if !ok || f.State != Requesting || f.PendingRequest != r.requestID {
			s.lg.Info("ignoring stale decision", slog.String("flight", string(r.flight)),
				slog.String("request_id", r.requestID), slog.String("outcome", r.outcome.String()))
			s.post(Event{Type: DecisionIgnoredEvent, Flight: r.flight, RequestID: r.requestID,
				Outcome: r.outcome})
			continue
		}
		f.PendingRequest = ""
		s.applyOutcome(f, r.outcome)
	}
}

// cancelPending forgets the flight's outstanding request, if any.
func (s *Sim) cancelPending(f *Flight) {
	if f.PendingRequest == "" {
		return
	}
	if c, ok := s.authority.(decisionCanceler); ok {
		c.CancelDecision(f.PendingRequest)
	}
	f.PendingRequest = ""
}

func (s *Sim) applyOutcome(f *Flight, o Outcome) {
	switch o {
	case Grant:
		rwy := s.runways[f.TargetRunway]
		if rwy.BusyUntil > s.now {
			// Another flight was cleared onto the runway first.
			s.lg.Info("runway busy, holding", slog.Any("flight", f), slog.Any("runway", rwy))
			s.hold(f)
			return
		}
		until := s.now + s.cfg.RunwaySeparation.D()
		s.kpis.RunwayBusy[rwy.ID] += until - max(rwy.BusyUntil, s.now)
		rwy.extend(until)
		rwy.Landings++

		wait := s.now - f.SpawnTime
		f.Granted, f.GrantTime = true, s.now
		s.kpis.Landings++
		s.kpis.TotalWait += wait
		s.kpis.MaxWait = max(s.kpis.MaxWait, wait)
		if f.Emergency {
			s.kpis.EmergenciesHandled++
		}
		s.metrics.granted(rwy.ID, wait)
		s.lg.Info("landing cleared", slog.Any("flight", f), slog.Any("runway", rwy))
		s.setState(f, Landing)

	case Divert:
		s.divert(f)

	default:
		s.hold(f)
	}
}

func (s *Sim) hold(f *Flight) {
	s.kpis.Holds++
	s.metrics.decision(Hold)
	s.enterHold(f, false)
}

func (s *Sim) divert(f *Flight) {
	s.kpis.Diversions++
	s.metrics.decision(Divert)
	s.lg.Info("diverted", slog.Any("flight", f))
	s.setState(f, Diverted)
}
