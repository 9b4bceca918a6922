// sim/update.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"time"

	"github.com/atcflow/atcflow/math"
	"github.com/atcflow/atcflow/sched"
	"github.com/atcflow/atcflow/taxi"

	"github.com/google/uuid"
)

func newRequestID() string {
	return uuid.NewString()
}

type positionedFlight struct {
	id  FlightID
	pos math.Point2f
}

// tickState is the engine state as of the start of a tick; separation
// and runway checks read it so that the order in which flights are
// updated doesn't matter.
type tickState struct {
	airborne []positionedFlight
	busy     map[string]bool
}

func (s *Sim) startTick() tickState {
	ts := tickState{busy: make(map[string]bool, len(s.runways))}
	for _, id := range s.order {
		if f := s.flights[id]; f.State.Airborne() {
			ts.airborne = append(ts.airborne, positionedFlight{id: f.ID, pos: f.Position})
		}
	}
	for id, r := range s.runways {
		ts.busy[id] = r.BusyUntil > s.now
	}
	return ts
}

func (s *Sim) updateFlight(f *Flight, dt time.Duration, ts tickState) {
	secs := float32(dt.Seconds())

	switch f.State {
	case Approaching:
		s.updateApproach(f, secs, ts)

	case Holding:
		m := s.cfg.Motion
		f.HoldAngle = math.Mod(f.HoldAngle+m.HoldRate*secs, 360)
		f.Position = math.PointOnCircle(f.HoldCenter, m.HoldRadius, f.HoldAngle)
		if s.rand.Float32() < m.HoldRetryProbability && !ts.busy[f.TargetRunway] {
			s.requestDecision(f)
		}

	case Requesting:
		if ts.busy[f.TargetRunway] {
			s.cancelPending(f)
			s.enterHold(f, false)
		}

	case Landing:
		rc, _ := s.cfg.Runway(f.TargetRunway)
		target := math.Add2f(rc.Start, math.Scale2f(rc.Direction(), s.cfg.Motion.RolloutFraction*rc.Length()))
		f.Position = math.MoveToward(f.Position, target, s.cfg.Motion.LandingSpeed*secs)
		if f.Position == target {
			s.setState(f, Rollout)
		}

	case Rollout:
		s.updateRollout(f)

	case Taxiing:
		s.updateTaxi(f, secs)

	case AtGate:
		if s.now-f.GateArrival >= s.cfg.Motion.GateDwell.D() {
			s.kpis.Completed++
			s.metrics.inc(s.metrics.completions)
			s.setState(f, Completed)
		}

	case Diverted:
		m := s.cfg.Motion
		f.Position = math.Add2f(f.Position, math.Scale2f(f.EntryEdge.outward(), m.DivertSpeed*secs))
		if !s.cfg.Bounds.Expand(m.DivertMargin).Inside(f.Position) {
			s.kpis.Removed++
			s.metrics.inc(s.metrics.removals)
			s.setState(f, Removed)
		}
	}
}

func (s *Sim) updateApproach(f *Flight, secs float32, ts tickState) {
	for _, o := range ts.airborne {
		if o.id != f.ID && math.Distance2f(o.pos, f.Position) < s.cfg.MinSeparation {
			s.lg.Debug("separation hold", slog.String("flight", string(f.ID)),
				slog.String("conflict", string(o.id)))
			s.enterHold(f, true)
			return
		}
	}

	// Move at least one point along the path, and unless limited to a
	// single point, as many more as it takes to cover the distance flown
	// this tick.
	path, i := f.ApproachPath, f.PathIndex
	if i < len(path)-1 {
		step := s.cfg.Motion.ApproachSpeed * secs
		i++
		d := math.Distance2f(path[i-1], path[i])
		for !s.cfg.Motion.ApproachSinglePoint && i < len(path)-1 && d < step {
			d += math.Distance2f(path[i], path[i+1])
			i++
		}
	}
	f.PathIndex = i
	f.Position = path[i]

	if i >= len(path)-1-s.cfg.Motion.RequestWindow {
		if ts.busy[f.TargetRunway] {
			s.enterHold(f, false)
		} else {
			s.requestDecision(f)
		}
	}
}

// enterHold starts a circular hold that passes through the flight's
// current position. Separation holds start at a random point on the
// circle so that conflicting flights fan out.
func (s *Sim) enterHold(f *Flight, random bool) {
	var angle float32
	if random {
		angle = s.rand.Float32() * 360
	}
	f.HoldAngle = angle
	f.HoldCenter = math.PointOnCircle(f.Position, s.cfg.Motion.HoldRadius, angle+180)
	s.setState(f, Holding)
}

func (s *Sim) updateRollout(f *Flight) {
	if f.Assigned == nil && !s.scheduleForRollout(f) {
		return
	}

	rc, _ := s.cfg.Runway(f.TargetRunway)
	gate, _ := s.cfg.Gate(f.Assigned.Gate)
	path, err := s.planner.Route(rc.ExitNode, gate.Node, nil)
	if err != nil {
		s.lg.Warn("no taxi route, parking without one", slog.Any("flight", f), slog.Any("error", err))
		s.kpis.DegradedParkings++
		s.metrics.inc(s.metrics.degraded)
		s.post(Event{Type: DegradedParkingEvent, Flight: f.ID, Message: err.Error()})

		f.Degraded = true
		if p, ok := s.planner.Graph().Nodes[gate.Node]; ok {
			f.Position = p
		}
		f.GateArrival = s.now
		s.setState(f, AtGate)
		return
	}

	f.TaxiPath, f.TaxiIndex = path, 0
	s.setState(f, Taxiing)
}

// scheduleForRollout tries to get the flight an assignment, first
// together with every other unassigned flight and then on its own. After
// a failure it doesn't try again until the retry interval has passed.
func (s *Sim) scheduleForRollout(f *Flight) bool {
	if s.now < s.schedulerRetryAt {
		return false
	}
	if _, err := s.runScheduler(); err == nil && f.Assigned != nil {
		return true
	}
	if _, err := s.scheduleFlights([]*Flight{f}); err == nil {
		return true
	}
	s.schedulerRetryAt = s.now + s.cfg.SchedulerRetryInterval.D()
	return false
}

func (s *Sim) runScheduler() (map[FlightID]sched.Assignment, error) {
	var pending []*Flight
	for _, id := range s.order {
		f := s.flights[id]
		if f.Assigned == nil && !f.State.Terminal() && f.State != Diverted {
			pending = append(pending, f)
		}
	}
	return s.scheduleFlights(pending)
}

func (s *Sim) scheduleFlights(flights []*Flight) (map[FlightID]sched.Assignment, error) {
	if len(flights) == 0 {
		return map[FlightID]sched.Assignment{}, nil
	}

	req := sched.Request{
		Gates:      s.gates,
		Separation: s.cfg.SlotSeparation,
		MaxSteps:   s.cfg.SchedulerMaxSteps,
		Fixed:      make(map[FlightID]sched.Assignment),
	}
	for _, rc := range s.cfg.Runways {
		req.Runways = append(req.Runways, rc.ID)
	}
	for _, f := range s.flights {
		if f.Assigned != nil {
			req.Fixed[f.ID] = *f.Assigned
		}
	}
	for _, f := range flights {
		req.Flights = append(req.Flights, sched.Variable{
			ID:            f.ID,
			RequestedSlot: f.RequestedSlot,
			Priority:      f.Priority,
			Size:          f.Size,
		})
	}

	assignments, err := sched.Solve(req)
	if err != nil {
		s.kpis.SchedulingFailures++
		s.metrics.inc(s.metrics.schedFailures)
		s.post(Event{Type: SchedulingFailureEvent, Message: err.Error()})
		s.lg.Warn("scheduling failed, deferring", slog.Int("flights", len(flights)), slog.Any("error", err))
		return nil, err
	}

	for id, a := range assignments {
		s.flights[id].Assigned = &a
		s.lg.Debug("assigned", slog.String("flight", string(id)), slog.Any("assignment", a))
	}
	return assignments, nil
}

func (s *Sim) updateTaxi(f *Flight, secs float32) {
	if f.TaxiIndex >= len(f.TaxiPath) {
		f.GateArrival = s.now
		s.setState(f, AtGate)
		return
	}

	// The first node is the runway exit, reached from the runway itself;
	// every later leg needs its taxiway segment to itself.
	node := f.TaxiPath[f.TaxiIndex]
	var edge taxi.Edge
	if f.TaxiIndex > 0 {
		edge = taxi.MakeEdge(f.TaxiPath[f.TaxiIndex-1], node)
		if holder, ok := s.reservations[edge]; ok && holder != f.ID {
			f.TaxiWaitTicks++
			s.kpis.TaxiConflicts++
			s.metrics.inc(s.metrics.taxiWaits)
			return
		}
		s.reservations[edge] = f.ID
	}

	target := s.planner.Graph().Nodes[node]
	speed := s.cfg.Motion.TaxiSpeed / s.taxiCongestion
	f.Position = math.MoveToward(f.Position, target, speed*secs)
	if math.Distance2f(f.Position, target) < s.cfg.Motion.NodeArrivalRadius {
		f.Position = target
		if f.TaxiIndex > 0 {
			delete(s.reservations, edge)
		}
		f.TaxiIndex++
		if f.TaxiIndex == len(f.TaxiPath) {
			f.GateArrival = s.now
			s.lg.Info("at gate", slog.Any("flight", f))
			s.setState(f, AtGate)
		}
	}
}
