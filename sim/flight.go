// sim/flight.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"strings"
	"time"

	"github.com/atcflow/atcflow/math"
	"github.com/atcflow/atcflow/rand"
	"github.com/atcflow/atcflow/sched"
	"github.com/atcflow/atcflow/taxi"
)

type FlightID = sched.FlightID

type FlightState int

const (
	Spawning FlightState = iota
	Approaching
	Holding
	Requesting
	Landing
	Rollout
	Taxiing
	AtGate
	Completed
	Diverted
	Removed
)

func (s FlightState) String() string {
	return [...]string{"Spawning", "Approaching", "Holding", "Requesting", "Landing",
		"Rollout", "Taxiing", "AtGate", "Completed", "Diverted", "Removed"}[s]
}

// Airborne reports whether a flight in this state counts against the
// active flight limit and takes part in separation checks.
func (s FlightState) Airborne() bool {
	return s == Approaching || s == Holding || s == Requesting || s == Landing
}

func (s FlightState) Terminal() bool {
	return s == Completed || s == Removed
}

// Edge identifies the side of the world a flight arrives from.
type Edge string

const (
	EdgeAny    Edge = ""
	EdgeLeft   Edge = "left"
	EdgeRight  Edge = "right"
	EdgeTop    Edge = "top"
	EdgeBottom Edge = "bottom"
)

var allEdges = []Edge{EdgeLeft, EdgeRight, EdgeTop, EdgeBottom}

// ParseEdge accepts an edge name in any case; it returns false for
// anything unrecognized.
func ParseEdge(s string) (Edge, bool) {
	e := Edge(strings.ToLower(strings.TrimSpace(s)))
	switch e {
	case EdgeAny, EdgeLeft, EdgeRight, EdgeTop, EdgeBottom:
		return e, true
	default:
		return EdgeAny, false
	}
}

// outward returns the unit vector pointing out of the world through the
// edge.
func (e Edge) outward() math.Point2f {
	switch e {
	case EdgeLeft:
		return math.Point2f{-1, 0}
	case EdgeRight:
		return math.Point2f{1, 0}
	case EdgeTop:
		return math.Point2f{0, -1}
	default:
		return math.Point2f{0, 1}
	}
}

// FlightSpec describes a flight to be spawned. Zero values select
// defaults: a generated id, a random aircraft type, runway, entry edge and
// requested slot.
type FlightSpec struct {
	ID              FlightID
	Type            string
	FuelPct         float32
	WeatherSeverity float32
	Emergency       bool
	PreferredRunway string
	Edge            Edge
	RequestedSlot   int
}

// RandomFlightSpec returns a spec with random fuel and weather; the
// aircraft type, runway and edge are left for the engine to choose.
func RandomFlightSpec(r *rand.Rand, emergencyProbability float32) FlightSpec {
	return FlightSpec{
		FuelPct:         float32(8 + r.Intn(88)),
		WeatherSeverity: float32(int(r.Float32()*100+0.5)) / 100,
		Emergency:       r.Float32() < emergencyProbability,
	}
}

type Flight struct {
	ID      FlightID
	Type    string
	Size    sched.SizeClass
	FuelPct float32
	// ReportedWeather is the severity the flight spawned with;
	// WeatherSeverity may be raised by an airport-wide weather event.
	ReportedWeather float32
	WeatherSeverity float32
	Emergency       bool
	Priority        float32

	State    FlightState
	Position math.Point2f

	// ApproachPath is fixed at spawn; PathIndex is the index of the
	// point the flight is at.
	ApproachPath []math.Point2f
	PathIndex    int
	TargetRunway string
	EntryEdge    Edge

	HoldCenter math.Point2f
	HoldAngle  float32

	// PendingRequest is the id of the outstanding landing clearance
	// request while the flight is Requesting.
	PendingRequest string

	RequestedSlot int
	Assigned      *sched.Assignment

	TaxiPath  []taxi.NodeID
	TaxiIndex int
	// TaxiWaitTicks counts ticks spent waiting for a reserved taxi edge.
	TaxiWaitTicks int
	// Degraded is set when the flight was parked without a taxi route.
	Degraded bool

	SpawnTime   time.Duration
	GrantTime   time.Duration
	GateArrival time.Duration
	Granted     bool
}

func (f *Flight) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("id", string(f.ID)),
		slog.String("type", f.Type),
		slog.String("state", f.State.String()),
		slog.Float64("priority", float64(f.Priority)),
		slog.String("runway", f.TargetRunway),
	}
	if f.Emergency {
		attrs = append(attrs, slog.Bool("emergency", true))
	}
	if f.Assigned != nil {
		attrs = append(attrs, slog.Any("assigned", *f.Assigned))
	}
	return slog.GroupValue(attrs...)
}

// Runway is the runtime state of a runway.
type Runway struct {
	ID string
	// BusyUntil is the simulation time until which no landing may be
	// cleared. Granted landings and CloseRunway both advance it; it never
	// decreases.
	BusyUntil time.Duration
	Landings  int
}

func (r *Runway) LogValue() slog.Value {
	return slog.GroupValue(slog.String("id", r.ID), slog.Duration("busy_until", r.BusyUntil),
		slog.Int("landings", r.Landings))
}

// extend advances BusyUntil to t unless it is already later.
func (r *Runway) extend(t time.Duration) {
	r.BusyUntil = max(r.BusyUntil, t)
}
