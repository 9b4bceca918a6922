// sim/config.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/atcflow/atcflow/math"
	"github.com/atcflow/atcflow/sched"
	"github.com/atcflow/atcflow/seqopt"
	"github.com/atcflow/atcflow/taxi"
	"github.com/atcflow/atcflow/util"

	"gopkg.in/yaml.v3"
)

type RunwayConfig struct {
	ID string `json:"id" yaml:"id"`
	// Start and End are the ends of the runway centerline; landings roll
	// from Start toward End.
	Start math.Point2f `json:"start" yaml:"start"`
	End   math.Point2f `json:"end" yaml:"end"`
	// Threshold is where approach paths end.
	Threshold math.Point2f `json:"threshold" yaml:"threshold"`
	// FunnelMid is the control point that shapes approach curves.
	FunnelMid math.Point2f `json:"funnel_mid" yaml:"funnel_mid"`
	ExitNode  taxi.NodeID  `json:"exit_node" yaml:"exit_node"`
}

func (r RunwayConfig) Length() float32 {
	return math.Distance2f(r.Start, r.End)
}

func (r RunwayConfig) Direction() math.Point2f {
	return math.Normalize2f(math.Sub2f(r.End, r.Start))
}

type GateConfig struct {
	ID   string          `json:"id" yaml:"id"`
	Size sched.SizeClass `json:"size" yaml:"size"`
	Node taxi.NodeID     `json:"node" yaml:"node"`
}

// MotionConfig holds the constants of the kinematic model. Distances are
// in world units, speeds in units per second.
type MotionConfig struct {
	ApproachSteps     int     `json:"approach_steps" yaml:"approach_steps"`
	ApproachSmoothing int     `json:"approach_smoothing" yaml:"approach_smoothing"`
	ApproachSpeed     float32 `json:"approach_speed" yaml:"approach_speed"`
	// If set, approaching flights advance exactly one path point per tick
	// and ApproachSpeed is ignored.
	ApproachSinglePoint bool `json:"approach_single_point" yaml:"approach_single_point"`
	// A flight requests landing once it is within this many path points
	// of the threshold.
	RequestWindow int `json:"request_window" yaml:"request_window"`

	SpawnMargin float32 `json:"spawn_margin" yaml:"spawn_margin"`
	SpawnJitter float32 `json:"spawn_jitter" yaml:"spawn_jitter"`

	HoldRadius float32 `json:"hold_radius" yaml:"hold_radius"`
	// Degrees per second.
	HoldRate float32 `json:"hold_rate" yaml:"hold_rate"`
	// Per-tick probability that a holding flight asks to land again.
	HoldRetryProbability float32 `json:"hold_retry_probability" yaml:"hold_retry_probability"`

	LandingSpeed float32 `json:"landing_speed" yaml:"landing_speed"`
	// Fraction of the runway length after which a landing flight is
	// rolling out.
	RolloutFraction float32 `json:"rollout_fraction" yaml:"rollout_fraction"`

	TaxiSpeed         float32       `json:"taxi_speed" yaml:"taxi_speed"`
	NodeArrivalRadius float32       `json:"node_arrival_radius" yaml:"node_arrival_radius"`
	GateDwell         util.Duration `json:"gate_dwell" yaml:"gate_dwell"`

	DivertSpeed float32 `json:"divert_speed" yaml:"divert_speed"`
	// Diverted flights are removed this far outside the world bounds.
	DivertMargin float32 `json:"divert_margin" yaml:"divert_margin"`
}

type DecisionConfig struct {
	GrantThreshold  float32 `json:"grant_threshold" yaml:"grant_threshold"`
	DivertThreshold float32 `json:"divert_threshold" yaml:"divert_threshold"`
}

// AirportConfig is everything the engine needs to know about the airport
// and how to run it. It is supplied once, to NewSim.
type AirportConfig struct {
	Name   string        `json:"name" yaml:"name"`
	Bounds math.Extent2D `json:"bounds" yaml:"bounds"`

	Runways   []RunwayConfig                `json:"runways" yaml:"runways"`
	Gates     []GateConfig                  `json:"gates" yaml:"gates"`
	TaxiNodes map[taxi.NodeID]math.Point2f  `json:"taxi_nodes" yaml:"taxi_nodes"`
	TaxiEdges map[taxi.NodeID][]taxi.NodeID `json:"taxi_edges" yaml:"taxi_edges"`

	// AircraftTypes are chosen from when spawning without a type;
	// AircraftSizes gives each type's size class for gate compatibility.
	AircraftTypes []string                   `json:"aircraft_types" yaml:"aircraft_types"`
	AircraftSizes map[string]sched.SizeClass `json:"aircraft_sizes" yaml:"aircraft_sizes"`

	// MinSeparation is the distance below which an approaching flight
	// must hold.
	MinSeparation float32 `json:"min_separation" yaml:"min_separation"`
	// RunwaySeparation is how long a runway stays busy after a landing
	// clearance.
	RunwaySeparation util.Duration `json:"runway_separation" yaml:"runway_separation"`
	// SlotSeparation is the scheduler's minimum slot distance on a runway.
	SlotSeparation int `json:"slot_separation" yaml:"slot_separation"`

	MaxFlights       int `json:"max_flights" yaml:"max_flights"`
	MaxActiveFlights int `json:"max_active_flights" yaml:"max_active_flights"`

	SchedulerMaxSteps      int           `json:"scheduler_max_steps" yaml:"scheduler_max_steps"`
	SchedulerRetryInterval util.Duration `json:"scheduler_retry_interval" yaml:"scheduler_retry_interval"`
	Sequencing             seqopt.Params `json:"sequencing" yaml:"sequencing"`

	Decision DecisionConfig `json:"decision" yaml:"decision"`
	Motion   MotionConfig   `json:"motion" yaml:"motion"`

	AutoSpawnInterval    util.Duration `json:"auto_spawn_interval" yaml:"auto_spawn_interval"`
	AutoScheduleInterval util.Duration `json:"auto_schedule_interval" yaml:"auto_schedule_interval"`
}

// DefaultTuning returns a configuration with every numeric parameter set
// to its default and no airport layout.
func DefaultTuning() AirportConfig {
	return AirportConfig{
		AircraftSizes: map[string]sched.SizeClass{
			"A380": sched.SizeLarge, "B747": sched.SizeLarge, "B777": sched.SizeLarge, "A330": sched.SizeLarge,
			"A320": sched.SizeMedium, "B737": sched.SizeMedium, "E190": sched.SizeMedium,
			"Turboprop": sched.SizeSmall, "Regional": sched.SizeSmall,
		},
		AircraftTypes: []string{"A320", "B737", "A330", "Turboprop"},

		MinSeparation:    80,
		RunwaySeparation: util.Duration(6 * time.Second),
		SlotSeparation:   1,

		MaxFlights:       24,
		MaxActiveFlights: 12,

		SchedulerMaxSteps:      200000,
		SchedulerRetryInterval: util.Duration(time.Second),
		Sequencing:             seqopt.DefaultParams(),

		Decision: DecisionConfig{GrantThreshold: 0.55, DivertThreshold: 0.12},
		Motion: MotionConfig{
			ApproachSteps:        160,
			ApproachSmoothing:    2,
			ApproachSpeed:        160,
			RequestWindow:        12,
			SpawnMargin:          140,
			SpawnJitter:          20,
			HoldRadius:           42,
			HoldRate:             80,
			HoldRetryProbability: 0.02,
			LandingSpeed:         160,
			RolloutFraction:      0.6,
			TaxiSpeed:            70,
			NodeArrivalRadius:    6,
			GateDwell:            util.Duration(8 * time.Second),
			DivertSpeed:          160,
			DivertMargin:         200,
		},

		AutoSpawnInterval:    util.Duration(2800 * time.Millisecond),
		AutoScheduleInterval: util.Duration(6 * time.Second),
	}
}

// DefaultAirportConfig returns a two-runway airport with five gates of
// mixed sizes served by a single taxiway.
func DefaultAirportConfig() AirportConfig {
	c := DefaultTuning()
	c.Name = "Demo International"
	c.Bounds = math.Extent2D{P0: math.Point2f{0, 0}, P1: math.Point2f{1100, 700}}

	c.Runways = []RunwayConfig{
		{ID: "RWY1", Start: math.Point2f{170, 146}, End: math.Point2f{930, 146},
			Threshold: math.Point2f{210, 146}, FunnelMid: math.Point2f{550, 270}, ExitNode: "RWY1_EXIT"},
		{ID: "RWY2", Start: math.Point2f{170, 316}, End: math.Point2f{930, 316},
			Threshold: math.Point2f{210, 316}, FunnelMid: math.Point2f{550, 440}, ExitNode: "RWY2_EXIT"},
	}
	c.Gates = []GateConfig{
		{ID: "G1", Size: sched.SizeLarge, Node: "G1"},
		{ID: "G2", Size: sched.SizeLarge, Node: "G2"},
		{ID: "G3", Size: sched.SizeMedium, Node: "G3"},
		{ID: "G4", Size: sched.SizeMedium, Node: "G4"},
		{ID: "G5", Size: sched.SizeSmall, Node: "G5"},
	}
	c.TaxiNodes = map[taxi.NodeID]math.Point2f{
		"RWY1_EXIT": {874, 152},
		"T_A":       {320, 190},
		"T_B":       {510, 190},
		"T_C":       {690, 190},
		"T_D":       {830, 190},
		"RWY2_EXIT": {874, 322},
		"G1":        {310, 470},
		"G2":        {440, 470},
		"G3":        {570, 470},
		"G4":        {700, 470},
		"G5":        {830, 470},
	}
	c.TaxiEdges = map[taxi.NodeID][]taxi.NodeID{
		"RWY1_EXIT": {"T_A"},
		"T_A":       {"T_B", "G1"},
		"T_B":       {"T_C", "G2"},
		"T_C":       {"T_D", "G3"},
		"T_D":       {"RWY2_EXIT", "G4", "G5"},
	}
	return c
}

// Validate checks the configuration and returns an error describing
// every problem found. Runway exits or gates that name nodes missing
// from the taxi graph produce an error wrapping ErrInvalidGraphReference;
// other problems wrap ErrInvalidConfig.
func (c *AirportConfig) Validate() error {
	var refs, e util.ErrorLogger

	if c.Bounds.Empty() {
		e.ErrorString("bounds: world bounds are empty")
	}

	hasNode := func(id taxi.NodeID) bool {
		_, ok := c.TaxiNodes[id]
		return ok
	}
	for _, id := range util.SortedMapKeys(c.TaxiEdges) {
		nbrs := c.TaxiEdges[id]
		if !hasNode(id) {
			refs.ErrorString("taxi_edges: %q is not a taxi node", id)
		}
		for _, nb := range nbrs {
			if !hasNode(nb) {
				refs.ErrorString("taxi_edges: %q neighbor %q is not a taxi node", id, nb)
			}
		}
	}

	if len(c.Runways) == 0 {
		e.ErrorString("runways: no runways specified")
	}
	seen := make(map[string]struct{})
	for i, rwy := range c.Runways {
		e.Push(fmt.Sprintf("runways[%d] %s", i, rwy.ID))
		refs.Push(fmt.Sprintf("runways[%d] %s", i, rwy.ID))
		if rwy.ID == "" {
			e.ErrorString("missing id")
		} else if _, ok := seen[rwy.ID]; ok {
			e.ErrorString("duplicate runway id")
		}
		seen[rwy.ID] = struct{}{}
		if rwy.Length() == 0 {
			e.ErrorString("start and end coincide")
		}
		if !hasNode(rwy.ExitNode) {
			refs.ErrorString("exit node %q is not in the taxi graph", rwy.ExitNode)
		}
		e.Pop()
		refs.Pop()
	}

	if len(c.Gates) == 0 {
		e.ErrorString("gates: no gates specified")
	}
	clear(seen)
	for i, g := range c.Gates {
		e.Push(fmt.Sprintf("gates[%d] %s", i, g.ID))
		refs.Push(fmt.Sprintf("gates[%d] %s", i, g.ID))
		if g.ID == "" {
			e.ErrorString("missing id")
		} else if _, ok := seen[g.ID]; ok {
			e.ErrorString("duplicate gate id")
		}
		seen[g.ID] = struct{}{}
		if !g.Size.Valid() {
			e.ErrorString("unknown size class %q", g.Size)
		}
		if !hasNode(g.Node) {
			refs.ErrorString("node %q is not in the taxi graph", g.Node)
		}
		e.Pop()
		refs.Pop()
	}

	for _, t := range util.SortedMapKeys(c.AircraftSizes) {
		if !c.AircraftSizes[t].Valid() {
			e.ErrorString("aircraft_sizes: %s: unknown size class %q", t, c.AircraftSizes[t])
		}
	}

	check := func(ok bool, what string, args ...any) {
		if !ok {
			e.ErrorString(what, args...)
		}
	}
	check(c.MinSeparation >= 0, "min_separation must not be negative")
	check(c.RunwaySeparation >= 0, "runway_separation must not be negative")
	check(c.SlotSeparation >= 0, "slot_separation must not be negative")
	check(c.MaxFlights > 0, "max_flights must be positive")
	check(c.MaxActiveFlights > 0 && c.MaxActiveFlights <= c.MaxFlights,
		"max_active_flights must be positive and at most max_flights (%d)", c.MaxFlights)
	check(c.SchedulerRetryInterval >= 0, "scheduler_retry_interval must not be negative")
	check(c.Sequencing.PopulationSize >= 0 && c.Sequencing.Generations >= 0,
		"sequencing: population_size and generations must not be negative")
	check(c.Sequencing.MutationRate >= 0 && c.Sequencing.MutationRate <= 1,
		"sequencing: mutation_rate must be in [0,1]")

	d := c.Decision
	check(d.GrantThreshold >= 0 && d.GrantThreshold <= 1, "decision: grant_threshold must be in [0,1]")
	check(d.DivertThreshold >= 0 && d.DivertThreshold <= d.GrantThreshold,
		"decision: divert_threshold must be in [0, grant_threshold]")

	m := c.Motion
	e.Push("motion")
	check(m.ApproachSteps >= 2, "approach_steps must be at least 2")
	check(m.ApproachSmoothing >= 0, "approach_smoothing must not be negative")
	check(m.RequestWindow >= 1, "request_window must be at least 1")
	check(m.ApproachSpeed > 0 && m.LandingSpeed > 0 && m.TaxiSpeed > 0 && m.DivertSpeed > 0,
		"speeds must be positive")
	check(m.HoldRadius > 0, "hold_radius must be positive")
	check(m.HoldRetryProbability >= 0 && m.HoldRetryProbability <= 1, "hold_retry_probability must be in [0,1]")
	check(m.RolloutFraction > 0 && m.RolloutFraction <= 1, "rollout_fraction must be in (0,1]")
	check(m.NodeArrivalRadius > 0, "node_arrival_radius must be positive")
	check(m.GateDwell >= 0, "gate_dwell must not be negative")
	e.Pop()

	return errors.Join(refs.Err(ErrInvalidGraphReference), e.Err(ErrInvalidConfig))
}

// Runway returns the configuration of the given runway.
func (c *AirportConfig) Runway(id string) (RunwayConfig, bool) {
	idx := slices.IndexFunc(c.Runways, func(r RunwayConfig) bool { return r.ID == id })
	if idx == -1 {
		return RunwayConfig{}, false
	}
	return c.Runways[idx], true
}

func (c *AirportConfig) Gate(id string) (GateConfig, bool) {
	idx := slices.IndexFunc(c.Gates, func(g GateConfig) bool { return g.ID == id })
	if idx == -1 {
		return GateConfig{}, false
	}
	return c.Gates[idx], true
}

// SizeOf returns the size class of an aircraft type, or sched.SizeAny if
// it isn't known.
func (c *AirportConfig) SizeOf(aircraftType string) sched.SizeClass {
	return c.AircraftSizes[aircraftType]
}

// ParseAirportConfig parses a configuration in JSON or, if isYAML is
// set, YAML. Parameters missing from the input keep their DefaultTuning
// values. Unknown keys are errors. The result is not validated.
func ParseAirportConfig(b []byte, isYAML bool) (AirportConfig, error) {
	c := DefaultTuning()

	if isYAML {
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&c); err != nil {
			return AirportConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		return c, nil
	}

	var e util.ErrorLogger
	util.CheckJSON[AirportConfig](b, &e)
	if err := e.Err(ErrInvalidConfig); err != nil {
		return AirportConfig{}, err
	}
	if err := util.UnmarshalJSONBytes(b, &c); err != nil {
		return AirportConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return c, nil
}

// LoadAirportConfig reads and validates a configuration file. Files
// ending in .yaml or .yml are parsed as YAML and all others as JSON.
func LoadAirportConfig(path string) (AirportConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return AirportConfig{}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	c, err := ParseAirportConfig(b, ext == ".yaml" || ext == ".yml")
	if err != nil {
		return AirportConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return AirportConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
