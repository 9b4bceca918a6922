// scenario/report.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atcflow/atcflow/log"
	"github.com/atcflow/atcflow/sim"
	"github.com/atcflow/atcflow/util"

	"github.com/iancoleman/orderedmap"
	"gopkg.in/yaml.v3"
)

// RunwayUsage is the fraction of simulated time a runway spent reserved
// for landings.
type RunwayUsage struct {
	Runway      string
	Utilization float64
}

// Report holds the KPIs of a finished scenario run. Times are reported in
// seconds of simulated time except Duration, which is wall-clock.
type Report struct {
	Scenario           string
	TotalFlights       int
	Landings           int
	Diversions         int
	EmergencyHandled   int
	Completed          int
	RejectedSpawns     int
	SchedulingFailures int
	DegradedParkings   int
	TaxiConflicts      int
	AvgWait            float64
	MaxWait            float64
	RunwayUtilization  []RunwayUsage
	SimulatedTime      time.Duration
	Duration           time.Duration
}

func newReport(sc *Scenario, cfg *sim.AirportConfig, k sim.KPIs, elapsed time.Duration) *Report {
	r := &Report{
		Scenario:           sc.Name,
		TotalFlights:       len(sc.Flights),
		Landings:           k.Landings,
		Diversions:         k.Diversions,
		EmergencyHandled:   k.EmergenciesHandled,
		Completed:          k.Completed,
		RejectedSpawns:     k.RejectedSpawns,
		SchedulingFailures: k.SchedulingFailures,
		DegradedParkings:   k.DegradedParkings,
		TaxiConflicts:      k.TaxiConflicts,
		AvgWait:            k.AverageWait().Seconds(),
		MaxWait:            k.MaxWait.Seconds(),
		SimulatedTime:      elapsed,
	}
	for _, rwy := range cfg.Runways {
		r.RunwayUtilization = append(r.RunwayUtilization, RunwayUsage{
			Runway:      rwy.ID,
			Utilization: k.RunwayUtilization(rwy.ID, elapsed),
		})
	}
	return r
}

// Value returns the named KPI. Per-runway utilization is addressed as
// "runway_utilization.<runway>".
func (r *Report) Value(name string) (float64, bool) {
	if rwy, ok := strings.CutPrefix(name, "runway_utilization."); ok {
		for _, u := range r.RunwayUtilization {
			if u.Runway == rwy {
				return u.Utilization, true
			}
		}
		return 0, false
	}

	switch name {
	case "total_flights":
		return float64(r.TotalFlights), true
	case "landings":
		return float64(r.Landings), true
	case "diversions":
		return float64(r.Diversions), true
	case "emergency_handled":
		return float64(r.EmergencyHandled), true
	case "completed":
		return float64(r.Completed), true
	case "rejected_spawns":
		return float64(r.RejectedSpawns), true
	case "scheduling_failures":
		return float64(r.SchedulingFailures), true
	case "degraded_parkings":
		return float64(r.DegradedParkings), true
	case "taxi_conflicts":
		return float64(r.TaxiConflicts), true
	case "avg_wait_time":
		return r.AvgWait, true
	case "max_wait_time":
		return r.MaxWait, true
	case "simulated_time":
		return r.SimulatedTime.Seconds(), true
	case "scenario_duration":
		return r.Duration.Seconds(), true
	default:
		return 0, false
	}
}

func knownKPI(name string, cfg *sim.AirportConfig) bool {
	if rwy, ok := strings.CutPrefix(name, "runway_utilization."); ok {
		_, found := cfg.Runway(rwy)
		return found
	}
	var r Report
	_, ok := r.Value(name)
	return ok
}

// JSON returns the report with its keys in a fixed order.
func (r *Report) JSON() ([]byte, error) {
	usage := orderedmap.New()
	for _, u := range r.RunwayUtilization {
		usage.Set(u.Runway, u.Utilization)
	}

	m := orderedmap.New()
	m.Set("scenario", r.Scenario)
	m.Set("total_flights", r.TotalFlights)
	m.Set("landings", r.Landings)
	m.Set("diversions", r.Diversions)
	m.Set("emergency_handled", r.EmergencyHandled)
	m.Set("completed", r.Completed)
	m.Set("rejected_spawns", r.RejectedSpawns)
	m.Set("scheduling_failures", r.SchedulingFailures)
	m.Set("degraded_parkings", r.DegradedParkings)
	m.Set("taxi_conflicts", r.TaxiConflicts)
	m.Set("avg_wait_time", r.AvgWait)
	m.Set("max_wait_time", r.MaxWait)
	m.Set("runway_utilization", usage)
	m.Set("simulated_time", r.SimulatedTime.Seconds())
	m.Set("scenario_duration", r.Duration.Seconds())

	return json.MarshalIndent(m, "", "  ")
}

// Threshold is an expected KPI bound: either an inclusive [Min, Max]
// range or, if Range is false, an upper limit Max.
type Threshold struct {
	Min, Max float64
	Range    bool
}

func (t Threshold) Check(v float64) bool {
	if t.Range {
		return t.Min <= v && v <= t.Max
	}
	return v <= t.Max
}

func (t Threshold) String() string {
	if t.Range {
		return fmt.Sprintf("[%g, %g]", t.Min, t.Max)
	}
	return fmt.Sprintf("<= %g", t.Max)
}

// UnmarshalYAML accepts either a number or a two-element [min, max] list.
func (t *Threshold) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := n.Decode(&v); err != nil {
			return err
		}
		*t = Threshold{Max: v}
		return nil
	case yaml.SequenceNode:
		var v []float64
		if err := n.Decode(&v); err != nil {
			return err
		}
		if len(v) != 2 || v[0] > v[1] {
			return fmt.Errorf("line %d: threshold range must be [min, max]", n.Line)
		}
		*t = Threshold{Min: v[0], Max: v[1], Range: true}
		return nil
	default:
		return fmt.Errorf("line %d: threshold must be a number or [min, max]", n.Line)
	}
}

// ParseThreshold parses "max" or "min:max".
func ParseThreshold(s string) (Threshold, error) {
	lo, hi, isRange := strings.Cut(s, ":")
	if !isRange {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Threshold{}, fmt.Errorf("%s: %w", s, ErrInvalidScenario)
		}
		return Threshold{Max: v}, nil
	}

	vlo, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("%s: %w", s, ErrInvalidScenario)
	}
	vhi, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil || vlo > vhi {
		return Threshold{}, fmt.Errorf("%s: %w", s, ErrInvalidScenario)
	}
	return Threshold{Min: vlo, Max: vhi, Range: true}, nil
}

// ErrKPIOutOfRange is returned by Validate when a KPI misses its threshold.
var ErrKPIOutOfRange = errors.New("KPI out of range")

// Validate checks each KPI against its threshold and reports all
// failures, logging each one to lg as well.
func (r *Report) Validate(expect map[string]Threshold, lg *log.Logger) error {
	var e util.ErrorLogger
	for _, name := range util.SortedMapKeys(expect) {
		t := expect[name]
		v, ok := r.Value(name)
		if !ok {
			e.ErrorString("%s: unknown KPI", name)
		} else if !t.Check(v) {
			e.ErrorString("%s = %g, expected %s", name, v, t)
		}
	}
	e.LogErrors(lg)
	return e.Err(ErrKPIOutOfRange)
}
