// scenario/scenario.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package scenario runs scripted traffic through the engine without a
// clock or a human in the loop and reports how the airport coped.
package scenario

import (
	"bufio"
	"bytes"
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/atcflow/atcflow/sim"
	"github.com/atcflow/atcflow/util"

	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

const (
	DefaultStep       = 100 * time.Millisecond
	DefaultMaxSimTime = 180 * time.Second
)

type FlightEntry struct {
	ID        sim.FlightID  `yaml:"id"`
	Type      string        `yaml:"type"`
	Fuel      float32       `yaml:"fuel"`
	Weather   float32       `yaml:"weather"`
	Emergency bool          `yaml:"emergency"`
	SpawnTime util.Duration `yaml:"spawn_time"`
	Edge      sim.Edge      `yaml:"edge"`
	Runway    string        `yaml:"runway"`
}

func (f FlightEntry) Spec() sim.FlightSpec {
	return sim.FlightSpec{
		ID:              f.ID,
		Type:            f.Type,
		FuelPct:         f.Fuel,
		WeatherSeverity: f.Weather,
		Emergency:       f.Emergency,
		PreferredRunway: f.Runway,
		Edge:            f.Edge,
	}
}

type EventKind string

const (
	RunwayClosure  EventKind = "runway_closure"
	WeatherEvent   EventKind = "weather"
	TaxiCongestion EventKind = "taxi_congestion"
)

// Event is a disruption that starts at Start and lasts for Duration.
type Event struct {
	Kind     EventKind     `yaml:"kind"`
	Start    util.Duration `yaml:"start"`
	Duration util.Duration `yaml:"duration"`
	// Runway is closed by RunwayClosure.
	Runway string `yaml:"runway,omitempty"`
	// Severity is the airport-wide weather severity during a
	// WeatherEvent.
	Severity float32 `yaml:"severity,omitempty"`
	// Factor divides taxi speeds during TaxiCongestion.
	Factor float32 `yaml:"factor,omitempty"`
}

type Scenario struct {
	Name       string        `yaml:"name"`
	Seed       int64         `yaml:"seed"`
	Step       util.Duration `yaml:"step"`
	MaxSimTime util.Duration `yaml:"max_sim_time"`
	Flights    []FlightEntry `yaml:"flights"`
	Events     []Event       `yaml:"events"`
	// Expect gives KPI thresholds that Report.Validate checks.
	Expect map[string]Threshold `yaml:"expect"`
}

// Validate checks the scenario against the airport it will run at.
func (sc *Scenario) Validate(cfg *sim.AirportConfig) error {
	var e util.ErrorLogger

	if sc.Step < 0 || sc.MaxSimTime < 0 {
		e.ErrorString("step and max_sim_time must not be negative")
	}
	seen := make(map[sim.FlightID]struct{})
	for i, f := range sc.Flights {
		e.Push(fmt.Sprintf("flights[%d] %s", i, f.ID))
		if f.ID != "" {
			if _, ok := seen[f.ID]; ok {
				e.ErrorString("duplicate flight id")
			}
			seen[f.ID] = struct{}{}
		}
		if f.Fuel < 0 || f.Fuel > 100 {
			e.ErrorString("fuel %v is not a percentage", f.Fuel)
		}
		if f.Weather < 0 || f.Weather > 1 {
			e.ErrorString("weather %v is not in [0,1]", f.Weather)
		}
		if f.SpawnTime < 0 {
			e.ErrorString("negative spawn time")
		}
		if _, ok := sim.ParseEdge(string(f.Edge)); !ok {
			e.ErrorString("unknown edge %q", f.Edge)
		}
		if _, ok := cfg.Runway(f.Runway); f.Runway != "" && !ok {
			e.ErrorString("unknown runway %q", f.Runway)
		}
		e.Pop()
	}

	for i, ev := range sc.Events {
		e.Push(fmt.Sprintf("events[%d] %s", i, ev.Kind))
		if ev.Start < 0 || ev.Duration < 0 {
			e.ErrorString("start and duration must not be negative")
		}
		switch ev.Kind {
		case RunwayClosure:
			if _, ok := cfg.Runway(ev.Runway); !ok {
				e.ErrorString("unknown runway %q", ev.Runway)
			}
		case WeatherEvent:
			if ev.Severity < 0 || ev.Severity > 1 {
				e.ErrorString("severity %v is not in [0,1]", ev.Severity)
			}
		case TaxiCongestion:
			if ev.Factor < 1 {
				e.ErrorString("congestion factor %v must be at least 1", ev.Factor)
			}
		default:
			e.ErrorString("unknown event kind")
		}
		e.Pop()
	}

	for _, name := range util.SortedMapKeys(sc.Expect) {
		if !knownKPI(name, cfg) {
			e.ErrorString("expect: unknown KPI %q", name)
		}
	}

	return e.Err(ErrInvalidScenario)
}

// Load reads a scenario from a YAML (.yaml, .yml) or CSV file.
func Load(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sc *Scenario
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		sc, err = ParseYAML(f)
	case ".csv":
		sc, err = ParseCSV(f)
	default:
		return nil, fmt.Errorf("%s: unknown scenario format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sc.Name == "" {
		sc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return sc, nil
}

func ParseYAML(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	return &sc, nil
}

var csvFields = []string{"flight_id", "type", "fuel", "weather", "emergency", "spawn_time", "edge"}

// ParseCSV reads the scenario table format: a header row naming
// csvFields, then one flight per row. Lines starting with # are comments.
// Rows whose id starts with RUNWAY_CLOSURE, WEATHER_EVENT or
// TAXI_CONGESTION are events: the type column holds the runway, severity
// or congestion factor, the fuel column the start time and the weather
// column the duration, both in seconds.
func ParseCSV(r io.Reader) (*Scenario, error) {
	// Comments are stripped before parsing; lines maps each remaining
	// record back to its line in the file.
	var lines []int
	var buf bytes.Buffer
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		if line := sc.Text(); !strings.HasPrefix(line, "#") && strings.TrimSpace(line) != "" {
			buf.WriteString(line + "\n")
			lines = append(lines, n)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	cr := csv.NewReader(&buf)
	cr.FieldsPerRecord = len(csvFields)
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidScenario)
	}

	var e util.ErrorLogger
	s := &Scenario{}
	for i, rec := range records[1:] {
		e.Push(fmt.Sprintf("line %d", lines[i+1]))
		field := func(idx int) string { return strings.TrimSpace(rec[idx]) }
		num := func(idx int) float32 {
			v, err := strconv.ParseFloat(field(idx), 32)
			if err != nil {
				e.ErrorString("%s: %q is not a number", csvFields[idx], field(idx))
			}
			return float32(v)
		}
		secs := func(idx int) util.Duration {
			return util.Duration(float64(num(idx)) * float64(time.Second))
		}

		id := field(0)
		switch {
		case strings.HasPrefix(id, "RUNWAY_CLOSURE"):
			s.Events = append(s.Events, Event{Kind: RunwayClosure, Runway: field(1), Start: secs(2), Duration: secs(3)})
		case strings.HasPrefix(id, "WEATHER_EVENT"):
			s.Events = append(s.Events, Event{Kind: WeatherEvent, Severity: num(1), Start: secs(2), Duration: secs(3)})
		case strings.HasPrefix(id, "TAXI_CONGESTION"):
			s.Events = append(s.Events, Event{Kind: TaxiCongestion, Factor: num(1), Start: secs(2), Duration: secs(3)})
		default:
			edge, ok := sim.ParseEdge(field(6))
			if !ok {
				e.ErrorString("edge: unknown edge %q", field(6))
			}
			s.Flights = append(s.Flights, FlightEntry{
				ID:        sim.FlightID(id),
				Type:      field(1),
				Fuel:      num(2),
				Weather:   num(3),
				Emergency: strings.EqualFold(field(4), "true"),
				SpawnTime: secs(5),
				Edge:      edge,
			})
		}
		e.Pop()
	}
	if err := e.Err(ErrInvalidScenario); err != nil {
		return nil, err
	}
	return s, nil
}

// sortedFlights returns the flights in spawn order.
func (sc *Scenario) sortedFlights() []FlightEntry {
	f := slices.Clone(sc.Flights)
	slices.SortStableFunc(f, func(a, b FlightEntry) int {
		return cmp.Compare(a.SpawnTime, b.SpawnTime)
	})
	return f
}
