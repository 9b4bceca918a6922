// sim/config_test.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/atcflow/atcflow/sched"
	"github.com/atcflow/atcflow/taxi"
	"github.com/atcflow/atcflow/util"
)

func TestDefaultAirportConfigValid(t *testing.T) {
	cfg := DefaultAirportConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	if rc, ok := cfg.Runway("RWY2"); !ok || rc.Length() != 760 {
		t.Errorf("RWY2 = %+v, %v; want length 760", rc, ok)
	}
	if g, ok := cfg.Gate("G5"); !ok || g.Size != sched.SizeSmall {
		t.Errorf("G5 = %+v, %v; want small gate", g, ok)
	}
	if s := cfg.SizeOf("A380"); s != sched.SizeLarge {
		t.Errorf("A380 size = %q, want large", s)
	}
	if s := cfg.SizeOf("C172"); s != sched.SizeAny {
		t.Errorf("unknown type size = %q, want any", s)
	}
}

func TestValidateGraphReferences(t *testing.T) {
	cfg := DefaultAirportConfig()
	cfg.Runways[0].ExitNode = "NOWHERE"
	cfg.Gates[2].Node = "G99"
	cfg.TaxiEdges["T_A"] = append(cfg.TaxiEdges["T_A"], "GHOST")

	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidGraphReference) {
		t.Fatalf("got %v, want ErrInvalidGraphReference", err)
	}
	if errors.Is(err, ErrInvalidConfig) {
		t.Errorf("graph reference errors should not be reported as ErrInvalidConfig")
	}
	for _, s := range []string{"NOWHERE", "G99", "GHOST", "runways[0] RWY1"} {
		if !strings.Contains(err.Error(), s) {
			t.Errorf("error %q does not mention %q", err, s)
		}
	}

	if _, err := NewSim(cfg, Options{}, nil); !errors.Is(err, ErrInvalidGraphReference) {
		t.Errorf("NewSim: got %v, want ErrInvalidGraphReference", err)
	}
}

func TestValidateInvalidConfig(t *testing.T) {
	for name, mod := range map[string]func(*AirportConfig){
		"no runways":          func(c *AirportConfig) { c.Runways = nil },
		"duplicate gate":      func(c *AirportConfig) { c.Gates[1].ID = c.Gates[0].ID },
		"bad size":            func(c *AirportConfig) { c.Gates[0].Size = "jumbo" },
		"active above total":  func(c *AirportConfig) { c.MaxActiveFlights = c.MaxFlights + 1 },
		"divert above grant":  func(c *AirportConfig) { c.Decision.DivertThreshold = 0.9 },
		"mutation rate":       func(c *AirportConfig) { c.Sequencing.MutationRate = 2 },
		"negative separation": func(c *AirportConfig) { c.RunwaySeparation = util.Duration(-time.Second) },
		"zero taxi speed":     func(c *AirportConfig) { c.Motion.TaxiSpeed = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultAirportConfig()
			mod(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("got %v, want ErrInvalidConfig", err)
			}
		})
	}
}

const testYAMLConfig = `
name: Tiny Field
bounds: {p0: [0, 0], p1: [500, 400]}
runways:
  - id: "09"
    start: [50, 100]
    end: [450, 100]
    threshold: [70, 100]
    funnel_mid: [250, 200]
    exit_node: EXIT
gates:
  - {id: A1, size: medium, node: A1}
taxi_nodes:
  EXIT: [430, 120]
  TWY: [250, 200]
  A1: [250, 300]
taxi_edges:
  EXIT: [TWY]
  TWY: [A1]
min_separation: 90
runway_separation: 4s
motion:
  gate_dwell: 3
`

func TestParseAirportConfigYAML(t *testing.T) {
	cfg, err := ParseAirportConfig([]byte(testYAMLConfig), true)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "Tiny Field" || len(cfg.Runways) != 1 || cfg.Runways[0].ExitNode != "EXIT" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MinSeparation != 90 {
		t.Errorf("min_separation = %v, want 90", cfg.MinSeparation)
	}
	if cfg.RunwaySeparation.D() != 4*time.Second {
		t.Errorf("runway_separation = %v, want 4s", cfg.RunwaySeparation)
	}
	if cfg.Motion.GateDwell.D() != 3*time.Second {
		t.Errorf("gate_dwell = %v, want 3s", cfg.Motion.GateDwell)
	}
	// Unspecified values keep their defaults.
	def := DefaultTuning()
	if cfg.Motion.HoldRadius != def.Motion.HoldRadius || cfg.MaxFlights != def.MaxFlights {
		t.Errorf("defaults not preserved: hold radius %v, max flights %d", cfg.Motion.HoldRadius, cfg.MaxFlights)
	}
}

func TestParseAirportConfigUnknownKeys(t *testing.T) {
	if _, err := ParseAirportConfig([]byte("name: x\nrunwayz: []\n"), true); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("yaml: got %v, want ErrInvalidConfig", err)
	}
	_, err := ParseAirportConfig([]byte(`{"name": "x", "motion": {"hold_radious": 3}}`), false)
	if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), "hold_radious") {
		t.Errorf("json: got %v, want ErrInvalidConfig naming hold_radious", err)
	}
}

func TestLoadAirportConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airport.json")
	contents := `{
  "name": "Json Field",
  "bounds": {"p0": [0, 0], "p1": [300, 300]},
  "runways": [{"id": "R", "start": [10, 10], "end": [290, 10], "threshold": [20, 10],
               "funnel_mid": [150, 100], "exit_node": "X"}],
  "gates": [{"id": "G", "size": "large", "node": "G"}],
  "taxi_nodes": {"X": [280, 30], "G": [150, 200]},
  "taxi_edges": {"X": ["G"]},
  "runway_separation": "5s"
}`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadAirportConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Name != "Json Field" || cfg.RunwaySeparation.D() != 5*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if nodes := cfg.TaxiEdges[taxi.NodeID("X")]; len(nodes) != 1 || nodes[0] != "G" {
		t.Errorf("taxi edges = %v", cfg.TaxiEdges)
	}

	bad := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(bad, []byte("gates: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAirportConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
}
