// cmd/atcsim/main_test.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atcflow/atcflow/log"
	"github.com/atcflow/atcflow/rand"
	"github.com/atcflow/atcflow/sim"
	"github.com/atcflow/atcflow/taxi"
)

// execute runs the CLI with args and returns its standard output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-dir", t.TempDir()))
	err := Execute(context.Background())
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	out, err := execute(t, "check")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !strings.Contains(out, "ok (2 runways, 5 gates") {
		t.Errorf("unexpected output %q", out)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("runways: []\nmystery: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "check", bad); err == nil {
		t.Errorf("expected an error for %s", bad)
	}
}

func TestRouteCommand(t *testing.T) {
	out, err := execute(t, "route", "RWY1_EXIT", "G5")
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if !strings.HasPrefix(out, "RWY1_EXIT -> T_A -> T_B -> T_C -> T_D -> G5") {
		t.Errorf("unexpected route %q", out)
	}

	_, err = execute(t, "route", "RWY1_EXIT", "G5", "--block", "T_B")
	if !errors.Is(err, taxi.ErrRouteNotFound) {
		t.Errorf("expected ErrRouteNotFound, got %v", err)
	}
	routeBlocked = nil
}

func TestScheduleCommand(t *testing.T) {
	out, err := execute(t, "schedule", "-n", "4", "--csv")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	entries, err := sim.ReadScheduleCSV(strings.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a schedule: %v\n%s", err, out)
	}
	if len(entries) != 4 {
		t.Errorf("expected 4 entries, got %d", len(entries))
	}
	planFlags.csv = false
}

func TestOptimizeCommand(t *testing.T) {
	out, err := execute(t, "optimize", "-n", "5", "--generations", "5")
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if !strings.Contains(out, "FLIGHT") || !strings.Contains(out, "cost ") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestOptimizeCommandFitness(t *testing.T) {
	defer func() { planFlags.fitness = "weighted" }()

	out, err := execute(t, "optimize", "-n", "4", "--generations", "3", "--fitness", "inverse")
	if err != nil {
		t.Fatalf("optimize --fitness inverse: %v", err)
	}
	if !strings.Contains(out, "cost ") {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := execute(t, "optimize", "-n", "4", "--fitness", "fastest"); err == nil ||
		!strings.Contains(err.Error(), "unknown fitness") {
		t.Errorf("expected unknown fitness error, got %v", err)
	}
}

func TestScenarioCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "two.csv")
	csv := "flight_id,type,fuel,weather,emergency,spawn_time,edge\n" +
		"E1,B737,50,0,true,0,left\n" +
		"E2,A320,50,0,true,3,top\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}
	jsonPath := filepath.Join(dir, "report.json")

	out, err := execute(t, "scenario", path, "--json", jsonPath, "--expect", "total_flights=2:2")
	if err != nil {
		t.Fatalf("scenario: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"total_flights": 2`) || !strings.Contains(out, "two: PASS") {
		t.Errorf("unexpected output %q", out)
	}
	if b, err := os.ReadFile(jsonPath); err != nil || !bytes.Contains(b, []byte(`"landings"`)) {
		t.Errorf("report file: %v %q", err, b)
	}

	_, err = execute(t, "scenario", path, "--expect", "total_flights=1")
	if err == nil {
		t.Errorf("expected the KPI check to fail")
	}
	scenarioFlags.expect, scenarioFlags.jsonOut = nil, ""
}

func TestParseExpectations(t *testing.T) {
	m, err := parseExpectations([]string{"avg_wait_time=60", "runway_utilization.RWY1=0.1:0.9"})
	if err != nil {
		t.Fatal(err)
	}
	if m["avg_wait_time"].Max != 60 || !m["runway_utilization.RWY1"].Range {
		t.Errorf("unexpected thresholds %+v", m)
	}
	for _, bad := range []string{"landings", "=3", "landings=x"} {
		if _, err := parseExpectations([]string{bad}); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestRunCommand(t *testing.T) {
	s, err := sim.NewSim(sim.DefaultAirportConfig(), sim.Options{Rand: rand.New(3)}, log.Discard())
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer

	for _, tc := range []struct {
		line   string
		output string
		err    error
	}{
		{line: "rate 2", output: "rate 2.0"},
		{line: "pause", output: "paused"},
		{line: "PAUSE", output: "resumed"},
		{line: "status", output: "0 flights"},
		{line: "close rwy1 30"},
		{line: "close RWY9 30", err: sim.ErrUnknownRunway},
		{line: "close RWY1", err: errUsage},
		{line: "weather 0.7"},
		{line: "weather clear"},
		{line: "weather 3", err: errUsage},
		{line: "grant F2001", err: sim.ErrUnknownFlight},
		{line: "divert F2001", err: sim.ErrUnknownFlight},
		{line: "hold", err: errUsage},
		{line: "land F2001", err: errUsage},
	} {
		out.Reset()
		quit, err := runCommand(s, &out, tc.line)
		if quit {
			t.Errorf("%q: unexpected quit", tc.line)
		}
		if tc.err != nil && !errors.Is(err, tc.err) {
			t.Errorf("%q: expected %v, got %v", tc.line, tc.err, err)
		} else if tc.err == nil && err != nil {
			t.Errorf("%q: %v", tc.line, err)
		}
		if !strings.Contains(out.String(), tc.output) {
			t.Errorf("%q: output %q does not contain %q", tc.line, out.String(), tc.output)
		}
	}

	if quit, err := runCommand(s, &out, "quit"); !quit || err != nil {
		t.Errorf("quit: got %v, %v", quit, err)
	}
}
