// cmd/atcsim/scenario.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/atcflow/atcflow/scenario"
	"github.com/atcflow/atcflow/sim"

	"github.com/spf13/cobra"
)

var scenarioFlags struct {
	jsonOut string
	expect  []string
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file>...",
	Short: "Run scenario files headlessly and report KPIs",
	Long: `Run one or more scenario files (YAML or CSV) as fast as possible and
print the resulting KPIs as JSON. Thresholds given in the scenario's
expect section or with --expect are checked after each run; a KPI
outside its threshold makes the command fail.

An --expect value is either name=max or name=min:max, e.g.
--expect avg_wait_time=60 --expect runway_utilization.RWY1=0.1:0.9`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScenario,
}

func init() {
	f := scenarioCmd.Flags()
	f.StringVar(&scenarioFlags.jsonOut, "json", "", "also write the report(s) to this file")
	f.StringArrayVar(&scenarioFlags.expect, "expect", nil, "KPI threshold, name=max or name=min:max")
}

func parseExpectations(specs []string) (map[string]scenario.Threshold, error) {
	m := make(map[string]scenario.Threshold)
	for _, s := range specs {
		name, val, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("%q: expected name=threshold", s)
		}
		t, err := scenario.ParseThreshold(val)
		if err != nil {
			return nil, err
		}
		m[strings.TrimSpace(name)] = t
	}
	return m, nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	lg := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	extra, err := parseExpectations(scenarioFlags.expect)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var reports [][]byte
	failed := 0
	for _, path := range args {
		sc, err := scenario.Load(path)
		if err != nil {
			return err
		}

		r, err := scenario.Run(cmd.Context(), sc, cfg, scenario.RunOptions{Seed: seed}, lg)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		b, err := r.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(b))
		reports = append(reports, b)

		expect := maps.Clone(sc.Expect)
		if expect == nil {
			expect = make(map[string]scenario.Threshold)
		}
		maps.Copy(expect, extra)
		if err := r.Validate(expect, lg); err != nil {
			fmt.Fprintf(out, "%s: FAIL %v\n", sc.Name, err)
			failed++
		} else if len(expect) > 0 {
			fmt.Fprintf(out, "%s: PASS (%d checks)\n", sc.Name, len(expect))
		}
	}

	if scenarioFlags.jsonOut != "" {
		var b []byte
		if len(reports) == 1 {
			b = reports[0]
		} else {
			b = []byte("[\n" + joinReports(reports) + "\n]")
		}
		if err := os.WriteFile(scenarioFlags.jsonOut, append(b, '\n'), 0o644); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed their KPI checks", failed, len(args))
	}
	return nil
}

func joinReports(reports [][]byte) string {
	s := make([]string, len(reports))
	for i, r := range reports {
		s[i] = string(r)
	}
	return strings.Join(s, ",\n")
}

var checkCmd = &cobra.Command{
	Use:   "check [config]",
	Short: "Validate an airport configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg sim.AirportConfig
		var err error
		if len(args) == 1 {
			cfg, err = sim.LoadAirportConfig(args[0])
		} else {
			cfg, err = loadConfig()
		}
		if err != nil {
			return err
		}
		// LoadAirportConfig validates; the built-in layout is checked here.
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d runways, %d gates, %d taxi nodes)\n",
			cfg.Name, len(cfg.Runways), len(cfg.Gates), len(cfg.TaxiNodes))
		return nil
	},
}
