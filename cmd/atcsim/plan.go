// cmd/atcsim/plan.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/atcflow/atcflow/log"
	"github.com/atcflow/atcflow/math"
	"github.com/atcflow/atcflow/rand"
	"github.com/atcflow/atcflow/seqopt"
	"github.com/atcflow/atcflow/sim"
	"github.com/atcflow/atcflow/taxi"
	"github.com/atcflow/atcflow/util"

	"github.com/spf13/cobra"
)

var routeBlocked []string

var routeCmd = &cobra.Command{
	Use:   "route <start> <goal>",
	Short: "Find the shortest taxi route between two nodes",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newPlanningSim(newLogger())
		if err != nil {
			return err
		}
		blocked := util.MapSlice(routeBlocked, func(n string) taxi.NodeID { return taxi.NodeID(n) })
		path, err := s.PlanRoute(taxi.NodeID(args[0]), taxi.NodeID(args[1]), blocked)
		if err != nil {
			return err
		}
		printRoute(cmd.OutOrStdout(), s.Config(), path)
		return nil
	},
}

var planFlags struct {
	flights       int
	emergencyProb float32
	csv           bool
	params        seqopt.Params
	fitness       string
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Assign runways, gates and slots to random arrivals",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Optimize the landing sequence of random arrivals",
	Args:  cobra.NoArgs,
	RunE:  runOptimize,
}

func init() {
	routeCmd.Flags().StringArrayVar(&routeBlocked, "block", nil, "node to avoid (repeatable)")

	for _, c := range []*cobra.Command{scheduleCmd, optimizeCmd} {
		c.Flags().IntVarP(&planFlags.flights, "flights", "n", 8, "number of random arrivals")
		c.Flags().Float32Var(&planFlags.emergencyProb, "emergency", 0.1, "probability that an arrival is an emergency")
	}
	scheduleCmd.Flags().BoolVar(&planFlags.csv, "csv", false, "write the schedule as CSV")

	d := seqopt.DefaultParams()
	f := optimizeCmd.Flags()
	f.IntVar(&planFlags.params.PopulationSize, "population", d.PopulationSize, "population size")
	f.IntVar(&planFlags.params.Generations, "generations", d.Generations, "number of generations")
	f.Float32Var(&planFlags.params.MutationRate, "mutation", d.MutationRate, "per-child mutation probability")
	f.StringVar(&planFlags.fitness, "fitness", "weighted", "sequence cost: weighted (position x priority) or inverse (position x (1-priority))")
}

func newPlanningSim(lg *log.Logger) (*sim.Sim, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return sim.NewSim(cfg, sim.Options{Rand: rand.New(seed)}, lg)
}

// spawnRandom adds n random arrivals, stopping quietly at the engine's
// capacity.
func spawnRandom(s *sim.Sim, n int, emergencyProb float32) ([]sim.FlightID, error) {
	r := rand.New(seed)
	var ids []sim.FlightID
	for range n {
		id, err := s.Spawn(sim.RandomFlightSpec(r, emergencyProb))
		if errors.Is(err, sim.ErrCapacityExceeded) {
			break
		} else if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	s, err := newPlanningSim(newLogger())
	if err != nil {
		return err
	}
	if _, err := spawnRandom(s, planFlags.flights, planFlags.emergencyProb); err != nil {
		return err
	}
	if _, err := s.RunScheduler(); err != nil {
		return err
	}

	entries := s.ExportSchedule()
	out := cmd.OutOrStdout()
	if planFlags.csv {
		return sim.WriteScheduleCSV(out, entries)
	}

	snap := s.Snapshot()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tFLIGHT\tTYPE\tRUNWAY\tGATE\tPRIORITY")
	for _, e := range entries {
		f, _ := snap.Flight(e.Flight)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.2f\n", e.Slot, e.Flight, f.Type, e.Runway, e.Gate, f.Priority)
	}
	return tw.Flush()
}

func sequenceFitness(name string) (func(map[sim.FlightID]sim.SequenceFlight) func([]sim.FlightID) float64, error) {
	switch name {
	case "weighted":
		return sim.WeightedWaitFitness, nil
	case "inverse":
		return sim.InverseWeightedWaitFitness, nil
	default:
		return nil, fmt.Errorf("%q: unknown fitness, expected weighted or inverse", name)
	}
}

func runOptimize(cmd *cobra.Command, args []string) error {
	makeFitness, err := sequenceFitness(planFlags.fitness)
	if err != nil {
		return err
	}
	s, err := newPlanningSim(newLogger())
	if err != nil {
		return err
	}
	ids, err := spawnRandom(s, planFlags.flights, planFlags.emergencyProb)
	if err != nil {
		return err
	}
	snap := s.Snapshot()
	info := make(map[sim.FlightID]sim.SequenceFlight)
	for _, id := range ids {
		f, _ := snap.Flight(id)
		info[id] = sim.SequenceFlight{Priority: f.Priority, Emergency: f.Emergency}
	}
	fitness := makeFitness(info)

	best, err := s.OptimizeSequence(ids, fitness, planFlags.params)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFLIGHT\tPRIORITY\tEMERGENCY")
	for i, id := range best {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%v\n", i+1, id, info[id].Priority, info[id].Emergency)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "cost %.2f (spawn order %.2f)\n", fitness(best), fitness(ids))
	return nil
}

func printRoute(w io.Writer, cfg sim.AirportConfig, path []taxi.NodeID) {
	names := make([]string, len(path))
	pts := make([]math.Point2f, len(path))
	for i, n := range path {
		names[i] = string(n)
		pts[i] = cfg.TaxiNodes[n]
	}
	fmt.Fprintf(w, "%s (%.0f)\n", strings.Join(names, " -> "), math.PolylineLength(pts))
}
