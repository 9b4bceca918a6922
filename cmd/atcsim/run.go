// cmd/atcsim/run.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/atcflow/atcflow/rand"
	"github.com/atcflow/atcflow/sim"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runFlags struct {
	rate        float32
	duration    time.Duration
	period      time.Duration
	autoSpawn   bool
	interactive bool
	snapshot    string
	status      time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation in real time",
	Long: `Run the simulation in real time, printing engine events as they happen.

With --interactive, landing requests are printed and resolved from
commands read on standard input:

  grant <flight>     clear the flight to land
  hold <flight>      send the flight to a holding pattern
  divert <flight>    divert the flight
  close <runway> <seconds>
  weather <severity> | weather clear
  rate <factor>
  pause
  status
  quit`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.Float32Var(&runFlags.rate, "rate", 1, "simulation rate")
	f.DurationVar(&runFlags.duration, "duration", 0, "stop after this much wall-clock time (0 runs until interrupted)")
	f.DurationVar(&runFlags.period, "period", 100*time.Millisecond, "wall-clock time between ticks")
	f.BoolVar(&runFlags.autoSpawn, "auto-spawn", true, "spawn random arrivals")
	f.BoolVar(&runFlags.interactive, "interactive", false, "resolve landing requests from standard input")
	f.StringVar(&runFlags.snapshot, "snapshot", "", "save a snapshot to this file on exit")
	f.DurationVar(&runFlags.status, "status", 10*time.Second, "interval between status lines (0 disables them)")
}

func runRun(cmd *cobra.Command, args []string) error {
	lg := newLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := sim.Options{
		Rand:         rand.New(seed),
		AutoSpawn:    runFlags.autoSpawn,
		AutoSchedule: true,
	}
	var authority *sim.InteractiveAuthority
	if runFlags.interactive {
		authority = sim.NewInteractiveAuthority(16)
		opts.Authority = authority
	}

	s, err := sim.NewSim(cfg, opts, lg)
	if err != nil {
		return err
	}
	s.SetSimRate(runFlags.rate)

	ctx := cmd.Context()
	if runFlags.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFlags.duration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := cmd.OutOrStdout()
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return s.Run(ctx, runFlags.period)
	})

	eg.Go(func() error {
		return printEvents(ctx, s, out, runFlags.status)
	})

	if authority != nil {
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case req := <-authority.Requests():
					fmt.Fprintf(out, "%s requests %s: priority %.2f fuel %.0f%% weather %.2f emergency %v\n",
						req.Flight, req.Runway, req.Priority, req.FuelPct, req.WeatherSeverity, req.Emergency)
				}
			}
		})

		lines := readLines(cmd.InOrStdin())
		eg.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					quit, err := runCommand(s, out, line)
					if err != nil {
						fmt.Fprintf(out, "%s: %v\n", line, err)
					}
					if quit {
						cancel()
						return nil
					}
				}
			}
		})
	}

	err = eg.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	k := s.KPIs()
	fmt.Fprintf(out, "%v simulated: %d landings, %d diversions, %d completed, average wait %v\n",
		s.SimTime().Round(time.Second), k.Landings, k.Diversions, k.Completed, k.AverageWait().Round(time.Second))

	if runFlags.snapshot != "" {
		if serr := s.SaveSnapshot(runFlags.snapshot); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	return err
}

// readLines delivers the lines of r on the returned channel. The reader
// is not stopped on exit; it blocks on r until the process exits.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				ch <- line
			}
		}
	}()
	return ch
}

func printEvents(ctx context.Context, s *sim.Sim, w io.Writer, statusInterval time.Duration) error {
	sub := s.Subscribe()
	defer sub.Unsubscribe()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	var lastStatus time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, ev := range sub.Get() {
				fmt.Fprintln(w, ev.String())
			}
			if statusInterval > 0 && time.Since(lastStatus) >= statusInterval {
				printStatus(s, w)
				lastStatus = time.Now()
			}
		}
	}
}

func printStatus(s *sim.Sim, w io.Writer) {
	snap := s.Snapshot()
	counts := make(map[sim.FlightState]int)
	for _, f := range snap.Flights {
		counts[f.State]++
	}
	var parts []string
	for st := sim.Spawning; st <= sim.Removed; st++ {
		if n := counts[st]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", st, n))
		}
	}
	paused := ""
	if snap.Paused {
		paused = " (paused)"
	}
	fmt.Fprintf(w, "[%v x%.1f%s] %d flights: %s | landings %d\n", snap.Time.Round(time.Second),
		snap.SimRate, paused, len(snap.Flights), strings.Join(parts, ", "), snap.KPIs.Landings)
}

var errUsage = errors.New("usage")

// runCommand executes a single interactive command line. It returns true
// if the user asked to quit.
func runCommand(s *sim.Sim, w io.Writer, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "grant", "hold", "divert":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: %s <flight>", errUsage, cmd)
		}
		id := sim.FlightID(strings.ToUpper(args[0]))
		if cmd == "divert" {
			// A flight with no pending request can still be diverted.
			err := s.ResolveDecision(id, sim.Divert)
			if errors.Is(err, sim.ErrNoPendingDecision) {
				err = s.DivertFlight(id)
			}
			return false, err
		}
		o, err := sim.ParseOutcome(cmd)
		if err != nil {
			return false, err
		}
		return false, s.ResolveDecision(id, o)

	case "close":
		if len(args) != 2 {
			return false, fmt.Errorf("%w: close <runway> <seconds>", errUsage)
		}
		secs, err := strconv.ParseFloat(args[1], 64)
		if err != nil || secs <= 0 {
			return false, fmt.Errorf("%w: close <runway> <seconds>", errUsage)
		}
		return false, s.CloseRunway(strings.ToUpper(args[0]), time.Duration(secs*float64(time.Second)))

	case "weather":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: weather <severity>|clear", errUsage)
		}
		if args[0] == "clear" {
			s.ClearWeather()
			return false, nil
		}
		sev, err := strconv.ParseFloat(args[0], 32)
		if err != nil || sev < 0 || sev > 1 {
			return false, fmt.Errorf("%w: weather severity must be in [0,1]", errUsage)
		}
		s.SetWeather(float32(sev))
		return false, nil

	case "rate":
		if len(args) != 1 {
			return false, fmt.Errorf("%w: rate <factor>", errUsage)
		}
		r, err := strconv.ParseFloat(args[0], 32)
		if err != nil {
			return false, fmt.Errorf("%w: rate <factor>", errUsage)
		}
		fmt.Fprintf(w, "rate %.1f\n", s.SetSimRate(float32(r)))
		return false, nil

	case "pause":
		if s.TogglePause() {
			fmt.Fprintln(w, "paused")
		} else {
			fmt.Fprintln(w, "resumed")
		}
		return false, nil

	case "status":
		printStatus(s, w)
		return false, nil

	case "quit", "exit":
		return true, nil

	default:
		return false, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}
