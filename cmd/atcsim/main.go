// cmd/atcsim/main.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// atcsim drives the flight scheduling and routing engine from the
// command line: real-time runs, headless scenarios and one-off planner
// queries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/atcflow/atcflow/log"
	"github.com/atcflow/atcflow/sim"

	"github.com/spf13/cobra"
)

var (
	configFile string
	seed       int64
	logLevel   string
	logDir     string
)

var rootCmd = &cobra.Command{
	Use:   "atcsim",
	Short: "Airport arrival scheduling and taxi routing simulator",
	Long: `atcsim simulates arriving flights at a small airport: fuzzy landing
priorities, runway and gate scheduling, taxi routing and an arrival
sequencing optimizer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "airport configuration file (YAML or JSON); the built-in layout if empty")
	pf.Int64Var(&seed, "seed", 1, "random seed")
	pf.StringVar(&logLevel, "log-level", "info", "logging level: debug, info, warn, error")
	pf.StringVar(&logDir, "log-dir", "", "log directory")

	rootCmd.AddCommand(runCmd, scenarioCmd, routeCmd, scheduleCmd, optimizeCmd, checkCmd)
}

// Execute runs the root command, canceling its context on SIGINT or
// SIGTERM.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func main() {
	if err := Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "atcsim: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *log.Logger {
	return log.New(true, logLevel, logDir)
}

func loadConfig() (sim.AirportConfig, error) {
	if configFile == "" {
		return sim.DefaultAirportConfig(), nil
	}
	return sim.LoadAirportConfig(configFile)
}
