// sim/kpi.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"time"
)

// KPIs are running totals kept by the engine.
type KPIs struct {
	Spawned        int
	RejectedSpawns int
	// Landings counts granted landing clearances.
	Landings           int
	Diversions         int
	Holds              int
	Completed          int
	Removed            int
	EmergenciesHandled int
	SchedulingFailures int
	DegradedParkings   int
	// TaxiConflicts counts ticks in which a flight had to wait for a
	// taxiway segment held by another.
	TaxiConflicts int
	// TotalWait and MaxWait are over the time from spawn to landing
	// clearance.
	TotalWait time.Duration
	MaxWait   time.Duration
	// RunwayBusy is the time each runway has been reserved by landing
	// clearances.
	RunwayBusy map[string]time.Duration
}

func (k KPIs) AverageWait() time.Duration {
	if k.Landings == 0 {
		return 0
	}
	return k.TotalWait / time.Duration(k.Landings)
}

// RunwayUtilization returns the fraction of elapsed during which the
// runway was reserved by landings.
func (k KPIs) RunwayUtilization(runway string, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return min(1, float64(k.RunwayBusy[runway])/float64(elapsed))
}

func (k KPIs) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("spawned", k.Spawned),
		slog.Int("landings", k.Landings),
		slog.Int("diversions", k.Diversions),
		slog.Int("completed", k.Completed),
		slog.Int("emergencies_handled", k.EmergenciesHandled),
		slog.Int("scheduling_failures", k.SchedulingFailures),
		slog.Int("taxi_conflicts", k.TaxiConflicts),
		slog.Duration("avg_wait", k.AverageWait()),
		slog.Duration("max_wait", k.MaxWait))
}
