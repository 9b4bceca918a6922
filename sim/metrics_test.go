// sim/metrics_test.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := r.Collect(context.Background(), &rm); err != nil {
		t.Fatal(err)
	}
	m := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			m[mm.Name] = mm
		}
	}
	return m
}

func sumInt64(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s: data is %T, not an int64 sum", m.Name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestEngineMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	cfg := DefaultAirportConfig()
	cfg.MaxFlights, cfg.MaxActiveFlights = 2, 2
	s := makeTestSim(t, cfg, Options{MeterProvider: mp, Authority: alwaysGrant})

	id := mustSpawn(t, s, FlightSpec{PreferredRunway: "RWY1", Edge: EdgeLeft})
	mustSpawn(t, s, FlightSpec{PreferredRunway: "RWY2", Edge: EdgeRight})
	if _, err := s.Spawn(FlightSpec{}); err == nil {
		t.Fatal("expected the third spawn to be rejected")
	}
	tickUntil(t, s, 5000, func(snap Snapshot) bool { return flightState(id)(snap) == Landing })

	m := collect(t, reader)
	if got := sumInt64(t, m["atcflow.flights.spawned"]); got != 2 {
		t.Errorf("spawned = %d, want 2", got)
	}
	if got := sumInt64(t, m["atcflow.flights.rejected"]); got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}
	if got := sumInt64(t, m["atcflow.decisions"]); got < 1 {
		t.Errorf("decisions = %d, want at least one grant", got)
	}

	hist, ok := m["atcflow.flights.wait"].Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("wait data is %T", m["atcflow.flights.wait"].Data)
	}
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count == 0 {
		t.Error("no wait times recorded")
	}
}

func TestNilMeterProvider(t *testing.T) {
	// Metrics are optional; the engine must work without a provider.
	s := makeTestSim(t, DefaultAirportConfig(), Options{})
	mustSpawn(t, s, FlightSpec{})
	s.Tick(testDt)
}
