// priority/priority_test.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package priority

import (
	"testing"

	"github.com/atcflow/atcflow/math"
)

func TestEmergencyOverride(t *testing.T) {
	for _, fuel := range []float32{-10, 0, 10, 50, 99, 100, 250} {
		for _, wx := range []float32{-1, 0, 0.1, 0.5, 0.9, 1, 3} {
			if p := Score(fuel, wx, true); p != 1 {
				t.Errorf("Score(%v, %v, true) = %v, want exactly 1", fuel, wx, p)
			}
		}
	}
}

func TestLowFuelGoodWeather(t *testing.T) {
	b := Evaluate(10, 0.1, false)

	if b.FuelLow != 1 || b.FuelMedium != 0 || b.FuelHigh != 0 {
		t.Errorf("fuel memberships = %v/%v/%v, want 1/0/0", b.FuelLow, b.FuelMedium, b.FuelHigh)
	}
	if b.WeatherPoor != 0 || b.WeatherMedium != 0 || math.Abs(b.WeatherGood-0.75) > 1e-6 {
		t.Errorf("weather memberships = %v/%v/%v, want 0/0/0.75", b.WeatherPoor, b.WeatherMedium, b.WeatherGood)
	}

	// high=1, med=0, low=0.75: (0.75*0.1 + 1*0.9) / (1.75 + 1e-6)
	want := float32(0.975 / 1.750001)
	if math.Abs(b.Priority-want) > 1e-5 {
		t.Errorf("priority = %v, want %v", b.Priority, want)
	}
	if b.FuelLabel() != "low" || b.WeatherLabel() != "good" {
		t.Errorf("labels = %s/%s, want low/good", b.FuelLabel(), b.WeatherLabel())
	}
}

func TestRange(t *testing.T) {
	for fuel := float32(-20); fuel <= 120; fuel += 0.5 {
		for wx := float32(-0.2); wx <= 1.2; wx += 0.01 {
			if p := Score(fuel, wx, false); p < 0 || p > 1 {
				t.Fatalf("Score(%v, %v) = %v outside [0,1]", fuel, wx, p)
			}
		}
	}
}

func TestMonotoneInFuel(t *testing.T) {
	const tol = 1e-6
	for wx := float32(0); wx <= 1.0001; wx += 0.01 {
		prev := Score(0, wx, false)
		for fuel := float32(0.25); fuel <= 100; fuel += 0.25 {
			p := Score(fuel, wx, false)
			if p > prev+tol {
				t.Fatalf("priority increased with fuel at weather %v: %v at fuel %v -> %v at fuel %v",
					wx, prev, fuel-0.25, p, fuel)
			}
			prev = p
		}
	}
}

func TestOrdering(t *testing.T) {
	for _, c := range []struct {
		name                   string
		fuelA, wxA, fuelB, wxB float32
	}{
		{"less fuel", 8, 0.2, 90, 0.2},
		{"worse weather", 60, 0.95, 60, 0.05},
	} {
		if a, b := Score(c.fuelA, c.wxA, false), Score(c.fuelB, c.wxB, false); a <= b {
			t.Errorf("%s: expected %v > %v", c.name, a, b)
		}
	}
}

func TestMembershipShoulders(t *testing.T) {
	for _, c := range []struct {
		m    membership
		x    float32
		want float32
	}{
		{setLow, 0, 1},
		{setLow, 0.2, 0.5},
		{setLow, 0.4, 0},
		{setHigh, 0.6, 0},
		{setHigh, 0.75, 0.5},
		{setHigh, 0.9, 1},
		{setHigh, 0.95, 1},
		{setHigh, 1, 1},
		{setMedium, 0.5, 1},
		{setMedium, 0.6, 0.5},
		{setMedium, 0.7, 0},
	} {
		if got := c.m.eval(c.x); math.Abs(got-c.want) > 1e-5 {
			t.Errorf("%+v.eval(%v) = %v, want %v", c.m, c.x, got, c.want)
		}
	}
}
