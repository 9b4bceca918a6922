// priority/priority.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package priority scores how urgently a flight needs to land, from its
// remaining fuel, the weather it is flying in, and whether it has
// declared an emergency. Scores are in [0,1]; higher is more urgent.
package priority

import (
	"log/slog"

	"github.com/atcflow/atcflow/math"
)

// Representative priority of each rule's conclusion, used for
// centroid defuzzification.
const (
	lowLevel  = 0.1
	medLevel  = 0.5
	highLevel = 0.9

	epsilon = 1e-6
)

// membership is a triangular fuzzy set over [0,1] with feet at a and c
// and its peak at b. A set whose peak sits on the edge of the domain is
// a shoulder: it stays at 1 from the peak out to that edge.
type membership struct {
	a, b, c float32
}

func (m membership) eval(x float32) float32 {
	switch {
	case m.b <= 0 && x <= m.b:
		return 1
	case m.c >= 1 && x >= m.b:
		return 1
	case x <= m.a || x >= m.c:
		return 0
	case x == m.b:
		return 1
	case x < m.b:
		return (x - m.a) / (m.b - m.a)
	default:
		return (m.c - x) / (m.c - m.b)
	}
}

// The same three sets are used for fuel urgency (over 1 - fuel fraction)
// and for weather severity.
var (
	setHigh   = membership{0.6, 0.9, 1.0}
	setMedium = membership{0.3, 0.5, 0.7}
	setLow    = membership{0.0, 0.0, 0.4}
)

// Breakdown records the intermediate values of a priority evaluation.
type Breakdown struct {
	// Fuel urgency memberships over 1 - fuel fraction. FuelLow is the
	// "running low on fuel" set.
	FuelLow, FuelMedium, FuelHigh float32
	// Weather severity memberships.
	WeatherPoor, WeatherMedium, WeatherGood float32

	// Rule strengths.
	High, Medium, Low float32

	Emergency bool
	Priority  float32
}

// Score returns the flight's priority. An emergency always scores
// exactly 1.
func Score(fuelPct, weatherSeverity float32, emergency bool) float32 {
	return Evaluate(fuelPct, weatherSeverity, emergency).Priority
}

// Evaluate computes the priority along with the memberships and rule
// strengths that produced it.
func Evaluate(fuelPct, weatherSeverity float32, emergency bool) Breakdown {
	if emergency {
		return Breakdown{Emergency: true, Priority: 1}
	}

	invFuel := 1 - math.Clamp(fuelPct/100, 0, 1)
	wx := math.Clamp(weatherSeverity, 0, 1)

	b := Breakdown{
		FuelLow:       setHigh.eval(invFuel),
		FuelMedium:    setMedium.eval(invFuel),
		FuelHigh:      setLow.eval(invFuel),
		WeatherPoor:   setHigh.eval(wx),
		WeatherMedium: setMedium.eval(wx),
		WeatherGood:   setLow.eval(wx),
	}

	// min for AND, max for OR.
	b.High = max(b.FuelLow, b.WeatherPoor)
	b.Medium = max(min(b.FuelMedium, b.WeatherMedium), min(b.FuelLow, b.WeatherMedium))
	b.Low = max(b.FuelHigh, b.WeatherGood)

	num := b.Low*lowLevel + b.Medium*medLevel + b.High*highLevel
	b.Priority = math.Clamp(num/(b.Low+b.Medium+b.High+epsilon), 0, 1)
	return b
}

// FuelLabel returns "low", "medium", or "high" describing the fuel state
// that dominated the evaluation.
func (b Breakdown) FuelLabel() string {
	return argmaxLabel(b.FuelLow, "low", b.FuelMedium, "medium", b.FuelHigh, "high")
}

// WeatherLabel returns "poor", "medium", or "good".
func (b Breakdown) WeatherLabel() string {
	return argmaxLabel(b.WeatherPoor, "poor", b.WeatherMedium, "medium", b.WeatherGood, "good")
}

func argmaxLabel(v0 float32, l0 string, v1 float32, l1 string, v2 float32, l2 string) string {
	if v0 >= v1 && v0 >= v2 {
		return l0
	} else if v1 >= v2 {
		return l1
	}
	return l2
}

func (b Breakdown) LogValue() slog.Value {
	if b.Emergency {
		return slog.GroupValue(slog.Bool("emergency", true), slog.Float64("priority", 1))
	}
	return slog.GroupValue(
		slog.String("fuel", b.FuelLabel()),
		slog.String("weather", b.WeatherLabel()),
		slog.Float64("high", float64(b.High)),
		slog.Float64("medium", float64(b.Medium)),
		slog.Float64("low", float64(b.Low)),
		slog.Float64("priority", float64(b.Priority)))
}
