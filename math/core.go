// math/core.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package math collects the float32 helpers used for the engine's
// kinematic model. Positions are in abstract world units with +y pointing
// down the screen, matching how airport layouts are authored.
package math

import (
	gomath "math"

	"golang.org/x/exp/constraints"
)

// Radians converts an angle expressed in degrees to radians.
func Radians(d float32) float32 {
	return d / 180 * gomath.Pi
}

// Degrees converts an angle expressed in radians to degrees.
func Degrees(r float32) float32 {
	return r * 180 / gomath.Pi
}

// The engine works in float32 throughout; these save the casts.

func Sin(a float32) float32 { return float32(gomath.Sin(float64(a))) }

func Cos(a float32) float32 { return float32(gomath.Cos(float64(a))) }

func Sqrt(a float32) float32 { return float32(gomath.Sqrt(float64(a))) }

// Mod returns a mod b with the result always in [0,b) for positive b.
func Mod(a, b float32) float32 {
	m := float32(gomath.Mod(float64(a), float64(b)))
	if m < 0 {
		m += b
	}
	return m
}

func Abs[V constraints.Integer | constraints.Float](x V) V {
	if x < 0 {
		return -x
	}
	return x
}

func Clamp[T constraints.Ordered](x T, low T, high T) T {
	if x < low {
		return low
	} else if x > high {
		return high
	}
	return x
}

// Lerp returns the value x of the way from a to b.
func Lerp(x, a, b float32) float32 {
	return (1-x)*a + x*b
}
