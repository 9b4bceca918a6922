// math/extent.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

// Extent2D is an axis-aligned box given by its minimum and maximum
// corners.
type Extent2D struct {
	P0 Point2f `json:"p0" yaml:"p0"`
	P1 Point2f `json:"p1" yaml:"p1"`
}

func (e Extent2D) Width() float32 {
	return e.P1[0] - e.P0[0]
}

func (e Extent2D) Height() float32 {
	return e.P1[1] - e.P0[1]
}

func (e Extent2D) Center() Point2f {
	return Mid2f(e.P0, e.P1)
}

// Expand grows the extent by d in all directions.
func (e Extent2D) Expand(d float32) Extent2D {
	return Extent2D{
		P0: Point2f{e.P0[0] - d, e.P0[1] - d},
		P1: Point2f{e.P1[0] + d, e.P1[1] + d},
	}
}

func (e Extent2D) Inside(p Point2f) bool {
	return p[0] >= e.P0[0] && p[0] <= e.P1[0] && p[1] >= e.P0[1] && p[1] <= e.P1[1]
}

// Empty reports whether the extent has no area.
func (e Extent2D) Empty() bool {
	return e.P1[0] <= e.P0[0] || e.P1[1] <= e.P0[1]
}
