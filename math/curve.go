// math/curve.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

// QuadBezier samples the quadratic Bézier curve with control points
// p0, p1, p2 at steps+1 evenly spaced parameter values, so the result
// starts at p0 and ends at p2.
func QuadBezier(p0, p1, p2 Point2f, steps int) []Point2f {
	if steps < 1 {
		steps = 1
	}
	pts := make([]Point2f, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float32(i) / float32(steps)
		a, b, c := (1-t)*(1-t), 2*(1-t)*t, t*t
		pts = append(pts, Point2f{
			a*p0[0] + b*p1[0] + c*p2[0],
			a*p0[1] + b*p1[1] + c*p2[1],
		})
	}
	return pts
}

// ChaikinSmooth applies the given number of rounds of Chaikin corner
// cutting to the polyline. Each round replaces every segment with points
// at 1/4 and 3/4 of its length. The first and last points are kept so the
// smoothed path still ends exactly where the original did.
func ChaikinSmooth(pts []Point2f, iterations int) []Point2f {
	if len(pts) < 3 {
		return append([]Point2f(nil), pts...)
	}

	p := pts
	for range iterations {
		q := make([]Point2f, 0, 2*len(p))
		q = append(q, p[0])
		for i := 0; i+1 < len(p); i++ {
			q = append(q, Lerp2f(0.25, p[i], p[i+1]), Lerp2f(0.75, p[i], p[i+1]))
		}
		q = append(q, p[len(p)-1])
		p = q
	}
	if iterations <= 0 {
		p = append([]Point2f(nil), pts...)
	}
	return p
}

// PolylineLength returns the summed length of the polyline's segments.
func PolylineLength(pts []Point2f) float32 {
	var l float32
	for i := 1; i < len(pts); i++ {
		l += Distance2f(pts[i-1], pts[i])
	}
	return l
}
