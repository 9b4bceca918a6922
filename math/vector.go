// math/vector.go
// Copyright(c) 2025 atcflow contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

// Point2f is a position or direction in world units. It is an alias so
// that literal [2]float32 values (and YAML/JSON two-element arrays) can
// be used directly.
type Point2f = [2]float32

// a+b
func Add2f(a, b Point2f) Point2f {
	return Point2f{a[0] + b[0], a[1] + b[1]}
}

// a-b
func Sub2f(a, b Point2f) Point2f {
	return Point2f{a[0] - b[0], a[1] - b[1]}
}

// a*s
func Scale2f(a Point2f, s float32) Point2f {
	return Point2f{s * a[0], s * a[1]}
}

func Mid2f(a, b Point2f) Point2f {
	return Scale2f(Add2f(a, b), 0.5)
}

// Lerp2f returns the point x of the way from a to b.
func Lerp2f(x float32, a, b Point2f) Point2f {
	return Point2f{Lerp(x, a[0], b[0]), Lerp(x, a[1], b[1])}
}

func Length2f(v Point2f) float32 {
	return Sqrt(v[0]*v[0] + v[1]*v[1])
}

func Distance2f(a, b Point2f) float32 {
	return Length2f(Sub2f(a, b))
}

// Normalize2f returns v scaled to unit length; the zero vector is
// returned unchanged.
func Normalize2f(v Point2f) Point2f {
	l := Length2f(v)
	if l == 0 {
		return Point2f{}
	}
	return Scale2f(v, 1/l)
}

// MoveToward returns the point reached by moving from p toward target by
// at most step; it never overshoots.
func MoveToward(p, target Point2f, step float32) Point2f {
	d := Sub2f(target, p)
	l := Length2f(d)
	if l <= step || l == 0 {
		return target
	}
	return Add2f(p, Scale2f(d, step/l))
}

// PointOnCircle returns the point at the given angle (degrees) on a
// circle of radius r around center.
func PointOnCircle(center Point2f, r, angle float32) Point2f {
	a := Radians(angle)
	return Point2f{center[0] + r*Cos(a), center[1] + r*Sin(a)}
}
