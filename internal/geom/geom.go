// Package geom holds the fixed-width vector types carried on the wire.
package geom

import "math"

// Vec3 is three float32 components.
type Vec3 struct {
	X, Y, Z float32
}

// Quat is a rotation quaternion. On the wire it is a vector4 (x, y, z, w).
type Quat struct {
	X, Y, Z, W float32
}

// Plane is a normal plus the signed distance from the origin.
type Plane struct {
	Normal   Vec3
	Constant float32
}

// Identity is the no-rotation quaternion.
func Identity() Quat {
	return Quat{W: 1}
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// IsZero reports whether every component is exactly zero.
func (v Vec3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Finite reports whether every component is a finite number.
func (v Vec3) Finite() bool {
	return finite(v.X) && finite(v.Y) && finite(v.Z)
}

func (q Quat) Finite() bool {
	return finite(q.X) && finite(q.Y) && finite(q.Z) && finite(q.W)
}

func (p Plane) Finite() bool {
	return p.Normal.Finite() && finite(p.Constant)
}

// Mul returns the Hamilton product q*o.
func (q Quat) Mul(o Quat) Quat {
	return Quat{
		X: q.W*o.X + q.X*o.W + q.Y*o.Z - q.Z*o.Y,
		Y: q.W*o.Y - q.X*o.Z + q.Y*o.W + q.Z*o.X,
		Z: q.W*o.Z + q.X*o.Y - q.Y*o.X + q.Z*o.W,
		W: q.W*o.W - q.X*o.X - q.Y*o.Y - q.Z*o.Z,
	}
}

// Normalize returns q scaled to unit length. A zero quaternion becomes Identity.
func (q Quat) Normalize() Quat {
	n := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if n == 0 {
		return Identity()
	}
	return Quat{q.X / n, q.Y / n, q.Z / n, q.W / n}
}

// Integrate advances q by angular velocity w over dt seconds.
func (q Quat) Integrate(w Vec3, dt float32) Quat {
	if w.IsZero() || dt == 0 {
		return q
	}
	spin := Quat{X: w.X, Y: w.Y, Z: w.Z}.Mul(q)
	h := 0.5 * dt
	return Quat{
		X: q.X + spin.X*h,
		Y: q.Y + spin.Y*h,
		Z: q.Z + spin.Z*h,
		W: q.W + spin.W*h,
	}.Normalize()
}

// Finite32 reports whether f is neither NaN nor infinite.
func Finite32(f float32) bool {
	return finite(f)
}

func finite(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}
