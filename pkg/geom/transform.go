// Package geom provides the rigid-body math used to snap pieces together.
// Rotations, rigid transforms and oriented boxes are expressed on sdfx
// vectors so that piece geometry and kernel solids share one vocabulary.
package geom

import (
	"math"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Epsilon is the length below which a vector is treated as degenerate.
const Epsilon = 1e-9

// Axis unit vectors.
var (
	UnitX = v3.Vec{X: 1}
	UnitY = v3.Vec{Y: 1}
	UnitZ = v3.Vec{Z: 1}
)

// Rotation is an orthonormal 3x3 rotation stored as its columns, i.e. the
// images of the local X, Y and Z axes.
type Rotation struct {
	X v3.Vec `json:"x"`
	Y v3.Vec `json:"y"`
	Z v3.Vec `json:"z"`
}

// IdentityRotation returns the rotation that maps every axis to itself.
func IdentityRotation() Rotation {
	return Rotation{X: UnitX, Y: UnitY, Z: UnitZ}
}

// Apply rotates v.
func (r Rotation) Apply(v v3.Vec) v3.Vec {
	return r.X.MulScalar(v.X).Add(r.Y.MulScalar(v.Y)).Add(r.Z.MulScalar(v.Z))
}

// Mul returns the rotation that applies q first, then r.
func (r Rotation) Mul(q Rotation) Rotation {
	return Rotation{X: r.Apply(q.X), Y: r.Apply(q.Y), Z: r.Apply(q.Z)}
}

// Transpose returns the inverse rotation.
func (r Rotation) Transpose() Rotation {
	return Rotation{
		X: v3.Vec{X: r.X.X, Y: r.Y.X, Z: r.Z.X},
		Y: v3.Vec{X: r.X.Y, Y: r.Y.Y, Z: r.Z.Y},
		Z: v3.Vec{X: r.X.Z, Y: r.Y.Z, Z: r.Z.Z},
	}
}

// Columns returns the rotated axes in X, Y, Z order.
func (r Rotation) Columns() [3]v3.Vec {
	return [3]v3.Vec{r.X, r.Y, r.Z}
}

// LookRotation returns the rotation that maps local +Z onto forward and
// local +Y onto the component of up orthogonal to forward. When up is
// parallel to forward a fallback up is chosen from the world axes, so the
// result is always a proper rotation. forward must be non-zero.
func LookRotation(forward, up v3.Vec) Rotation {
	z := forward.Normalize()
	x := up.Cross(z)
	if x.Length() < Epsilon {
		x = fallbackUp(z).Cross(z)
	}
	x = x.Normalize()
	y := z.Cross(x)
	return Rotation{X: x, Y: y, Z: z}
}

// fallbackUp picks the world axis least aligned with z.
func fallbackUp(z v3.Vec) v3.Vec {
	ax, ay, az := math.Abs(z.X), math.Abs(z.Y), math.Abs(z.Z)
	switch {
	case ay <= ax && ay <= az:
		return UnitY
	case az <= ax:
		return UnitZ
	default:
		return UnitX
	}
}

// EulerRotation builds a rotation from angles in degrees, applied X first,
// then Y, then Z.
func EulerRotation(deg v3.Vec) Rotation {
	return axisRotation(UnitZ, deg.Z).Mul(axisRotation(UnitY, deg.Y)).Mul(axisRotation(UnitX, deg.X))
}

// axisRotation rotates by deg degrees about a unit axis (right hand rule).
func axisRotation(axis v3.Vec, deg float64) Rotation {
	if deg == 0 {
		return IdentityRotation()
	}
	a := deg * math.Pi / 180
	c, s := math.Cos(a), math.Sin(a)
	rot := func(v v3.Vec) v3.Vec {
		// Rodrigues: v cos + (k x v) sin + k (k.v)(1 - cos)
		return v.MulScalar(c).Add(axis.Cross(v).MulScalar(s)).Add(axis.MulScalar(axis.Dot(v) * (1 - c)))
	}
	return Rotation{X: rot(UnitX), Y: rot(UnitY), Z: rot(UnitZ)}
}

// Transform is a rigid transform: rotate, then translate.
type Transform struct {
	Rot Rotation `json:"rot"`
	Pos v3.Vec   `json:"pos"`
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{Rot: IdentityRotation()}
}

// Translation returns a pure translation.
func Translation(p v3.Vec) Transform {
	return Transform{Rot: IdentityRotation(), Pos: p}
}

// Point maps a local position to the parent frame.
func (t Transform) Point(p v3.Vec) v3.Vec {
	return t.Rot.Apply(p).Add(t.Pos)
}

// Dir maps a local direction to the parent frame. Translation is ignored.
func (t Transform) Dir(d v3.Vec) v3.Vec {
	return t.Rot.Apply(d)
}

// Mul returns the transform that applies u first, then t.
func (t Transform) Mul(u Transform) Transform {
	return Transform{Rot: t.Rot.Mul(u.Rot), Pos: t.Point(u.Pos)}
}

// Inverse returns the transform that undoes t.
func (t Transform) Inverse() Transform {
	inv := t.Rot.Transpose()
	return Transform{Rot: inv, Pos: inv.Apply(t.Pos).Neg()}
}

// Frame is an attachment frame: a position with a heading and an up vector.
type Frame struct {
	Pos     v3.Vec `json:"pos"`
	Heading v3.Vec `json:"heading"`
	Up      v3.Vec `json:"up"`
}

// In maps f through t.
func (f Frame) In(t Transform) Frame {
	return Frame{Pos: t.Point(f.Pos), Heading: t.Dir(f.Heading), Up: t.Dir(f.Up)}
}

// Align returns the transform that moves a body owning the local frame
// local so that it meets target face to face: the two headings are
// opposed, the body's up is turned towards target.Up, and the body is
// pushed gap units away from the target along the axis of its own
// heading (negative gap pushes the body into the target).
func Align(local, target Frame, gap float64) Transform {
	from := LookRotation(local.Heading, local.Up)
	to := LookRotation(target.Heading.Neg(), target.Up)
	rot := to.Mul(from.Transpose())

	heading := rot.Apply(local.Heading).Normalize()
	anchor := target.Pos.Sub(heading.MulScalar(gap))
	return Transform{Rot: rot, Pos: anchor.Sub(rot.Apply(local.Pos))}
}
