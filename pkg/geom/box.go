package geom

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Box is a box that is axis aligned in its owner's local frame.
type Box struct {
	Center v3.Vec `json:"center"`
	Half   v3.Vec `json:"half"` // half extents, all positive
}

// NewBox returns a box with the given center and full size.
func NewBox(center, size v3.Vec) Box {
	return Box{Center: center, Half: size.MulScalar(0.5)}
}

// BoxFromSDF converts an sdfx bounding box.
func BoxFromSDF(b sdf.Box3) Box {
	return Box{
		Center: b.Min.Add(b.Max).MulScalar(0.5),
		Half:   b.Max.Sub(b.Min).MulScalar(0.5),
	}
}

// SDF returns the box as an sdfx bounding box.
func (b Box) SDF() sdf.Box3 {
	return sdf.Box3{Min: b.Center.Sub(b.Half), Max: b.Center.Add(b.Half)}
}

// Valid reports whether every half extent is positive and finite.
func (b Box) Valid() bool {
	for _, h := range []float64{b.Half.X, b.Half.Y, b.Half.Z} {
		if !(h > 0) || math.IsInf(h, 0) {
			return false
		}
	}
	return true
}

// World places the box in the parent frame of t.
func (b Box) World(t Transform) OBB {
	return OBB{
		Center: t.Point(b.Center),
		Axes:   t.Rot.Columns(),
		Half:   [3]float64{b.Half.X, b.Half.Y, b.Half.Z},
	}
}

// OBB is an oriented box in world space.
type OBB struct {
	Center v3.Vec
	Axes   [3]v3.Vec // orthonormal
	Half   [3]float64
}

// AABB returns the tightest world axis-aligned box around o.
func (o OBB) AABB() sdf.Box3 {
	var ext v3.Vec
	for i, a := range o.Axes {
		ext = ext.Add(a.Abs().MulScalar(o.Half[i]))
	}
	return sdf.Box3{Min: o.Center.Sub(ext), Max: o.Center.Add(ext)}
}

// radius is the projection of o's half extents onto a unit axis.
func (o OBB) radius(axis v3.Vec) float64 {
	var r float64
	for i, a := range o.Axes {
		r += o.Half[i] * math.Abs(a.Dot(axis))
	}
	return r
}

// Overlap reports whether a and b interpenetrate by more than tol along
// every separating axis candidate (the three face normals of each box and
// the nine edge cross products). Boxes that merely touch, or overlap by
// at most tol, do not intersect.
func Overlap(a, b OBB, tol float64) bool {
	d := b.Center.Sub(a.Center)
	penetrates := func(axis v3.Vec) bool {
		l := axis.Length()
		if l < Epsilon {
			// parallel edges, covered by the face axes
			return true
		}
		axis = axis.MulScalar(1 / l)
		depth := a.radius(axis) + b.radius(axis) - math.Abs(d.Dot(axis))
		return depth > tol
	}
	for i := 0; i < 3; i++ {
		if !penetrates(a.Axes[i]) || !penetrates(b.Axes[i]) {
			return false
		}
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if !penetrates(a.Axes[i].Cross(b.Axes[j])) {
				return false
			}
		}
	}
	return true
}

// BoxesOverlap reports whether any box of as placed by ta overlaps any box
// of bs placed by tb.
func BoxesOverlap(as []Box, ta Transform, bs []Box, tb Transform, tol float64) bool {
	for _, a := range as {
		wa := a.World(ta)
		for _, b := range bs {
			if Overlap(wa, b.World(tb), tol) {
				return true
			}
		}
	}
	return false
}

// Enclose returns the union of boxes. It returns false for an empty list.
func Enclose(boxes []sdf.Box3) (sdf.Box3, bool) {
	if len(boxes) == 0 {
		return sdf.Box3{}, false
	}
	out := boxes[0]
	for _, b := range boxes[1:] {
		out = sdf.Box3{Min: out.Min.Min(b.Min), Max: out.Max.Max(b.Max)}
	}
	return out, true
}
