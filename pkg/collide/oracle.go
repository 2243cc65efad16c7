// Package collide answers whether placed pieces intersect. The narrow
// phase compares oriented boxes with a separating-axis test, or voxel
// volumes hierarchically when both pieces carry one; the broad phase keeps
// placed pieces in an R-tree keyed by their world bounding boxes.
package collide

import (
	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/piece"
	"github.com/chazu/snapgen/pkg/voxel"
)

// Default tuning for the geometric oracle.
const (
	DefaultTolerance = 1e-4
	DefaultThreshold = 0.5
)

// Bounds is the collision representation of a piece in its local frame.
type Bounds struct {
	Boxes  []geom.Box
	Volume *voxel.Octree
}

// Empty reports whether b has nothing to collide with.
func (b Bounds) Empty() bool {
	return len(b.Boxes) == 0 && b.Volume == nil
}

// boxes returns the boxes used for box tests: the collision boxes, or the
// voxel volume's root cell when there are none.
func (b Bounds) boxes() []geom.Box {
	if len(b.Boxes) > 0 || b.Volume == nil {
		return b.Boxes
	}
	return []geom.Box{b.Volume.Bounds()}
}

// BoundsOf returns a piece's collision representation.
func BoundsOf(p *piece.Piece) Bounds {
	return Bounds{Boxes: p.Boxes(), Volume: p.Volume()}
}

// Oracle decides whether two bounded bodies intersect under their
// transforms.
type Oracle interface {
	Intersects(a Bounds, ta geom.Transform, b Bounds, tb geom.Transform) bool
}

// Geometric is the default oracle. Boxes must interpenetrate by more than
// Tolerance to intersect, so pieces that meet face to face at a connector
// do not collide. Voxel leaves count as solid once their occupancy
// fraction reaches Threshold.
type Geometric struct {
	Tolerance float64
	Threshold float64
}

// NewGeometric returns an oracle with the default tolerance and threshold.
func NewGeometric() *Geometric {
	return &Geometric{Tolerance: DefaultTolerance, Threshold: DefaultThreshold}
}

// Intersects implements Oracle.
func (g *Geometric) Intersects(a Bounds, ta geom.Transform, b Bounds, tb geom.Transform) bool {
	if a.Empty() || b.Empty() {
		return false
	}
	if a.Volume != nil && b.Volume != nil {
		return voxel.Intersect(a.Volume, ta, b.Volume, tb, g.Threshold, g.Tolerance)
	}
	return geom.BoxesOverlap(a.boxes(), ta, b.boxes(), tb, g.Tolerance)
}

// PiecesIntersect applies o to two pieces at their current transforms.
func PiecesIntersect(o Oracle, a, b *piece.Piece) bool {
	return o.Intersects(BoundsOf(a), a.Transform(), BoundsOf(b), b.Transform())
}

// Obstacles is a set of placed pieces a new piece must not intersect.
type Obstacles interface {
	// Collides reports whether p, at its current transform, intersects
	// any piece in the set.
	Collides(p *piece.Piece) bool
}

// Scan checks a piece against every piece in a list. It is the reference
// the Index must agree with.
type Scan struct {
	Pieces []*piece.Piece
	Oracle Oracle
}

// Collides implements Obstacles.
func (s Scan) Collides(p *piece.Piece) bool {
	for _, q := range s.Pieces {
		if q != p && PiecesIntersect(s.Oracle, p, q) {
			return true
		}
	}
	return false
}
