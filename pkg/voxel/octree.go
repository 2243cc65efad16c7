// Package voxel builds hierarchical occupancy volumes from kernel solids
// and intersects them under rigid transforms. A volume is built once per
// piece template in the template's local frame and shared by every
// instance; only the transforms differ between queries.
package voxel

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/kernel"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// MaxDepth bounds the subdivision depth of an octree.
const MaxDepth = 8

// DefaultSamples is the number of samples per axis taken in a leaf cell.
const DefaultSamples = 2

var (
	// ErrEmptyVolume is returned when a solid has a degenerate bounding box.
	ErrEmptyVolume = errors.New("voxel: solid has an empty bounding box")
	// ErrBadDepth is returned for a depth outside [0, MaxDepth].
	ErrBadDepth = errors.New("voxel: depth out of range")
)

// Octree is a hierarchical occupancy volume in a local frame.
type Octree struct {
	root   *node
	leaves int
}

type node struct {
	cell geom.Box
	fill float64  // fraction of the cell inside the solid, in [0,1]
	kids []*node // nil for a leaf; empty children are nil entries
}

func (n *node) leaf() bool { return n.kids == nil }

// Build samples s into an octree of the given depth, taking samples^3
// points in every leaf cell. samples <= 0 selects DefaultSamples.
func Build(s kernel.Solid, depth, samples int) (*Octree, error) {
	if depth < 0 || depth > MaxDepth {
		return nil, fmt.Errorf("%w: %d", ErrBadDepth, depth)
	}
	if samples <= 0 {
		samples = DefaultSamples
	}
	min, max := s.BoundingBox()
	lo := v3.Vec{X: min[0], Y: min[1], Z: min[2]}
	hi := v3.Vec{X: max[0], Y: max[1], Z: max[2]}
	root := geom.Box{Center: lo.Add(hi).MulScalar(0.5), Half: hi.Sub(lo).MulScalar(0.5)}
	if !root.Valid() {
		return nil, fmt.Errorf("%w: %v..%v", ErrEmptyVolume, min, max)
	}

	b := builder{solid: s, depth: depth, samples: samples}
	t := &Octree{}
	t.root = b.build(root, 0)
	t.leaves = b.leaves
	if t.root.fill == 0 {
		return nil, fmt.Errorf("%w: solid occupies none of its bounds", ErrEmptyVolume)
	}
	return t, nil
}

type builder struct {
	solid   kernel.Solid
	depth   int
	samples int
	leaves  int
}

func (b *builder) build(cell geom.Box, level int) *node {
	// A signed distance larger than the half diagonal means the whole cell
	// is on one side of the surface.
	d := b.solid.Evaluate(toArray(cell.Center))
	if r := cell.Half.Length(); math.Abs(d) > r {
		b.leaves++
		if d < 0 {
			return &node{cell: cell, fill: 1}
		}
		return &node{cell: cell}
	}

	if level == b.depth {
		b.leaves++
		return &node{cell: cell, fill: b.sample(cell)}
	}

	n := &node{cell: cell, kids: make([]*node, 8)}
	full, empty := 0, 0
	for i := range n.kids {
		k := b.build(octant(cell, i), level+1)
		n.fill += k.fill / 8
		switch {
		case k.leaf() && k.fill == 1:
			full++
		case k.fill == 0:
			empty++
			b.leaves--
			k = nil
		}
		n.kids[i] = k
	}
	switch {
	case full == 8:
		b.leaves -= 8 - 1
		n.kids = nil
		n.fill = 1
	case empty == 8:
		b.leaves++
		n.kids = nil
		n.fill = 0
	}
	return n
}

// sample returns the fraction of a regular grid of points inside the solid.
func (b *builder) sample(cell geom.Box) float64 {
	min := cell.Center.Sub(cell.Half)
	step := cell.Half.MulScalar(2 / float64(b.samples))
	inside := 0
	for i := 0; i < b.samples; i++ {
		for j := 0; j < b.samples; j++ {
			for k := 0; k < b.samples; k++ {
				p := v3.Vec{
					X: min.X + (float64(i)+0.5)*step.X,
					Y: min.Y + (float64(j)+0.5)*step.Y,
					Z: min.Z + (float64(k)+0.5)*step.Z,
				}
				if kernel.Inside(b.solid, toArray(p)) {
					inside++
				}
			}
		}
	}
	return float64(inside) / float64(b.samples*b.samples*b.samples)
}

// octant returns child cell i of c; bit 0 selects +X, bit 1 +Y, bit 2 +Z.
func octant(c geom.Box, i int) geom.Box {
	h := c.Half.MulScalar(0.5)
	off := h
	if i&1 == 0 {
		off.X = -off.X
	}
	if i&2 == 0 {
		off.Y = -off.Y
	}
	if i&4 == 0 {
		off.Z = -off.Z
	}
	return geom.Box{Center: c.Center.Add(off), Half: h}
}

func toArray(v v3.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

// Bounds returns the root cell in the local frame.
func (t *Octree) Bounds() geom.Box {
	return t.root.cell
}

// Fill returns the occupancy fraction of the whole volume.
func (t *Octree) Fill() float64 {
	return t.root.fill
}

// Leaves returns the number of leaf cells kept after pruning.
func (t *Octree) Leaves() int {
	return t.leaves
}

// Occupied reports whether the local point p falls in a leaf whose
// occupancy reaches threshold.
func (t *Octree) Occupied(p v3.Vec, threshold float64) bool {
	n := t.root
	for n != nil {
		if !contains(n.cell, p) {
			return false
		}
		if n.leaf() {
			return n.fill > 0 && n.fill >= threshold
		}
		var next *node
		for _, k := range n.kids {
			if k != nil && contains(k.cell, p) {
				next = k
				break
			}
		}
		n = next
	}
	return false
}

func contains(c geom.Box, p v3.Vec) bool {
	d := p.Sub(c.Center).Abs()
	return d.X <= c.Half.X && d.Y <= c.Half.Y && d.Z <= c.Half.Z
}
