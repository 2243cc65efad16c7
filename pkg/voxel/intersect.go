package voxel

import "github.com/chazu/snapgen/pkg/geom"

// Intersect reports whether volume a placed by ta and volume b placed by
// tb share a pair of leaf cells that overlap by more than tol and whose
// occupancy both reach threshold. Empty subtrees and non-overlapping cell
// pairs are pruned, so the cost follows the contact area, not the volume.
func Intersect(a *Octree, ta geom.Transform, b *Octree, tb geom.Transform, threshold, tol float64) bool {
	if a == nil || b == nil {
		return false
	}
	q := query{ta: ta, tb: tb, threshold: threshold, tol: tol}
	return q.visit(a.root, b.root)
}

type query struct {
	ta, tb    geom.Transform
	threshold float64
	tol       float64
}

func (q *query) visit(na, nb *node) bool {
	if na.fill == 0 || nb.fill == 0 {
		return false
	}
	if !geom.Overlap(na.cell.World(q.ta), nb.cell.World(q.tb), q.tol) {
		return false
	}
	if na.leaf() && nb.leaf() {
		return na.fill >= q.threshold && nb.fill >= q.threshold
	}

	// descend into the larger of the two cells
	if nb.leaf() || (!na.leaf() && volume(na.cell) >= volume(nb.cell)) {
		for _, k := range na.kids {
			if k != nil && q.visit(k, nb) {
				return true
			}
		}
		return false
	}
	for _, k := range nb.kids {
		if k != nil && q.visit(na, k) {
			return true
		}
	}
	return false
}

func volume(b geom.Box) float64 {
	return b.Half.X * b.Half.Y * b.Half.Z
}
