package collide

import (
	"fmt"

	"github.com/chazu/snapgen/pkg/piece"
	"github.com/deadsy/sdfx/sdf"
	"github.com/dhconnelly/rtreego"
)

// rectPad keeps R-tree rectangles non-degenerate and makes touching
// boxes candidates for the narrow phase.
const rectPad = 1e-6

// Index is a broad-phase set of placed pieces. Pieces are filed under
// their world bounding boxes at insertion time and must not move after.
type Index struct {
	tree   *rtreego.Rtree
	oracle Oracle
	n      int
}

// entry adapts a piece to rtreego.Spatial.
type entry struct {
	p    *piece.Piece
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// NewIndex returns an empty index whose narrow phase uses o.
func NewIndex(o Oracle) *Index {
	return &Index{tree: rtreego.NewTree(3, 4, 16), oracle: o}
}

// Len returns the number of indexed pieces.
func (ix *Index) Len() int { return ix.n }

// Insert files p under its current world bounds. Pieces without bounds
// are counted but never collide.
func (ix *Index) Insert(p *piece.Piece) error {
	ix.n++
	aabb, ok := p.WorldAABB()
	if !ok {
		return nil
	}
	r, err := toRect(aabb)
	if err != nil {
		return fmt.Errorf("collide: index %s: %w", p.Name(), err)
	}
	ix.tree.Insert(&entry{p: p, rect: r})
	return nil
}

// Collides implements Obstacles.
func (ix *Index) Collides(p *piece.Piece) bool {
	aabb, ok := p.WorldAABB()
	if !ok {
		return false
	}
	r, err := toRect(aabb)
	if err != nil {
		// Unrepresentable bounds cannot be placed safely.
		return true
	}
	for _, s := range ix.tree.SearchIntersect(r) {
		q := s.(*entry).p
		if q != p && PiecesIntersect(ix.oracle, p, q) {
			return true
		}
	}
	return false
}

func toRect(b sdf.Box3) (rtreego.Rect, error) {
	p := rtreego.Point{b.Min.X - rectPad, b.Min.Y - rectPad, b.Min.Z - rectPad}
	lengths := []float64{
		b.Max.X - b.Min.X + 2*rectPad,
		b.Max.Y - b.Min.Y + 2*rectPad,
		b.Max.Z - b.Min.Z + 2*rectPad,
	}
	return rtreego.NewRect(p, lengths)
}
