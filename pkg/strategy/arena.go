package strategy

import (
	"math/rand"

	"github.com/chazu/snapgen/pkg/piece"
)

// Arena grows outward from the best-connected starter. A guide keeps
// accepting pieces until it is full; the next guide is the piece placed
// first after the old guide took over.
type Arena struct {
	params Params

	guide *piece.Piece
	next  int // index in placed of the successor of guide
	guard progress
}

// NewArena returns an Arena that stops once more than MaxPieces pieces are
// placed.
func NewArena(p Params) (*Arena, error) {
	if err := positive("max_pieces", p.MaxPieces); err != nil {
		return nil, err
	}
	p.Name = "arena"
	return &Arena{params: p}, nil
}

func (a *Arena) strategy() {}

// Name implements Strategy.
func (a *Arena) Name() string { return "arena" }

// Params implements Strategy.
func (a *Arena) Params() Params { return a.params }

// SelectStart prefers the starter with the most connectors.
func (a *Arena) SelectStart(rng *rand.Rand, starters []*piece.Piece, tol int) *piece.Piece {
	return pickStart(rng, starters, tol, true)
}

// SelectGuide implements Strategy.
func (a *Arena) SelectGuide(rng *rand.Rand, placed []*piece.Piece) *piece.Piece {
	if len(placed) == 0 || len(placed) > a.params.MaxPieces {
		return a.guard.check(nil)
	}
	if a.guide == nil {
		a.guide, a.next = placed[0], 1
	}
	if a.guide.Full() {
		// Skip successors that filled up while another piece was guide.
		i := a.next
		for i < len(placed) && placed[i].Full() {
			i++
		}
		if i == len(placed) {
			return a.guard.check(nil)
		}
		a.guide, a.next = placed[i], len(placed)
	}
	return a.guard.check(a.guide)
}
