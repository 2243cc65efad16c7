package strategy

import (
	"math/rand"

	"github.com/chazu/snapgen/pkg/piece"
)

// Corridor builds a single chain: every piece attaches to the one placed
// before it.
type Corridor struct {
	params Params
	guard  progress
}

// NewCorridor returns a Corridor that stops at MaxPieces pieces.
func NewCorridor(p Params) (*Corridor, error) {
	if err := positive("max_pieces", p.MaxPieces); err != nil {
		return nil, err
	}
	p.Name = "corridor"
	return &Corridor{params: p}, nil
}

func (c *Corridor) strategy() {}

// Name implements Strategy.
func (c *Corridor) Name() string { return "corridor" }

// Params implements Strategy.
func (c *Corridor) Params() Params { return c.params }

// SelectStart prefers the starter with the fewest connectors.
func (c *Corridor) SelectStart(rng *rand.Rand, starters []*piece.Piece, tol int) *piece.Piece {
	return pickStart(rng, starters, tol, false)
}

// SelectGuide implements Strategy.
func (c *Corridor) SelectGuide(rng *rand.Rand, placed []*piece.Piece) *piece.Piece {
	if len(placed) == 0 || len(placed) >= c.params.MaxPieces {
		return c.guard.check(nil)
	}
	return c.guard.check(placed[len(placed)-1])
}
