// Package strategy decides the shape of a generated layout: which starter
// piece opens the run and which placed piece each new piece attaches to.
//
// A Strategy is a small state machine. It is created for one run, fed the
// growing list of placed pieces, and answers nil from SelectGuide when the
// run is complete. Every variant stops when two consecutive SelectGuide
// calls would return the same piece with the same number of free
// connectors, since nothing was placed in between.
package strategy

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/chazu/snapgen/pkg/piece"
	"github.com/samber/lo"
)

var (
	// ErrUnknownStrategy is returned by New for an unregistered name.
	ErrUnknownStrategy = errors.New("strategy: unknown strategy")
	// ErrBadParams is returned when a strategy's tunables are out of range.
	ErrBadParams = errors.New("strategy: bad parameters")
)

// Params are the tunables of every strategy. Each variant reads the
// fields it needs and ignores the rest, so a configuration can be stored
// as plain scalars and replayed.
type Params struct {
	Name           string `json:"name" yaml:"name"`
	MaxPieces      int    `json:"max_pieces,omitempty" yaml:"max_pieces,omitempty"`
	BranchLength   int    `json:"branch_length,omitempty" yaml:"branch_length,omitempty"`
	BranchVariance int    `json:"branch_variance,omitempty" yaml:"branch_variance,omitempty"`
	Branches       int    `json:"branches,omitempty" yaml:"branches,omitempty"`
	ArmLength      int    `json:"arm_length,omitempty" yaml:"arm_length,omitempty"`
}

// Strategy is implemented by Arena, Corridor, Branch and Star.
type Strategy interface {
	// Name returns the registry name of the variant.
	Name() string

	// Params returns the tunables the strategy was built with.
	Params() Params

	// SelectStart picks the starter from starters. Pieces whose connector
	// count lies within tol of the preferred extreme are equally likely.
	// It returns nil when starters is empty.
	SelectStart(rng *rand.Rand, starters []*piece.Piece, tol int) *piece.Piece

	// SelectGuide returns the placed piece the next candidate attaches
	// to, or nil when generation is complete. placed[0] is the starter.
	SelectGuide(rng *rand.Rand, placed []*piece.Piece) *piece.Piece

	strategy() // marker method restricting implementations to this package
}

// pickStart returns a random piece whose connector count is within tol of
// the largest count (most) or the smallest.
func pickStart(rng *rand.Rand, starters []*piece.Piece, tol int, most bool) *piece.Piece {
	if len(starters) == 0 {
		return nil
	}
	if tol < 0 {
		tol = 0
	}
	counts := lo.Map(starters, func(p *piece.Piece, _ int) int { return p.ConnectorCount() })
	var band []*piece.Piece
	if most {
		limit := lo.Max(counts) - tol
		band = lo.Filter(starters, func(p *piece.Piece, _ int) bool { return p.ConnectorCount() >= limit })
	} else {
		limit := lo.Min(counts) + tol
		band = lo.Filter(starters, func(p *piece.Piece, _ int) bool { return p.ConnectorCount() <= limit })
	}
	return band[rng.Intn(len(band))]
}

// progress is the no-progress guard shared by all variants. Once it trips
// the strategy stays finished.
type progress struct {
	last *piece.Piece
	free int
	done bool
}

// check passes guide through unless it repeats the previous answer with
// an unchanged free count.
func (g *progress) check(guide *piece.Piece) *piece.Piece {
	if g.done {
		return nil
	}
	if guide == nil {
		g.done = true
		return nil
	}
	free := guide.FreeCount()
	if guide == g.last && free == g.free {
		g.done = true
		return nil
	}
	g.last, g.free = guide, free
	return guide
}

func positive(name string, v int) error {
	if v < 1 {
		return fmt.Errorf("%w: %s must be at least 1, got %d", ErrBadParams, name, v)
	}
	return nil
}
