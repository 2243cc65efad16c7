package strategy

import (
	"fmt"
	"math/rand"

	"github.com/chazu/snapgen/pkg/piece"
	"github.com/samber/lo"
)

// Branch grows a run of corridors. Each branch is a chain of roughly
// BranchLength pieces hanging off an anchor; when a branch is long enough
// the strategy returns to an earlier piece and starts the next one.
type Branch struct {
	params Params

	started  bool
	anchor   int // index in placed of the current branch's anchor
	segStart int // index in placed of the current branch's first piece
	length   int // pieces the current branch should reach
	made     int // finished branches
	guard    progress
}

// NewBranch returns a Branch that stops after Branches branches.
func NewBranch(p Params) (*Branch, error) {
	if err := positive("branch_length", p.BranchLength); err != nil {
		return nil, err
	}
	if err := positive("branches", p.Branches); err != nil {
		return nil, err
	}
	if p.BranchVariance < 0 {
		return nil, fmt.Errorf("%w: branch_variance must not be negative, got %d", ErrBadParams, p.BranchVariance)
	}
	p.Name = "branch"
	return &Branch{params: p}, nil
}

func (b *Branch) strategy() {}

// Name implements Strategy.
func (b *Branch) Name() string { return "branch" }

// Params implements Strategy.
func (b *Branch) Params() Params { return b.params }

// SelectStart prefers the starter with the fewest connectors.
func (b *Branch) SelectStart(rng *rand.Rand, starters []*piece.Piece, tol int) *piece.Piece {
	return pickStart(rng, starters, tol, false)
}

// roll draws the length of a new branch: BranchLength plus or minus up to
// BranchVariance, never below one.
func (b *Branch) roll(rng *rand.Rand) int {
	n := b.params.BranchLength
	if v := b.params.BranchVariance; v > 0 {
		n += rng.Intn(2*v+1) - v
	}
	return max(n, 1)
}

// SelectGuide implements Strategy.
func (b *Branch) SelectGuide(rng *rand.Rand, placed []*piece.Piece) *piece.Piece {
	if len(placed) == 0 {
		return b.guard.check(nil)
	}
	if !b.started {
		b.started = true
		b.anchor, b.segStart, b.length = 0, 1, b.roll(rng)
	}

	grown := len(placed) - b.segStart
	if grown < b.length {
		if grown == 0 {
			return b.guard.check(placed[b.anchor])
		}
		return b.guard.check(placed[len(placed)-1])
	}

	b.made++
	if b.made >= b.params.Branches {
		return b.guard.check(nil)
	}
	next := min(b.anchor+b.made, len(placed)-1)
	if placed[next].Full() {
		next = b.fallback(rng, placed)
	}
	b.anchor, b.segStart, b.length = next, len(placed), b.roll(rng)
	return b.guard.check(placed[next])
}

// fallback picks a random piece of the branch that just finished,
// preferring pieces with a free connector.
func (b *Branch) fallback(rng *rand.Rand, placed []*piece.Piece) int {
	seg := lo.Range(len(placed) - b.segStart)
	free := lo.Filter(seg, func(i, _ int) bool { return !placed[b.segStart+i].Full() })
	if len(free) > 0 {
		return b.segStart + free[rng.Intn(len(free))]
	}
	return b.segStart + rng.Intn(len(seg))
}
