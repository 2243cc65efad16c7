package strategy

import (
	"math/rand"

	"github.com/chazu/snapgen/pkg/piece"
)

// Star grows arms of ArmLength pieces out of the starter, the hub, and
// stops when the hub has no free connector left to start another arm.
type Star struct {
	params Params

	hub      *piece.Piece
	armStart int // index in placed of the current arm's first piece
	guard    progress
}

// NewStar returns a Star with arms of ArmLength pieces.
func NewStar(p Params) (*Star, error) {
	if err := positive("arm_length", p.ArmLength); err != nil {
		return nil, err
	}
	p.Name = "star"
	return &Star{params: p}, nil
}

func (s *Star) strategy() {}

// Name implements Strategy.
func (s *Star) Name() string { return "star" }

// Params implements Strategy.
func (s *Star) Params() Params { return s.params }

// SelectStart prefers the starter with the fewest connectors.
func (s *Star) SelectStart(rng *rand.Rand, starters []*piece.Piece, tol int) *piece.Piece {
	return pickStart(rng, starters, tol, false)
}

// SelectGuide implements Strategy.
func (s *Star) SelectGuide(rng *rand.Rand, placed []*piece.Piece) *piece.Piece {
	if len(placed) == 0 {
		return s.guard.check(nil)
	}
	if s.hub == nil {
		s.hub, s.armStart = placed[0], 1
	}

	grown := len(placed) - s.armStart
	switch {
	case grown >= s.params.ArmLength:
		s.armStart = len(placed)
		fallthrough
	case grown == 0:
		if s.hub.Full() {
			return s.guard.check(nil)
		}
		return s.guard.check(s.hub)
	default:
		return s.guard.check(placed[len(placed)-1])
	}
}
