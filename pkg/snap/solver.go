// Package snap attaches a candidate piece to a guide piece by matching a
// pair of compatible connectors and moving the candidate so the two meet
// face to face.
package snap

import (
	"io"
	"log"
	"math/rand"

	"github.com/chazu/snapgen/pkg/collide"
	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/piece"
)

// Pair is a guide connector and a candidate connector that may be matched.
type Pair struct {
	Guide     *piece.Connector
	Candidate *piece.Connector
}

// Result describes an accepted snap.
type Result struct {
	Pair      Pair
	Transform geom.Transform // the candidate's new world transform
	Tries     int            // pairs drawn, including the accepted one
}

// Solver matches connectors under a fixed rule set.
type Solver struct {
	Rules        piece.SnapRules
	PinTolerance uint
	Colours      *piece.ColourMatrix // nil allows every colour pair
	// Distance separates the matched connectors along the candidate
	// connector's axis; negative values make the pieces overlap.
	Distance      float64
	CheckOverlaps bool
	Logger        *log.Logger
}

func (s *Solver) logger() *log.Logger {
	if s.Logger == nil {
		return log.New(io.Discard, "", 0)
	}
	return s.Logger
}

// ValidPairs returns every free, compatible (guide, candidate) connector
// pair in guide order, then candidate order.
func (s *Solver) ValidPairs(guide, candidate *piece.Piece) []Pair {
	var pairs []Pair
	for _, c := range guide.Connectors() {
		for _, o := range candidate.Connectors() {
			if piece.Compatible(c, o, s.Rules, s.PinTolerance, s.Colours) {
				pairs = append(pairs, Pair{Guide: c, Candidate: o})
			}
		}
	}
	return pairs
}

// TrySnap attaches candidate to guide. Valid pairs are drawn uniformly at
// random without replacement; for each, the candidate is aligned to the
// guide connector and, when overlaps are checked, tested against
// obstacles. The first pair that fits is committed: both connectors
// become used and reference each other, and the candidate keeps the new
// transform. When no pair fits, TrySnap returns false and neither piece
// changes.
func (s *Solver) TrySnap(rng *rand.Rand, guide, candidate *piece.Piece, obstacles collide.Obstacles) (Result, bool) {
	pairs := s.ValidPairs(guide, candidate)
	original := candidate.Transform()

	for tries := 1; len(pairs) > 0; tries++ {
		i := rng.Intn(len(pairs))
		pair := pairs[i]
		pairs[i] = pairs[len(pairs)-1]
		pairs = pairs[:len(pairs)-1]

		t := geom.Align(pair.Candidate.Local(), pair.Guide.World(), s.Distance)
		candidate.SetTransform(t)

		if s.CheckOverlaps && obstacles != nil && obstacles.Collides(candidate) {
			candidate.SetTransform(original)
			s.logger().Printf("snap: %s -> %s overlaps, %d pairs left", pair.Candidate, pair.Guide, len(pairs))
			continue
		}
		if err := piece.Connect(pair.Guide, pair.Candidate); err != nil {
			// ValidPairs only yields free connectors, so this is a bug.
			candidate.SetTransform(original)
			s.logger().Printf("snap: %v", err)
			continue
		}
		return Result{Pair: pair, Transform: t, Tries: tries}, true
	}
	return Result{}, false
}
