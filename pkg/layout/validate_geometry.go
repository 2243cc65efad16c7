package layout

import (
	"fmt"
	"math"

	"github.com/chazu/snapgen/pkg/collide"
	"github.com/chazu/snapgen/pkg/piece"
)

// ---------------------------------------------------------------------------
// Tier 2 — Geometric validation (errors + warnings)
// ---------------------------------------------------------------------------

// validateGeometry runs all Tier 2 checks.
func validateGeometry(placed []*piece.Piece, c Checks) ([]ValidationError, []ValidationWarning) {
	if c.Epsilon <= 0 {
		c.Epsilon = 1e-6
	}
	if c.Oracle == nil {
		c.Oracle = collide.NewGeometric()
	}

	var errs []ValidationError
	errs = append(errs, validateCoincidence(placed, c)...)
	if c.CheckOverlaps {
		errs = append(errs, validateOverlaps(placed, c)...)
	}
	return errs, warnOpenEnds(placed)
}

// validateCoincidence checks that each matched pair sits Distance apart
// along the candidate's connector axis with opposed headings. Each pair
// is checked once, from its lower-indexed piece.
func validateCoincidence(placed []*piece.Piece, c Checks) []ValidationError {
	ix := indexPieces(placed)
	var errs []ValidationError
	for i, p := range placed {
		if p == nil {
			continue
		}
		for _, a := range p.Connectors() {
			b := a.Match()
			if b == nil {
				continue
			}
			j, ok := ix[b.Owner()]
			if !ok || j <= i {
				continue
			}
			fa, fb := a.World(), b.World()
			gap := fb.Pos.Sub(fa.Pos).Length()
			if math.Abs(gap-math.Abs(c.Distance)) > c.Epsilon {
				errs = append(errs, ValidationError{
					Piece:    j,
					Message:  fmt.Sprintf("connectors %s and %s are %.6f apart, want %.6f", a, b, gap, math.Abs(c.Distance)),
					Severity: SeverityError,
				})
			}
			if d := fa.Heading.Normalize().Dot(fb.Heading.Normalize()); d > -1+c.Epsilon {
				errs = append(errs, ValidationError{
					Piece:    j,
					Message:  fmt.Sprintf("connectors %s and %s do not face each other (cos %.6f)", a, b, d),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateOverlaps checks every pair of placed pieces with the oracle.
func validateOverlaps(placed []*piece.Piece, c Checks) []ValidationError {
	var errs []ValidationError
	for i, a := range placed {
		if a == nil {
			continue
		}
		for j := i + 1; j < len(placed); j++ {
			b := placed[j]
			if b == nil || b == a {
				continue
			}
			if collide.PiecesIntersect(c.Oracle, a, b) {
				errs = append(errs, ValidationError{
					Piece:    j,
					Message:  fmt.Sprintf("%s intersects piece %d (%s)", b.Name(), i, a.Name()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// warnOpenEnds reports pieces other than the starter that ended up with
// a single used connector: the dead ends of the layout.
func warnOpenEnds(placed []*piece.Piece) []ValidationWarning {
	var warnings []ValidationWarning
	for i, p := range placed {
		if i == 0 || p == nil {
			continue
		}
		if used := p.ConnectorCount() - p.FreeCount(); used == 1 && p.FreeCount() > 0 {
			warnings = append(warnings, ValidationWarning{
				Piece:   i,
				Message: fmt.Sprintf("%s is a dead end with %d open connectors", p.Name(), p.FreeCount()),
			})
		}
	}
	return warnings
}
