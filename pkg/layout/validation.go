// Package layout checks a generated layout after the fact. Tier 1 covers
// the structure of the connector graph, Tier 2 the geometry of the
// committed transforms.
package layout

import (
	"fmt"

	"github.com/chazu/snapgen/pkg/collide"
	"github.com/chazu/snapgen/pkg/piece"
)

// ValidationSeverity indicates whether a finding makes a layout unusable
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // layout is inconsistent
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	Piece    int                // index into the placed list, -1 for layout-level findings
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.Piece < 0 {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] piece %d: %s", e.Severity, e.Piece, e.Message)
}

// ValidationWarning describes a non-blocking advisory finding.
type ValidationWarning struct {
	Piece   int
	Message string
}

// ValidationResult bundles errors and warnings from all tiers.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// OK reports whether the layout has no errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

// Checks configures the geometric tier. Distance and CheckOverlaps should
// match the options the layout was generated with.
type Checks struct {
	Distance      float64
	CheckOverlaps bool
	Oracle        collide.Oracle // nil: collide.NewGeometric()
	Epsilon       float64        // tolerance on connector coincidence; 0: 1e-6
}

// Validate runs the Tier 1 structural checks on placed and returns every
// error found. An empty slice means the connector graph is consistent.
// Validate never mutates the pieces.
func Validate(placed []*piece.Piece) []ValidationError {
	ix := indexPieces(placed)
	var errs []ValidationError
	errs = append(errs, validateDuplicates(placed, ix)...)
	errs = append(errs, validateMatches(placed, ix)...)
	errs = append(errs, validateConnected(placed, ix)...)
	return errs
}

// ValidateAll runs the structural and geometric tiers.
func ValidateAll(placed []*piece.Piece, c Checks) ValidationResult {
	var result ValidationResult
	for _, e := range Validate(placed) {
		if e.Severity == SeverityWarning {
			result.Warnings = append(result.Warnings, ValidationWarning{Piece: e.Piece, Message: e.Message})
		} else {
			result.Errors = append(result.Errors, e)
		}
	}

	errs, warnings := validateGeometry(placed, c)
	result.Errors = append(result.Errors, errs...)
	result.Warnings = append(result.Warnings, warnings...)
	return result
}

// indexPieces maps each placed piece to its first index.
func indexPieces(placed []*piece.Piece) map[*piece.Piece]int {
	ix := make(map[*piece.Piece]int, len(placed))
	for i, p := range placed {
		if _, ok := ix[p]; !ok {
			ix[p] = i
		}
	}
	return ix
}

// ---------------------------------------------------------------------------
// Tier 1 — Structural validation
// ---------------------------------------------------------------------------

// validateDuplicates checks that no piece instance is placed twice.
func validateDuplicates(placed []*piece.Piece, ix map[*piece.Piece]int) []ValidationError {
	var errs []ValidationError
	for i, p := range placed {
		if p == nil {
			errs = append(errs, ValidationError{Piece: i, Message: "nil piece", Severity: SeverityError})
			continue
		}
		if first := ix[p]; first != i {
			errs = append(errs, ValidationError{
				Piece:    i,
				Message:  fmt.Sprintf("piece %s is also placed at index %d", p.Name(), first),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateMatches checks that every used connector has exactly one
// partner, that the partner points back, and that it lives on another
// placed piece. Free connectors must not have a partner.
func validateMatches(placed []*piece.Piece, ix map[*piece.Piece]int) []ValidationError {
	var errs []ValidationError
	for i, p := range placed {
		if p == nil {
			continue
		}
		for _, c := range p.Connectors() {
			m := c.Match()
			switch {
			case !c.Used() && m != nil:
				errs = append(errs, ValidationError{
					Piece:    i,
					Message:  fmt.Sprintf("free connector %s has partner %s", c, m),
					Severity: SeverityError,
				})
			case !c.Used():
				// Open connector.
			case m == nil:
				errs = append(errs, ValidationError{
					Piece:    i,
					Message:  fmt.Sprintf("used connector %s has no partner", c),
					Severity: SeverityError,
				})
			case m.Match() != c:
				errs = append(errs, ValidationError{
					Piece:    i,
					Message:  fmt.Sprintf("connector %s is matched to %s, which does not match it back", c, m),
					Severity: SeverityError,
				})
			case m.Owner() == p:
				errs = append(errs, ValidationError{
					Piece:    i,
					Message:  fmt.Sprintf("connector %s is matched to its own piece", c),
					Severity: SeverityError,
				})
			default:
				if _, ok := ix[m.Owner()]; !ok {
					errs = append(errs, ValidationError{
						Piece:    i,
						Message:  fmt.Sprintf("connector %s is matched to %s, which is not placed", c, m),
						Severity: SeverityError,
					})
				}
			}
		}
	}
	return errs
}

// validateConnected checks that every piece is reachable from the starter
// through matched connectors.
func validateConnected(placed []*piece.Piece, ix map[*piece.Piece]int) []ValidationError {
	if len(placed) == 0 || placed[0] == nil {
		return nil
	}
	seen := map[*piece.Piece]bool{placed[0]: true}
	queue := []*piece.Piece{placed[0]}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, c := range p.Connectors() {
			m := c.Match()
			if m == nil {
				continue
			}
			q := m.Owner()
			if _, placedOK := ix[q]; !placedOK || seen[q] {
				continue
			}
			seen[q] = true
			queue = append(queue, q)
		}
	}

	var errs []ValidationError
	for i, p := range placed {
		if p != nil && !seen[p] && ix[p] == i {
			errs = append(errs, ValidationError{
				Piece:    i,
				Message:  fmt.Sprintf("piece %s is not connected to the starter", p.Name()),
				Severity: SeverityError,
			})
		}
	}
	return errs
}
