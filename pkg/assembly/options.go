package assembly

import (
	"fmt"
	"io"
	"log"

	"github.com/chazu/snapgen/pkg/collide"
	"github.com/chazu/snapgen/pkg/piece"
)

// DefaultMaxFailuresPerStep bounds candidate draws per step when Options
// leaves it unset.
const DefaultMaxFailuresPerStep = 10

// Options configures one generation run.
type Options struct {
	Rules        piece.SnapRules
	PinTolerance uint
	Colours      *piece.ColourMatrix // nil: every colour pair matches

	// Seed fixes the random source. When nil a time-derived seed is used
	// and reported in Result.Seed.
	Seed *int64

	MaxPieces          int // hard cap on placed pieces, including the starter
	MaxFailuresPerStep int // candidate draws per step before it is abandoned

	// Distance is the gap left between matched connectors along the
	// candidate connector's axis. Negative values overlap the pieces.
	Distance float64

	CheckOverlaps bool
	Oracle        collide.Oracle // nil: collide.NewGeometric()

	// StartTolerance widens the connector-count band from which the
	// starter is drawn.
	StartTolerance int

	Logger  *log.Logger // nil: discard
	Verbose bool        // log every placement
}

// withDefaults fills unset fields and rejects values no run can use.
func (o Options) withDefaults() (Options, error) {
	if o.MaxPieces < 1 {
		return o, fmt.Errorf("%w: max pieces must be at least 1, got %d", ErrInvalidOptions, o.MaxPieces)
	}
	switch {
	case o.MaxFailuresPerStep < 0:
		return o, fmt.Errorf("%w: max failures per step must not be negative, got %d", ErrInvalidOptions, o.MaxFailuresPerStep)
	case o.MaxFailuresPerStep == 0:
		o.MaxFailuresPerStep = DefaultMaxFailuresPerStep
	}
	if o.StartTolerance < 0 {
		return o, fmt.Errorf("%w: start tolerance must not be negative, got %d", ErrInvalidOptions, o.StartTolerance)
	}
	if o.Oracle == nil {
		o.Oracle = collide.NewGeometric()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard, "", 0)
	}
	return o, nil
}
