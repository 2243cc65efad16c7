// Package assembly drives map generation: it places a starter piece, then
// repeatedly asks a strategy for a guide and snaps randomly drawn
// candidates onto it until the strategy finishes, the piece cap is hit or
// the caller aborts.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/chazu/snapgen/pkg/collide"
	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/piece"
	"github.com/chazu/snapgen/pkg/snap"
	"github.com/chazu/snapgen/pkg/strategy"
	"github.com/samber/lo"
)

var (
	// ErrEmptyLibrary is returned when there are no templates to draw from.
	ErrEmptyLibrary = errors.New("assembly: empty piece library")
	// ErrNoStarter is returned when no template can be instantiated as
	// a starter, or the strategy picks none.
	ErrNoStarter = errors.New("assembly: no starter piece")
	// ErrNoConnectors is returned when every starter candidate lacks
	// connectors, so nothing could ever attach.
	ErrNoConnectors = errors.New("assembly: starter pieces have no connectors")
	// ErrInvalidOptions is returned for options no run can use.
	ErrInvalidOptions = errors.New("assembly: invalid options")
)

// StopReason says why a run ended.
type StopReason int

const (
	StopStrategy  StopReason = iota // the strategy returned no guide
	StopMaxPieces                   // the piece cap was reached
	StopAborted                     // the context was cancelled
)

func (r StopReason) String() string {
	switch r {
	case StopStrategy:
		return "strategy"
	case StopMaxPieces:
		return "max-pieces"
	case StopAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Placement records one accepted snap. Indices refer to Result.Placed,
// the library and the pieces' scanned connector lists.
type Placement struct {
	Step               int            `json:"step"`
	Guide              int            `json:"guide"`
	Piece              int            `json:"piece"`
	Template           int            `json:"template"`
	TemplateName       string         `json:"template_name"`
	GuideConnector     int            `json:"guide_connector"`
	CandidateConnector int            `json:"candidate_connector"`
	Transform          geom.Transform `json:"transform"`
}

// Result is the outcome of a run. Placed is internally consistent even
// when the run ended early: every used connector has a reciprocal match
// on another placed piece.
type Result struct {
	Placed   []*piece.Piece
	Start    int // library index of the starter's template
	Seed     int64
	Strategy strategy.Params
	Steps    []Placement
	Stop     StopReason
	Attempts int      // TrySnap calls made
	Warnings []string // templates excluded because their bounds are malformed
}

// Generate assembles pieces from library under strat. strat must be
// fresh: strategies keep per-run state. Only precondition violations are
// returned as errors; an aborted run returns its partial result and a nil
// error.
func Generate(ctx context.Context, library []*piece.Template, strat strategy.Strategy, opts Options) (*Result, error) {
	if len(library) == 0 {
		return nil, ErrEmptyLibrary
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	seed := time.Now().UnixNano()
	if opts.Seed != nil {
		seed = *opts.Seed
	}
	g := &generator{
		library: library,
		strat:   strat,
		opts:    opts,
		rng:     rand.New(rand.NewSource(seed)),
		solver: &snap.Solver{
			Rules:         opts.Rules,
			PinTolerance:  opts.PinTolerance,
			Colours:       opts.Colours,
			Distance:      opts.Distance,
			CheckOverlaps: opts.CheckOverlaps,
			Logger:        opts.Logger,
		},
		index: collide.NewIndex(opts.Oracle),
		owner: make(map[*piece.Piece]int),
		res:   &Result{Seed: seed, Strategy: strat.Params()},
	}
	opts.Logger.Printf("generate: seed=%d strategy=%s templates=%d max=%d", seed, strat.Name(), len(library), opts.MaxPieces)

	if err := g.start(); err != nil {
		return nil, err
	}
	g.run(ctx)
	opts.Logger.Printf("generate: stopped (%s) with %d pieces after %d attempts", g.res.Stop, len(g.res.Placed), g.res.Attempts)
	return g.res, nil
}

// generator holds the state of one run.
type generator struct {
	library []*piece.Template
	strat   strategy.Strategy
	opts    Options
	rng     *rand.Rand
	solver  *snap.Solver
	index   *collide.Index
	owner   map[*piece.Piece]int // placed piece -> index in Placed
	res     *Result
}

// start instantiates one starter per template, lets the strategy choose
// and places the choice.
func (g *generator) start() error {
	var starters []*piece.Piece
	tpl := make(map[*piece.Piece]int)
	for i, t := range g.library {
		p, err := g.instantiate(i, t)
		if err != nil {
			continue
		}
		starters = append(starters, p)
		tpl[p] = i
	}
	if len(starters) == 0 {
		return fmt.Errorf("%w: every template failed to instantiate", ErrNoStarter)
	}
	starters = lo.Filter(starters, func(p *piece.Piece, _ int) bool { return p.ConnectorCount() > 0 })
	if len(starters) == 0 {
		return ErrNoConnectors
	}

	s := g.strat.SelectStart(g.rng, starters, g.opts.StartTolerance)
	if s == nil {
		return ErrNoStarter
	}
	if err := g.place(s); err != nil {
		return fmt.Errorf("%w: %w", ErrNoStarter, err)
	}
	g.res.Start = tpl[s]
	g.opts.Logger.Printf("generate: starter %s (%d connectors)", s.Name(), s.ConnectorCount())
	return nil
}

func (g *generator) instantiate(i int, t *piece.Template) (*piece.Piece, error) {
	p, err := t.Instantiate()
	if err != nil {
		w := fmt.Sprintf("template %d (%s) excluded: %v", i, t.Name, err)
		if !lo.Contains(g.res.Warnings, w) {
			g.res.Warnings = append(g.res.Warnings, w)
			g.opts.Logger.Print("generate: " + w)
		}
		return nil, err
	}
	return p, nil
}

// place appends p to the result and files it for overlap checks.
func (g *generator) place(p *piece.Piece) error {
	if g.opts.CheckOverlaps {
		if err := g.index.Insert(p); err != nil {
			return err
		}
	}
	g.owner[p] = len(g.res.Placed)
	g.res.Placed = append(g.res.Placed, p)
	return nil
}

func (g *generator) run(ctx context.Context) {
	var obstacles collide.Obstacles
	if g.opts.CheckOverlaps {
		obstacles = g.index
	}
	for step := 1; ; step++ {
		if ctx.Err() != nil {
			g.res.Stop = StopAborted
			return
		}
		if len(g.res.Placed) >= g.opts.MaxPieces {
			g.res.Stop = StopMaxPieces
			return
		}
		guide := g.strat.SelectGuide(g.rng, g.res.Placed)
		if guide == nil {
			g.res.Stop = StopStrategy
			return
		}
		if !g.step(step, guide, obstacles) {
			g.opts.Logger.Printf("generate: step %d abandoned on %s (%d free)", step, guide.Name(), guide.FreeCount())
		}
	}
}

// step draws candidates without replacement until one snaps onto guide or
// the failure budget runs out.
func (g *generator) step(n int, guide *piece.Piece, obstacles collide.Obstacles) bool {
	pool := lo.Range(len(g.library))
	for failures := 0; failures < g.opts.MaxFailuresPerStep && len(pool) > 0; {
		k := g.rng.Intn(len(pool))
		ti := pool[k]
		pool = append(pool[:k], pool[k+1:]...)

		cand, err := g.instantiate(ti, g.library[ti])
		if err != nil {
			failures++
			continue
		}
		g.res.Attempts++
		r, ok := g.solver.TrySnap(g.rng, guide, cand, obstacles)
		if !ok {
			failures++
			continue
		}
		if err := g.place(cand); err != nil {
			// The match is already committed; keep the piece so the
			// result stays consistent and report the bad bounds.
			g.res.Warnings = append(g.res.Warnings, fmt.Sprintf("step %d: %s: %v", n, cand.Name(), err))
			g.owner[cand] = len(g.res.Placed)
			g.res.Placed = append(g.res.Placed, cand)
		}
		pl := Placement{
			Step:               n,
			Guide:              g.owner[guide],
			Piece:              g.owner[cand],
			Template:           ti,
			TemplateName:       g.library[ti].Name,
			GuideConnector:     r.Pair.Guide.Index(),
			CandidateConnector: r.Pair.Candidate.Index(),
			Transform:          r.Transform,
		}
		g.res.Steps = append(g.res.Steps, pl)
		if g.opts.Verbose {
			g.opts.Logger.Printf("generate: step %d: %s -> %s at %v", n, r.Pair.Candidate, r.Pair.Guide, r.Transform.Pos)
		}
		return true
	}
	return false
}
