package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/chazu/snapgen/pkg/assembly"
	"github.com/chazu/snapgen/pkg/config"
	"github.com/chazu/snapgen/pkg/layout"
	"github.com/chazu/snapgen/pkg/library"
	"github.com/chazu/snapgen/pkg/runstore"
)

// App wires the pipeline: library source → templates → assembly run →
// layout validation → run store.
type App struct {
	engine  *library.Engine
	logger  *log.Logger
	store   *runstore.Store // nil: runs are not persisted
	verbose bool
}

// Report is the outcome of one run.
type Report struct {
	ID         string // run store ID, empty when not persisted
	Result     *assembly.Result
	Validation layout.ValidationResult
	EvalErrors []library.EvalError
}

// NewApp creates an App with the sdfx-backed library engine.
func NewApp(logger *log.Logger, store *runstore.Store, verbose bool) *App {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &App{
		engine:  library.NewEngine(nil),
		logger:  logger,
		store:   store,
		verbose: verbose,
	}
}

// Run executes the configured run. Source errors in the library are
// returned in the report alongside an error.
func (a *App) Run(ctx context.Context, cfg config.Config) (Report, error) {
	var rep Report

	if cfg.Library == "" {
		return rep, errors.New("no library configured")
	}

	// Step 1: Evaluate the library into templates.
	templates, evalErrs, err := a.engine.EvaluateFile(ctx, cfg.Library)
	if err != nil {
		return rep, err
	}
	if len(evalErrs) > 0 {
		rep.EvalErrors = evalErrs
		return rep, fmt.Errorf("library %s: %d error(s)", cfg.Library, len(evalErrs))
	}
	a.logger.Printf("library %s: %d templates", cfg.Library, len(templates))

	// Step 2: Build options and a fresh strategy.
	opts, err := cfg.Options()
	if err != nil {
		return rep, err
	}
	opts.Logger = a.logger
	opts.Verbose = a.verbose
	strat, err := cfg.NewStrategy()
	if err != nil {
		return rep, err
	}

	// Step 3: Assemble.
	res, err := assembly.Generate(ctx, templates, strat, opts)
	if err != nil {
		return rep, err
	}
	rep.Result = res

	// Step 4: Validate the layout with the same geometry settings.
	rep.Validation = layout.ValidateAll(res.Placed, layout.Checks{
		Distance:      opts.Distance,
		CheckOverlaps: opts.CheckOverlaps,
		Oracle:        opts.Oracle,
	})
	for _, e := range rep.Validation.Errors {
		a.logger.Printf("validation: %s", e)
	}

	// Step 5: Persist.
	if a.store != nil {
		rec := runstore.NewRecord(res, opts)
		rec.Library = cfg.Library
		for _, e := range rep.Validation.Errors {
			rec.Problems = append(rec.Problems, e.Error())
		}
		id, err := a.store.Save(rec)
		if err != nil {
			return rep, err
		}
		rep.ID = id
	}
	return rep, nil
}

// PrintSummary writes a human readable summary of rep to w.
func PrintSummary(w io.Writer, rep Report) {
	for _, e := range rep.EvalErrors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	res := rep.Result
	if res == nil {
		return
	}
	if rep.ID != "" {
		fmt.Fprintf(w, "run %s\n", rep.ID)
	}
	fmt.Fprintf(w, "seed %d, strategy %s\n", res.Seed, res.Strategy.Name)
	fmt.Fprintf(w, "placed %d pieces in %d attempts, stopped: %s\n", len(res.Placed), res.Attempts, res.Stop)

	counts := map[string]int{}
	var order []string
	for _, p := range res.Placed {
		name := p.Template().Name
		if counts[name] == 0 {
			order = append(order, name)
		}
		counts[name]++
	}
	for _, name := range order {
		fmt.Fprintf(w, "  %-12s %d\n", name, counts[name])
	}

	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if rep.Validation.OK() {
		fmt.Fprintf(w, "layout ok (%d open ends)\n", len(rep.Validation.Warnings))
		return
	}
	for _, e := range rep.Validation.Errors {
		fmt.Fprintf(w, "invalid: %s\n", e)
	}
}
