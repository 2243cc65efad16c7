package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/snapgen/pkg/piece"
)

// EvalTimeout bounds a single evaluation regardless of the caller's context.
const EvalTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when an evaluation runs past EvalTimeout.
	ErrTimeout = errors.New("library: evaluation timed out")
	// ErrSuperseded is returned when a newer Evaluate call started before
	// this one finished.
	ErrSuperseded = errors.New("library: evaluation superseded by a newer request")
)

type evalResult struct {
	templates []*piece.Template
	errors    []EvalError
	err       error
}

// await blocks until ch delivers the result of evaluation gen, ctx ends
// or EvalTimeout passes. An abandoned evaluation keeps running in its
// goroutine; ch must be buffered so it can still deliver and exit.
func (e *Engine) await(ctx context.Context, gen uint64, ch <-chan evalResult) ([]*piece.Template, []EvalError, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("library: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, EvalTimeout)
	defer cancel()

	select {
	case res := <-ch:
		if !e.current(gen) {
			return nil, nil, ErrSuperseded
		}
		return res.templates, res.errors, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("%w after %s", ErrTimeout, EvalTimeout)
		}
		return nil, nil, fmt.Errorf("library: %w", ctx.Err())
	}
}

// current reports whether gen is still the latest evaluation.
func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen == e.generation
}
