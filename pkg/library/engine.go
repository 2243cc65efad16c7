// Package library evaluates piece template sources. A source is a small
// Lisp program, run by zygomys in a sandbox, whose defpiece forms declare
// templates: collision geometry built with the sdfx kernel plus the
// connectors an assembly run matches.
package library

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/chazu/snapgen/pkg/kernel"
	"github.com/chazu/snapgen/pkg/kernel/sdfx"
	"github.com/chazu/snapgen/pkg/piece"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use;
// each call to Evaluate creates a fresh sandboxed environment.
type Engine struct {
	mu         sync.Mutex
	generation uint64
	kernel     kernel.Kernel
}

// NewEngine creates an Engine that builds solids with k, or with the sdfx
// kernel when k is nil.
func NewEngine(k kernel.Kernel) *Engine {
	if k == nil {
		k = sdfx.New()
	}
	return &Engine{kernel: k}
}

// Evaluate runs source and returns the templates it declares, in
// declaration order.
//
// Return semantics:
//   - On success: returns templates + nil errors + nil error
//   - On parse/eval failure: returns nil templates + eval errors + nil error
//   - On fatal failure (timeout, panic): returns nil + nil + error
func (e *Engine) Evaluate(source string) ([]*piece.Template, []EvalError, error) {
	return e.EvaluateContext(context.Background(), source)
}

// EvaluateContext is Evaluate, giving up early when ctx ends.
func (e *Engine) EvaluateContext(ctx context.Context, source string) ([]*piece.Template, []EvalError, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		t, evalErrs, err := e.evaluate(source)
		ch <- evalResult{templates: t, errors: evalErrs, err: err}
	}()

	return e.await(ctx, gen, ch)
}

// EvaluateFile reads and evaluates a template source file.
func (e *Engine) EvaluateFile(ctx context.Context, path string) ([]*piece.Template, []EvalError, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("library: %w", err)
	}
	return e.EvaluateContext(ctx, string(src))
}

func (e *Engine) evaluate(source string) ([]*piece.Template, []EvalError, error) {
	// Empty source is a valid program that declares nothing.
	if strings.TrimSpace(source) == "" {
		return nil, nil, nil
	}

	env := zygo.NewZlispSandbox()
	defer env.Stop()

	b := newBuilder(e.kernel)
	registerBuiltins(env, b)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return nil, parseZygomysError(err), nil
	}
	if _, err := env.Run(); err != nil {
		return nil, parseZygomysError(err), nil
	}
	return b.templates, nil, nil
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into EvalError values,
// extracting a line number when the message carries one.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
