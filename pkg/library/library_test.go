package library

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/piece"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessSource(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{"simple keyword", `(box :size s)`, `(box "__kw_size" s)`},
		{"hyphenated keyword", `(defpiece "a" :voxel-depth 3)`, `(defpiece "a" "__kw_voxel-depth" 3)`},
		{"keyword in string preserved", `"a :b c"`, `"a :b c"`},
		{"escaped quote in string", `"a \" :b" :c`, `"a \" :b" "__kw_c"`},
		{"assignment operator preserved", `(def x := 10)`, `(def x := 10)`},
		{"kebab identifier", `(make-room 1)`, `(make_room 1)`},
		{"minus operator preserved", `(- 10 5)`, `(- 10 5)`},
		{"negative number preserved", `(vec3 0 -1 0)`, `(vec3 0 -1 0)`},
		{"comment converted", `;; pieces :for the map`, `// pieces :for the map`},
		{"backtick string preserved", "`raw :kw`", "`raw :kw`"},
		{"unterminated string", `"abc`, `"abc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := preprocessSource(tt.input); got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Evaluation tests
// ---------------------------------------------------------------------------

func evaluate(t *testing.T, source string) []*piece.Template {
	t.Helper()
	templates, evalErrs, err := NewEngine(nil).Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	return templates
}

func near(a, b v3.Vec) bool { return a.Sub(b).Length() < 1e-9 }

func TestEvaluateEmpty(t *testing.T) {
	for _, src := range []string{"", "  \n\t"} {
		if got := evaluate(t, src); len(got) != 0 {
			t.Errorf("Evaluate(%q) = %d templates, want 0", src, len(got))
		}
	}
}

func TestDefpieceBox(t *testing.T) {
	templates := evaluate(t, `
(defpiece "hall"
  (box :size (vec3 4 3 10))
  (connector :at (vec3 0 0 5) :heading (vec3 0 0 1) :pins 2 :colour :red :name "north")
  (connector :at (vec3 0 0 -5) :heading (vec3 0 0 -1) :up (vec3 1 0 0) :pins 1))
`)
	if len(templates) != 1 {
		t.Fatalf("got %d templates, want 1", len(templates))
	}
	hall := templates[0]
	if hall.Name != "hall" {
		t.Errorf("name = %q", hall.Name)
	}
	if len(hall.Boxes) != 1 {
		t.Fatalf("got %d boxes, want 1", len(hall.Boxes))
	}
	if b := hall.Boxes[0]; !near(b.Center, v3.Vec{}) || !near(b.Half, v3.Vec{X: 2, Y: 1.5, Z: 5}) {
		t.Errorf("box = %+v, want half (2 1.5 5) at the origin", b)
	}
	if hall.Solid == nil {
		t.Error("template has no solid")
	}
	if len(hall.Connectors) != 2 {
		t.Fatalf("got %d connectors, want 2", len(hall.Connectors))
	}
	north := hall.Connectors[0]
	if north.Name != "north" || north.Pins != 2 || north.Colour != piece.Red {
		t.Errorf("north = %+v", north)
	}
	if !near(north.Frame.Pos, v3.Vec{Z: 5}) || !near(north.Frame.Up, geom.UnitY) {
		t.Errorf("north frame = %+v, want default up +Y", north.Frame)
	}
	if south := hall.Connectors[1]; !near(south.Frame.Up, geom.UnitX) || south.Colour != piece.Red {
		t.Errorf("south = %+v, want up +X and the zero colour", south)
	}
}

func TestDefpieceVariables(t *testing.T) {
	templates := evaluate(t, `
(def w 6)
(def pins 3)
(defpiece "room" (box :size (vec3 w w w)) (connector :heading (vec3 1 0 0) :at (vec3 (/ w 2) 0 0) :pins pins))
`)
	room := templates[0]
	if !near(room.Boxes[0].Half, v3.Vec{X: 3, Y: 3, Z: 3}) {
		t.Errorf("half = %v, want 3 from the variable", room.Boxes[0].Half)
	}
	if room.Connectors[0].Pins != 3 || !near(room.Connectors[0].Frame.Pos, v3.Vec{X: 3}) {
		t.Errorf("connector = %+v", room.Connectors[0])
	}
}

func TestBoxPlacement(t *testing.T) {
	templates := evaluate(t, `
(defpiece "moved" (box :size (vec3 2 4 6) :at (vec3 1 0 0)))
(defpiece "turned" (box :size (vec3 2 4 6) :rotate (vec3 0 90 0)))
`)
	moved, turned := templates[0].Boxes[0], templates[1].Boxes[0]
	if !near(moved.Center, v3.Vec{X: 1}) || !near(moved.Half, v3.Vec{X: 1, Y: 2, Z: 3}) {
		t.Errorf("moved box = %+v", moved)
	}
	if !near(turned.Center, v3.Vec{}) || turned.Half.Sub(v3.Vec{X: 3, Y: 2, Z: 1}).Length() > 1e-6 {
		t.Errorf("turned box = %+v, want half (3 2 1)", turned)
	}
}

func TestCylinderAndUnion(t *testing.T) {
	templates := evaluate(t, `
(defpiece "tower"
  (union (cylinder :height 10 :radius 2)
         (box :size (vec3 8 8 1) :at (vec3 0 0 -5.5))))
`)
	tower := templates[0]
	if len(tower.Boxes) != 2 {
		t.Fatalf("got %d boxes, want 2", len(tower.Boxes))
	}
	if !near(tower.Boxes[0].Half, v3.Vec{X: 2, Y: 2, Z: 5}) {
		t.Errorf("cylinder box half = %v", tower.Boxes[0].Half)
	}
	if d := tower.Solid.Evaluate([3]float64{0, 0, 0}); d >= 0 {
		t.Errorf("center of the cylinder is outside the solid (%g)", d)
	}
	if d := tower.Solid.Evaluate([3]float64{3.5, 0, -5.5}); d >= 0 {
		t.Errorf("point on the base is outside the solid (%g)", d)
	}
}

func TestDifferenceVoxelized(t *testing.T) {
	templates := evaluate(t, `
(defpiece "room" :voxel-depth 3 :samples 1
  (difference (box :size (vec3 10 10 10)) (box :size (vec3 8 8 8)))
  (connector :at (vec3 5 0 0) :heading (vec3 1 0 0)))
`)
	room := templates[0]
	if room.VoxelDepth != 3 || room.Samples != 1 {
		t.Errorf("voxel depth %d samples %d", room.VoxelDepth, room.Samples)
	}
	if d := room.Solid.Evaluate([3]float64{0, 0, 0}); d <= 0 {
		t.Errorf("carved center is inside the solid (%g)", d)
	}
	p, err := room.Instantiate()
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if p.Volume() == nil {
		t.Fatal("voxelized template has no volume")
	}
	if p.Volume().Occupied(v3.Vec{}, 0.5) {
		t.Error("room center is occupied")
	}
}

func TestIntersectionBox(t *testing.T) {
	templates := evaluate(t, `
(defpiece "lens"
  (intersection (box :size (vec3 4 4 4))
                (box :size (vec3 4 4 4) :at (vec3 2 0 0)))
  (connector :at (vec3 1 0 0) :heading (vec3 1 0 0)))
`)
	lens := templates[0]
	if len(lens.Boxes) != 1 {
		t.Fatalf("got %d boxes, want 1", len(lens.Boxes))
	}
	if !near(lens.Boxes[0].Center, v3.Vec{X: 1}) || !near(lens.Boxes[0].Half, v3.Vec{X: 1, Y: 2, Z: 2}) {
		t.Errorf("box = %+v, want center (1 0 0) half (1 2 2)", lens.Boxes[0])
	}
	if d := lens.Solid.Evaluate([3]float64{1, 0, 0}); d >= 0 {
		t.Errorf("shared point is outside the solid (%g)", d)
	}
	if d := lens.Solid.Evaluate([3]float64{-1.5, 0, 0}); d <= 0 {
		t.Errorf("point of the first box only is inside the solid (%g)", d)
	}
}

func TestConnectorLists(t *testing.T) {
	templates := evaluate(t, `
(def doors (list (connector :heading (vec3 1 0 0) :at (vec3 1 0 0))
                 (connector :heading (vec3 -1 0 0) :at (vec3 -1 0 0) :color "blue")))
(defpiece "pipe" (box :size (vec3 2 2 2)) doors)
`)
	pipe := templates[0]
	if len(pipe.Connectors) != 2 {
		t.Fatalf("got %d connectors, want 2", len(pipe.Connectors))
	}
	if pipe.Connectors[1].Colour != piece.Blue {
		t.Errorf("colour = %s, want blue", pipe.Connectors[1].Colour)
	}
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"unknown colour", `(defpiece "a" (connector :heading (vec3 1 0 0) :colour :mauve))`, "unknown colour"},
		{"missing heading", `(defpiece "a" (connector :at (vec3 1 0 0)))`, "requires :heading"},
		{"zero heading", `(defpiece "a" (connector :heading (vec3 0 0 0)))`, "must not be zero"},
		{"negative pins", `(defpiece "a" (connector :heading (vec3 1 0 0) :pins -1))`, "must not be negative"},
		{"duplicate piece", `(defpiece "a") (defpiece "a")`, "already defined"},
		{"missing name", `(defpiece)`, "requires a name"},
		{"bad body", `(defpiece "a" 42)`, "expected shape or connector"},
		{"flat box", `(defpiece "a" (box :size (vec3 1 0 1)))`, "must be positive"},
		{"box without size", `(defpiece "a" (box))`, "requires :size"},
		{"vec3 arity", `(vec3 1 2)`, "exactly 3"},
		{"voxels without solid", `(defpiece "a" :voxel-depth 2)`, "voxel depth"},
		{"difference arity", `(difference (box :size (vec3 1 1 1)))`, "at least one cut"},
		{"intersection arity", `(intersection (box :size (vec3 1 1 1)))`, "at least two shapes"},
		{"disjoint intersection", `(intersection (box :size (vec3 1 1 1)) (box :size (vec3 1 1 1) :at (vec3 5 0 0)))`, "do not overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			templates, evalErrs, err := NewEngine(nil).Evaluate(tt.source)
			if err != nil {
				t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
			}
			if templates != nil {
				t.Error("expected nil templates on eval error")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected at least one eval error")
			}
			if !strings.Contains(evalErrs[0].Message, tt.want) {
				t.Errorf("message %q does not contain %q", evalErrs[0].Message, tt.want)
			}
		})
	}
}

func TestEvaluateSyntaxError(t *testing.T) {
	_, evalErrs, err := NewEngine(nil).Evaluate("(vec3 1 2 3)\n(defpiece \"a\"")
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) == 0 || evalErrs[0].Message == "" {
		t.Fatalf("eval errors = %v, want a message", evalErrs)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	src := `(defpiece "a" (box :size (vec3 1 2 3)) (connector :heading (vec3 0 1 0) :pins 4))`
	a, b := evaluate(t, src), evaluate(t, src)
	if a[0].Boxes[0] != b[0].Boxes[0] || a[0].Connectors[0] != b[0].Connectors[0] {
		t.Error("two evaluations of one source differ")
	}
}

func TestEvaluateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pieces.lisp")
	src := "; one piece\n(defpiece \"a\" (box :size (vec3 1 1 1)))\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	templates, evalErrs, err := NewEngine(nil).EvaluateFile(context.Background(), path)
	if err != nil || len(evalErrs) > 0 || len(templates) != 1 {
		t.Fatalf("EvaluateFile = %d templates, %v, %v", len(templates), evalErrs, err)
	}
	if _, _, err := NewEngine(nil).EvaluateFile(context.Background(), filepath.Join(t.TempDir(), "missing.lisp")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want ErrNotExist", err)
	}
}

func TestEvalErrorImplementsError(t *testing.T) {
	var err error = EvalError{Line: 3, Message: "bad"}
	if err.Error() != "line 3: bad" {
		t.Errorf("Error() = %q", err.Error())
	}
	if got := (EvalError{Message: "bad"}).Error(); got != "bad" {
		t.Errorf("Error() without line = %q", got)
	}
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		msg      string
		wantLine int
		wantMsg  string
	}{
		{"Error on line 4: unexpected end", 4, "unexpected end"},
		{"line 2: bad token", 2, "bad token"},
		{"  something broke  ", 0, "something broke"},
	}
	for _, tt := range tests {
		got := parseZygomysError(errors.New(tt.msg))
		if len(got) != 1 || got[0].Line != tt.wantLine || got[0].Message != tt.wantMsg {
			t.Errorf("parseZygomysError(%q) = %+v", tt.msg, got)
		}
	}
}

// ---------------------------------------------------------------------------
// Timeout plumbing
// ---------------------------------------------------------------------------

func TestAwaitTimeout(t *testing.T) {
	e := NewEngine(nil)
	e.generation = 1
	ch := make(chan evalResult) // never sends

	start := time.Now()
	_, _, err := e.await(context.Background(), 1, ch)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < EvalTimeout {
		t.Errorf("returned after %s, before the %s limit", elapsed, EvalTimeout)
	}
}

func TestAwaitCancelled(t *testing.T) {
	e := NewEngine(nil)
	e.generation = 1
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.await(ctx, 1, make(chan evalResult))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if _, _, err := e.EvaluateContext(ctx, `(defpiece "a")`); err == nil {
		t.Error("EvaluateContext with a cancelled context succeeded")
	}
}

func TestAwaitDiscardsStale(t *testing.T) {
	e := NewEngine(nil)
	e.generation = 2
	ch := make(chan evalResult, 1)
	ch <- evalResult{}

	if _, _, err := e.await(context.Background(), 1, ch); !errors.Is(err, ErrSuperseded) {
		t.Errorf("err = %v, want ErrSuperseded", err)
	}
}

func TestCylinderBoxIsFinite(t *testing.T) {
	templates := evaluate(t, `(defpiece "pole" (cylinder :height 4 :radius 0.5 :rotate (vec3 90 0 0)))`)
	h := templates[0].Boxes[0].Half
	for _, c := range []float64{h.X, h.Y, h.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) || c <= 0 {
			t.Fatalf("half extents %v", h)
		}
	}
	if math.Abs(h.Y-2) > 1e-6 {
		t.Errorf("rotated pole half height along Y = %g, want 2", h.Y)
	}
}
