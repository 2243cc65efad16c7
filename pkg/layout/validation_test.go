package layout

import (
	"context"
	"strings"
	"testing"

	"github.com/chazu/snapgen/pkg/assembly"
	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/piece"
	"github.com/chazu/snapgen/pkg/strategy"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// pipe is a 2x2x2 cube with connectors on its +X and -X faces.
func pipe() *piece.Template {
	return &piece.Template{
		Name:  "pipe",
		Boxes: []geom.Box{geom.NewBox(v3.Vec{}, v3.Vec{X: 2, Y: 2, Z: 2})},
		Connectors: []piece.ConnectorSpec{
			{Name: "east", Frame: geom.Frame{Pos: geom.UnitX, Heading: geom.UnitX, Up: geom.UnitY}, Pins: 1},
			{Name: "west", Frame: geom.Frame{Pos: geom.UnitX.Neg(), Heading: geom.UnitX.Neg(), Up: geom.UnitY}, Pins: 1},
		},
	}
}

func instance(t *testing.T, tpl *piece.Template, x float64) *piece.Piece {
	t.Helper()
	p, err := tpl.Instantiate()
	if err != nil {
		t.Fatal(err)
	}
	p.SetTransform(geom.Translation(v3.Vec{X: x}))
	return p
}

// chain lays n pipes along X, each joined east-to-west to the next.
func chain(t *testing.T, n int) []*piece.Piece {
	t.Helper()
	tpl := pipe()
	var placed []*piece.Piece
	for i := 0; i < n; i++ {
		p := instance(t, tpl, float64(2*i))
		if i > 0 {
			if err := piece.Connect(placed[i-1].Connector(0), p.Connector(1)); err != nil {
				t.Fatal(err)
			}
		}
		placed = append(placed, p)
	}
	return placed
}

// hasError returns true if errs contains an error-severity finding whose
// message contains substr.
func hasError(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityError && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Tier 1
// ---------------------------------------------------------------------------

func TestValidateChain(t *testing.T) {
	if errs := Validate(chain(t, 4)); len(errs) != 0 {
		t.Errorf("valid chain reported %v", errs)
	}
}

func TestValidateEmpty(t *testing.T) {
	if errs := Validate(nil); len(errs) != 0 {
		t.Errorf("empty layout reported %v", errs)
	}
}

func TestValidateDuplicatePiece(t *testing.T) {
	placed := chain(t, 2)
	placed = append(placed, placed[1])
	errs := Validate(placed)
	if !hasError(errs, "also placed at index 1") {
		t.Errorf("duplicate not reported: %v", errs)
	}
}

func TestValidateUnplacedPartner(t *testing.T) {
	placed := chain(t, 3)
	errs := Validate(placed[:2])
	if !hasError(errs, "not placed") {
		t.Errorf("partner outside the layout not reported: %v", errs)
	}
}

func TestValidateDisconnected(t *testing.T) {
	placed := chain(t, 2)
	placed = append(placed, instance(t, pipe(), 10))
	errs := Validate(placed)
	if !hasError(errs, "not connected to the starter") {
		t.Errorf("stray piece not reported: %v", errs)
	}
	if len(errs) != 1 || errs[0].Piece != 2 {
		t.Errorf("findings = %v, want one on piece 2", errs)
	}
}

func TestValidateNilPiece(t *testing.T) {
	placed := append(chain(t, 1), nil)
	if errs := Validate(placed); !hasError(errs, "nil piece") {
		t.Errorf("nil piece not reported: %v", errs)
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Piece: 3, Message: "boom", Severity: SeverityError}
	if got := e.Error(); got != "[error] piece 3: boom" {
		t.Errorf("Error() = %q", got)
	}
	e = ValidationError{Piece: -1, Message: "boom", Severity: SeverityWarning}
	if got := e.Error(); got != "[warning] boom" {
		t.Errorf("Error() = %q", got)
	}
	if got := ValidationSeverity(7).String(); got != "ValidationSeverity(7)" {
		t.Errorf("String() = %q", got)
	}
}

// ---------------------------------------------------------------------------
// Tier 2
// ---------------------------------------------------------------------------

func TestValidateAllChain(t *testing.T) {
	r := ValidateAll(chain(t, 3), Checks{CheckOverlaps: true})
	if !r.OK() {
		t.Fatalf("valid chain reported %v", r.Errors)
	}
	// The last pipe has one link and one open end.
	if len(r.Warnings) != 1 || r.Warnings[0].Piece != 2 {
		t.Errorf("warnings = %v, want a dead end at piece 2", r.Warnings)
	}
}

func TestValidateAllGap(t *testing.T) {
	placed := chain(t, 2)
	placed[1].SetTransform(geom.Translation(v3.Vec{X: 2.5}))

	if r := ValidateAll(placed, Checks{}); !hasError(r.Errors, "apart") {
		t.Errorf("misplaced connector not reported: %v", r.Errors)
	}
	if r := ValidateAll(placed, Checks{Distance: 0.5}); !r.OK() {
		t.Errorf("gap of 0.5 rejected with distance 0.5: %v", r.Errors)
	}
}

func TestValidateAllFacing(t *testing.T) {
	placed := chain(t, 2)
	// Turn the second pipe around: its west connector now points +X.
	placed[1].SetTransform(geom.Transform{
		Rot: geom.EulerRotation(v3.Vec{Y: 180}),
		Pos: v3.Vec{},
	})
	r := ValidateAll(placed, Checks{})
	if !hasError(r.Errors, "do not face each other") {
		t.Errorf("parallel connectors not reported: %v", r.Errors)
	}
}

func TestValidateAllOverlap(t *testing.T) {
	placed := chain(t, 2)
	placed[1].SetTransform(geom.Translation(v3.Vec{X: 1}))
	r := ValidateAll(placed, Checks{CheckOverlaps: true, Epsilon: 10})
	if !hasError(r.Errors, "intersects piece 0") {
		t.Errorf("overlap not reported: %v", r.Errors)
	}
	if r := ValidateAll(placed, Checks{Epsilon: 10}); hasError(r.Errors, "intersects") {
		t.Error("overlap reported with overlap checks off")
	}
}

func TestValidateGeneratedLayouts(t *testing.T) {
	library := []*piece.Template{
		pipe(),
		{
			Name:  "cross",
			Boxes: []geom.Box{geom.NewBox(v3.Vec{}, v3.Vec{X: 2, Y: 2, Z: 2})},
			Connectors: []piece.ConnectorSpec{
				{Frame: geom.Frame{Pos: geom.UnitX, Heading: geom.UnitX, Up: geom.UnitY}, Pins: 1},
				{Frame: geom.Frame{Pos: geom.UnitX.Neg(), Heading: geom.UnitX.Neg(), Up: geom.UnitY}, Pins: 1},
				{Frame: geom.Frame{Pos: geom.UnitZ, Heading: geom.UnitZ, Up: geom.UnitY}, Pins: 1},
				{Frame: geom.Frame{Pos: geom.UnitZ.Neg(), Heading: geom.UnitZ.Neg(), Up: geom.UnitY}, Pins: 1},
			},
		},
	}
	for _, name := range strategy.Names() {
		t.Run(name, func(t *testing.T) {
			s, err := strategy.New(strategy.Params{Name: name, MaxPieces: 20, BranchLength: 3, Branches: 4, ArmLength: 2})
			if err != nil {
				t.Fatal(err)
			}
			seed := int64(11)
			res, err := assembly.Generate(context.Background(), library, s, assembly.Options{
				Seed: &seed, MaxPieces: 20, Distance: 0.25, CheckOverlaps: true,
			})
			if err != nil {
				t.Fatal(err)
			}
			r := ValidateAll(res.Placed, Checks{Distance: 0.25, CheckOverlaps: true})
			if !r.OK() {
				t.Errorf("generated layout invalid: %v", r.Errors)
			}
		})
	}
}
