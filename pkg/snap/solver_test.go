package snap

import (
	"math/rand"
	"testing"

	"github.com/chazu/snapgen/pkg/collide"
	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/piece"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// obstacleFunc adapts a function to collide.Obstacles.
type obstacleFunc func(p *piece.Piece) bool

func (f obstacleFunc) Collides(p *piece.Piece) bool { return f(p) }

// slab is a 2x2x2 cube with one connector on each of the given faces.
// Faces are named by their outward normal: "+x", "-x", "+z", "-z".
func slab(t *testing.T, name string, pins uint, faces ...string) *piece.Piece {
	t.Helper()
	normals := map[string]v3.Vec{
		"+x": geom.UnitX, "-x": geom.UnitX.Neg(),
		"+z": geom.UnitZ, "-z": geom.UnitZ.Neg(),
	}
	var specs []piece.ConnectorSpec
	for _, f := range faces {
		n := normals[f]
		specs = append(specs, piece.ConnectorSpec{
			Name:  f,
			Frame: geom.Frame{Pos: n, Heading: n, Up: geom.UnitY},
			Pins:  pins,
		})
	}
	tpl := &piece.Template{
		Name:       name,
		Connectors: specs,
		Boxes:      []geom.Box{geom.NewBox(v3.Vec{}, v3.Vec{X: 2, Y: 2, Z: 2})},
	}
	p, err := tpl.Instantiate()
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	return p
}

func near(a, b v3.Vec) bool { return a.Sub(b).Length() < 1e-9 }

func TestTrySnapAlignsConnectors(t *testing.T) {
	guide := slab(t, "guide", 1, "+x")
	cand := slab(t, "cand", 1, "+z")
	s := &Solver{Rules: piece.RulePins}

	res, ok := s.TrySnap(rand.New(rand.NewSource(1)), guide, cand, nil)
	if !ok {
		t.Fatal("TrySnap failed")
	}
	g, c := res.Pair.Guide.World(), res.Pair.Candidate.World()
	if !near(g.Pos, c.Pos) {
		t.Errorf("connector positions %v and %v do not coincide", g.Pos, c.Pos)
	}
	if !near(g.Heading, c.Heading.Neg()) {
		t.Errorf("headings %v and %v are not opposed", g.Heading, c.Heading)
	}
	if !near(cand.Transform().Pos, v3.Vec{X: 2}) {
		t.Errorf("candidate moved to %v, want (2,0,0)", cand.Transform().Pos)
	}
	if res.Pair.Guide.Match() != res.Pair.Candidate || res.Pair.Candidate.Match() != res.Pair.Guide {
		t.Error("matched connectors do not reference each other")
	}
}

func TestTrySnapDistanceOffset(t *testing.T) {
	guide := slab(t, "guide", 1, "+x")
	cand := slab(t, "cand", 1, "-x")
	s := &Solver{Rules: piece.RulePins, Distance: 0.5}

	res, ok := s.TrySnap(rand.New(rand.NewSource(1)), guide, cand, nil)
	if !ok {
		t.Fatal("TrySnap failed")
	}
	gap := res.Pair.Candidate.World().Pos.Sub(res.Pair.Guide.World().Pos)
	if !near(gap, v3.Vec{X: 0.5}) {
		t.Errorf("gap = %v, want 0.5 along +X", gap)
	}
}

func TestTrySnapPinTolerance(t *testing.T) {
	tests := []struct {
		name       string
		guidePins  uint
		candPins   uint
		tolerance  uint
		wantAccept bool
	}{
		{"equal", 2, 2, 0, true},
		{"at tolerance", 2, 5, 3, true},
		{"one past tolerance", 2, 6, 3, false},
		{"at tolerance, reversed", 5, 2, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guide := slab(t, "guide", tt.guidePins, "+x")
			cand := slab(t, "cand", tt.candPins, "-x")
			s := &Solver{Rules: piece.RulePins, PinTolerance: tt.tolerance}
			_, ok := s.TrySnap(rand.New(rand.NewSource(3)), guide, cand, nil)
			if ok != tt.wantAccept {
				t.Errorf("TrySnap ok = %v, want %v", ok, tt.wantAccept)
			}
		})
	}
}

func TestTrySnapRejectsFullOverlap(t *testing.T) {
	// Both connectors sit at the cube centers, so the only pair stacks
	// the candidate exactly on the guide.
	mk := func(name string) *piece.Piece {
		tpl := &piece.Template{
			Name: name,
			Connectors: []piece.ConnectorSpec{{
				Frame: geom.Frame{Heading: geom.UnitX, Up: geom.UnitY},
				Pins:  1,
			}},
			Boxes: []geom.Box{geom.NewBox(v3.Vec{}, v3.Vec{X: 2, Y: 2, Z: 2})},
		}
		p, err := tpl.Instantiate()
		if err != nil {
			t.Fatal(err)
		}
		return p
	}
	guide, cand := mk("guide"), mk("cand")
	before := cand.Transform()
	s := &Solver{Rules: piece.RulePins, CheckOverlaps: true}
	obstacles := collide.Scan{Pieces: []*piece.Piece{guide}, Oracle: collide.NewGeometric()}

	if _, ok := s.TrySnap(rand.New(rand.NewSource(1)), guide, cand, obstacles); ok {
		t.Fatal("TrySnap accepted an overlapping placement")
	}
	if guide.Connector(0).Used() || cand.Connector(0).Used() {
		t.Error("failed snap marked connectors used")
	}
	if cand.Transform() != before {
		t.Error("failed snap left the candidate moved")
	}

	// Without the overlap check the same placement is accepted.
	s.CheckOverlaps = false
	if _, ok := s.TrySnap(rand.New(rand.NewSource(1)), guide, cand, obstacles); !ok {
		t.Error("TrySnap without overlap check failed")
	}
}

func TestTrySnapRetriesEveryPair(t *testing.T) {
	guide := slab(t, "guide", 1, "+x", "-x", "+z", "-z")
	cand := slab(t, "cand", 1, "+x", "-x")
	s := &Solver{Rules: piece.RulePins, CheckOverlaps: true}

	// Only placements on the guide's -z side are free.
	blocked := obstacleFunc(func(p *piece.Piece) bool { return p.Transform().Pos.Z > -1 })
	seen := map[int]bool{}
	for seed := int64(0); seed < 20; seed++ {
		g := slab(t, "guide", 1, "+x", "-x", "+z", "-z")
		c := slab(t, "cand", 1, "+x", "-x")
		res, ok := s.TrySnap(rand.New(rand.NewSource(seed)), g, c, blocked)
		if !ok {
			t.Fatalf("seed %d: no pair found", seed)
		}
		if res.Pair.Guide.Name() != "-z" {
			t.Fatalf("seed %d: snapped to %s, want -z", seed, res.Pair.Guide.Name())
		}
		if res.Tries > 8 {
			t.Fatalf("seed %d: %d tries for 8 pairs", seed, res.Tries)
		}
		seen[res.Tries] = true
	}
	if len(seen) < 2 {
		t.Errorf("draw order never varied across seeds: %v", seen)
	}

	// With everything blocked the solver gives up after every pair.
	all := obstacleFunc(func(*piece.Piece) bool { return true })
	if _, ok := s.TrySnap(rand.New(rand.NewSource(1)), guide, cand, all); ok {
		t.Error("TrySnap succeeded with every placement blocked")
	}
	if guide.FreeCount() != 4 || cand.FreeCount() != 2 {
		t.Error("exhausted snap changed connector states")
	}
}

func TestTrySnapDeterministic(t *testing.T) {
	run := func() (string, string, geom.Transform) {
		guide := slab(t, "guide", 1, "+x", "-x", "+z", "-z")
		cand := slab(t, "cand", 1, "+x", "-x", "+z")
		s := &Solver{Rules: piece.RulePins}
		res, ok := s.TrySnap(rand.New(rand.NewSource(42)), guide, cand, nil)
		if !ok {
			t.Fatal("TrySnap failed")
		}
		return res.Pair.Guide.Name(), res.Pair.Candidate.Name(), res.Transform
	}
	g1, c1, t1 := run()
	g2, c2, t2 := run()
	if g1 != g2 || c1 != c2 || t1 != t2 {
		t.Errorf("runs differ: (%s,%s,%v) vs (%s,%s,%v)", g1, c1, t1, g2, c2, t2)
	}
}

func TestValidPairsSkipsUsed(t *testing.T) {
	guide := slab(t, "guide", 1, "+x", "-x")
	cand := slab(t, "cand", 1, "+x", "-x")
	s := &Solver{Rules: piece.RulePins}
	if n := len(s.ValidPairs(guide, cand)); n != 4 {
		t.Fatalf("ValidPairs = %d, want 4", n)
	}
	other := slab(t, "other", 1, "+x")
	_ = piece.Connect(guide.Connector(0), other.Connector(0))
	if n := len(s.ValidPairs(guide, cand)); n != 2 {
		t.Errorf("ValidPairs after use = %d, want 2", n)
	}
}
