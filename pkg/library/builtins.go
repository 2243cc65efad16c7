package library

import (
	"fmt"
	"strings"

	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/kernel"
	"github.com/chazu/snapgen/pkg/piece"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	zygo "github.com/glycerine/zygomys/zygo"
	"github.com/samber/lo"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites template source before zygomys sees it:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal), so
//     keywords never collide with user variables.
//  2. Kebab-case to underscore: voxel-depth -> voxel_depth, since zygomys
//     reads a hyphen inside an identifier as subtraction.
//  3. ; line comments become // comments.
//
// String literals are left untouched.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		switch {
		case b[i] == '"':
			j := skipString(b, i)
			result = append(result, b[i:j]...)
			i = j
		case b[i] == '`':
			j := i + 1
			for j < len(b) && b[j] != '`' {
				j++
			}
			j = min(j+1, len(b))
			result = append(result, b[i:j]...)
			i = j
		case b[i] == ';':
			result = append(result, '/', '/')
			i++
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
		case b[i] == ':' && i+1 < len(b) && b[i+1] == '=':
			result = append(result, ':', '=')
			i += 2
		case b[i] == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			result = append(result, '"')
			result = append(result, kwPrefix...)
			result = append(result, b[i+1:j]...)
			result = append(result, '"')
			i = j
		case b[i] == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			result = append(result, '_')
			i++
		default:
			result = append(result, b[i])
			i++
		}
	}
	return string(result)
}

// skipString returns the index just past the double-quoted literal that
// starts at b[i].
func skipString(b []byte, i int) int {
	j := i + 1
	for j < len(b) && b[j] != '"' {
		if b[j] == '\\' && j+1 < len(b) {
			j++
		}
		j++
	}
	return min(j+1, len(b))
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

// ---------------------------------------------------------------------------
// Sexp wrappers for Go values passed between builtins
// ---------------------------------------------------------------------------

type sexpVec3 struct {
	vec v3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpShape is a piece of template geometry: a kernel solid and the
// collision boxes that cover it.
type sexpShape struct {
	solid kernel.Solid
	boxes []geom.Box
}

func (s *sexpShape) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(shape %d boxes)", len(s.boxes))
}
func (s *sexpShape) Type() *zygo.RegisteredType { return nil }

type sexpConnector struct {
	spec piece.ConnectorSpec
}

func (c *sexpConnector) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(connector :pins %d :colour :%s)", c.spec.Pins, c.spec.Colour)
}
func (c *sexpConnector) Type() *zygo.RegisteredType { return nil }

type sexpTemplate struct {
	tpl *piece.Template
}

func (t *sexpTemplate) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(piece %q)", t.tpl.Name)
}
func (t *sexpTemplate) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds a mixed positional and keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments. A
// trailing keyword without a value maps to SexpNull.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		switch {
		case !ok:
			result.positional = append(result.positional, args[i])
		case i+1 < len(args):
			result.kw[name] = args[i+1]
			i++
		default:
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString accepts a keyword (:red) or a plain string ("red").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	return strings.TrimPrefix(str.S, kwPrefix), nil
}

func toVec3(s zygo.Sexp) (v3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return v3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a list or array to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// ---------------------------------------------------------------------------
// Template builder
// ---------------------------------------------------------------------------

// builder collects the templates a source declares.
type builder struct {
	kernel    kernel.Kernel
	templates []*piece.Template
	names     map[string]bool
}

func newBuilder(k kernel.Kernel) *builder {
	return &builder{kernel: k, names: make(map[string]bool)}
}

// place applies the optional :rotate (Euler degrees) and :at keywords to
// a solid centered on the origin and returns it with its bounding box as
// the collision box.
func (b *builder) place(op string, pa kwArgs, s kernel.Solid) (*sexpShape, error) {
	if v, ok := pa.kw["rotate"]; ok {
		r, err := toVec3(v)
		if err != nil {
			return nil, fmt.Errorf("%s: rotate: %w", op, err)
		}
		s = b.kernel.Rotate(s, r.X, r.Y, r.Z)
	}
	if v, ok := pa.kw["at"]; ok {
		at, err := toVec3(v)
		if err != nil {
			return nil, fmt.Errorf("%s: at: %w", op, err)
		}
		s = b.kernel.Translate(s, at.X, at.Y, at.Z)
	}
	bmin, bmax := s.BoundingBox()
	box := geom.BoxFromSDF(sdf.Box3{
		Min: v3.Vec{X: bmin[0], Y: bmin[1], Z: bmin[2]},
		Max: v3.Vec{X: bmax[0], Y: bmax[1], Z: bmax[2]},
	})
	return &sexpShape{solid: s, boxes: []geom.Box{box}}, nil
}

// shapes extracts sexpShape arguments, flattening lists.
func shapes(op string, args []zygo.Sexp) ([]*sexpShape, error) {
	var out []*sexpShape
	for i, a := range args {
		switch v := a.(type) {
		case *sexpShape:
			out = append(out, v)
		default:
			items, err := sexpListToSlice(a)
			if err != nil {
				return nil, fmt.Errorf("%s: argument %d: expected shape, got %T (%s)", op, i+1, a, a.SexpString(nil))
			}
			inner, err := shapes(op, items)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the template DSL into env. Source must be
// preprocessed with preprocessSource so keywords arrive as marked strings.
func registerBuiltins(env *zygo.Zlisp, b *builder) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: v3.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (box :size (vec3 4 3 10) :at (vec3 0 1.5 0) :rotate (vec3 0 90 0))
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		v, ok := pa.kw["size"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("box requires :size")
		}
		size, err := toVec3(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: size: %w", err)
		}
		if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
			return zygo.SexpNull, fmt.Errorf("box: size must be positive, got (%g %g %g)", size.X, size.Y, size.Z)
		}
		s, err := b.kernel.Box(size.X, size.Y, size.Z)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		shape, err := b.place("box", pa, s)
		if err != nil {
			return zygo.SexpNull, err
		}
		return shape, nil
	})

	// -----------------------------------------------------------------------
	// (cylinder :height 3 :radius 1 :at (vec3 0 0 0) :rotate (vec3 90 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		var dims [2]float64
		for i, key := range []string{"height", "radius"} {
			v, ok := pa.kw[key]
			if !ok {
				return zygo.SexpNull, fmt.Errorf("cylinder requires :%s", key)
			}
			f, err := toFloat64(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("cylinder: %s: %w", key, err)
			}
			if f <= 0 {
				return zygo.SexpNull, fmt.Errorf("cylinder: %s must be positive, got %g", key, f)
			}
			dims[i] = f
		}
		s, err := b.kernel.Cylinder(dims[0], dims[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		shape, err := b.place("cylinder", pa, s)
		if err != nil {
			return zygo.SexpNull, err
		}
		return shape, nil
	})

	// -----------------------------------------------------------------------
	// (union a b ...)
	// -----------------------------------------------------------------------
	env.AddFunction("union", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		parts, err := shapes("union", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		if len(parts) == 0 {
			return zygo.SexpNull, fmt.Errorf("union requires at least one shape")
		}
		out := &sexpShape{solid: parts[0].solid}
		for i, p := range parts {
			if i > 0 {
				out.solid = b.kernel.Union(out.solid, p.solid)
			}
			out.boxes = append(out.boxes, p.boxes...)
		}
		return out, nil
	})

	// -----------------------------------------------------------------------
	// (difference outer cut ...)
	//
	// The collision boxes stay those of outer; voxelize the piece with
	// :voxel-depth to let other pieces into the carved space.
	// -----------------------------------------------------------------------
	env.AddFunction("difference", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		parts, err := shapes("difference", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		if len(parts) < 2 {
			return zygo.SexpNull, fmt.Errorf("difference requires a shape and at least one cut")
		}
		out := &sexpShape{solid: parts[0].solid, boxes: parts[0].boxes}
		for _, p := range parts[1:] {
			out.solid = b.kernel.Difference(out.solid, p.solid)
		}
		return out, nil
	})

	// -----------------------------------------------------------------------
	// (intersection a b ...)
	//
	// One collision box: the overlap of the parts' enclosing boxes.
	// -----------------------------------------------------------------------
	env.AddFunction("intersection", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		parts, err := shapes("intersection", args)
		if err != nil {
			return zygo.SexpNull, err
		}
		if len(parts) < 2 {
			return zygo.SexpNull, fmt.Errorf("intersection requires at least two shapes")
		}
		var common sdf.Box3
		for i, p := range parts {
			bb, ok := geom.Enclose(lo.Map(p.boxes, func(b geom.Box, _ int) sdf.Box3 { return b.SDF() }))
			if !ok {
				return zygo.SexpNull, fmt.Errorf("intersection: argument %d has no collision boxes", i+1)
			}
			if i == 0 {
				common = bb
				continue
			}
			common = sdf.Box3{Min: common.Min.Max(bb.Min), Max: common.Max.Min(bb.Max)}
		}
		box := geom.BoxFromSDF(common)
		if !box.Valid() {
			return zygo.SexpNull, fmt.Errorf("intersection: shapes do not overlap")
		}
		out := &sexpShape{solid: parts[0].solid, boxes: []geom.Box{box}}
		for _, p := range parts[1:] {
			out.solid = b.kernel.Intersection(out.solid, p.solid)
		}
		return out, nil
	})

	// -----------------------------------------------------------------------
	// (connector :at (vec3 0 0 5) :heading (vec3 0 0 1) :up (vec3 0 1 0)
	//            :pins 2 :colour :red :name "north")
	// -----------------------------------------------------------------------
	env.AddFunction("connector", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		spec := piece.ConnectorSpec{Frame: geom.Frame{Up: geom.UnitY}}

		v, ok := pa.kw["heading"]
		if !ok {
			return zygo.SexpNull, fmt.Errorf("connector requires :heading")
		}
		h, err := toVec3(v)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("connector: heading: %w", err)
		}
		if h.Length() < geom.Epsilon {
			return zygo.SexpNull, fmt.Errorf("connector: heading must not be zero")
		}
		spec.Frame.Heading = h

		for key, dst := range map[string]*v3.Vec{"at": &spec.Frame.Pos, "up": &spec.Frame.Up} {
			if v, ok := pa.kw[key]; ok {
				vec, err := toVec3(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("connector: %s: %w", key, err)
				}
				*dst = vec
			}
		}
		if v, ok := pa.kw["pins"]; ok {
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("connector: pins: %w", err)
			}
			if n < 0 {
				return zygo.SexpNull, fmt.Errorf("connector: pins must not be negative, got %d", n)
			}
			spec.Pins = uint(n)
		}
		for _, key := range []string{"colour", "color"} {
			if v, ok := pa.kw[key]; ok {
				s, err := toKeywordString(v)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("connector: %s: %w", key, err)
				}
				c, err := piece.ParseColour(s)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("connector: %w", err)
				}
				spec.Colour = c
			}
		}
		if v, ok := pa.kw["name"]; ok {
			s, err := toString(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("connector: name: %w", err)
			}
			spec.Name = s
		}
		return &sexpConnector{spec: spec}, nil
	})

	// -----------------------------------------------------------------------
	// (defpiece "hall" :voxel-depth 3 :samples 2
	//   (box :size (vec3 4 3 10))
	//   (connector :at (vec3 0 0 5) :heading (vec3 0 0 1)))
	// -----------------------------------------------------------------------
	env.AddFunction("defpiece", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < 1 {
			return zygo.SexpNull, fmt.Errorf("defpiece requires a name")
		}
		pieceName, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("defpiece: name: %w", err)
		}
		if b.names[pieceName] {
			return zygo.SexpNull, fmt.Errorf("defpiece: %q is already defined", pieceName)
		}

		tpl := &piece.Template{Name: pieceName}
		for _, key := range []string{"voxel-depth", "samples"} {
			v, ok := pa.kw[key]
			if !ok {
				continue
			}
			n, err := toInt(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("defpiece %s: %s: %w", pieceName, key, err)
			}
			if key == "samples" {
				tpl.Samples = n
			} else {
				tpl.VoxelDepth = n
			}
		}

		var solids []kernel.Solid
		var add func(items []zygo.Sexp) error
		add = func(items []zygo.Sexp) error {
			for _, item := range items {
				switch v := item.(type) {
				case *sexpShape:
					solids = append(solids, v.solid)
					tpl.Boxes = append(tpl.Boxes, v.boxes...)
				case *sexpConnector:
					tpl.Connectors = append(tpl.Connectors, v.spec)
				default:
					inner, err := sexpListToSlice(item)
					if err != nil {
						return fmt.Errorf("defpiece %s: expected shape or connector, got %T (%s)",
							pieceName, item, item.SexpString(nil))
					}
					if err := add(inner); err != nil {
						return err
					}
				}
			}
			return nil
		}
		if err := add(pa.positional[1:]); err != nil {
			return zygo.SexpNull, err
		}

		for i, s := range solids {
			if i == 0 {
				tpl.Solid = s
			} else {
				tpl.Solid = b.kernel.Union(tpl.Solid, s)
			}
		}
		if err := tpl.Validate(); err != nil {
			return zygo.SexpNull, fmt.Errorf("defpiece %s: %w", pieceName, err)
		}

		b.names[pieceName] = true
		b.templates = append(b.templates, tpl)
		return &sexpTemplate{tpl: tpl}, nil
	})
}
