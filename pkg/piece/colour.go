package piece

import (
	"fmt"
	"strings"
)

// Colour is the compatibility tag carried by a connector.
type Colour int

const (
	Red Colour = iota
	Green
	Blue
	Yellow
	Cyan
	Magenta
	White
	Black

	NumColours = iota
)

var colourNames = [NumColours]string{"red", "green", "blue", "yellow", "cyan", "magenta", "white", "black"}

func (c Colour) String() string {
	if c < 0 || int(c) >= NumColours {
		return fmt.Sprintf("Colour(%d)", int(c))
	}
	return colourNames[c]
}

// ParseColour returns the colour named s (case insensitive).
func ParseColour(s string) (Colour, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range colourNames {
		if name == s {
			return Colour(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownColour, s)
}

// ColourMatrix lists which colour pairs may connect. Row a, column b is
// read for a guide connector of colour a meeting a candidate of colour b,
// so the matrix need not be symmetric. The zero value allows no pair; a
// nil *ColourMatrix allows every pair.
type ColourMatrix [NumColours][NumColours]bool

// Allows reports whether a connector of colour a may meet one of colour b.
func (m *ColourMatrix) Allows(a, b Colour) bool {
	if m == nil {
		return true
	}
	if a < 0 || b < 0 || int(a) >= NumColours || int(b) >= NumColours {
		return false
	}
	return m[a][b]
}

// Set permits a guide of colour a to take a candidate of colour b. The
// reverse pair is left as it was.
func (m *ColourMatrix) Set(a, b Colour) {
	m[a][b] = true
}

// Allow permits a to meet b and b to meet a.
func (m *ColourMatrix) Allow(a, b Colour) {
	m[a][b] = true
	m[b][a] = true
}

// SameColourMatrix returns a matrix that only lets equal colours connect.
func SameColourMatrix() *ColourMatrix {
	m := &ColourMatrix{}
	for c := 0; c < NumColours; c++ {
		m[c][c] = true
	}
	return m
}

// SnapRules selects which compatibility predicates gate a connector pair.
type SnapRules uint8

const (
	RulePins SnapRules = 1 << iota
	RuleColours

	RuleNone SnapRules = 0
	RuleBoth           = RulePins | RuleColours
)

// Has reports whether r includes every flag in f.
func (r SnapRules) Has(f SnapRules) bool {
	return r&f == f
}

func (r SnapRules) String() string {
	var parts []string
	if r.Has(RulePins) {
		parts = append(parts, "pins")
	}
	if r.Has(RuleColours) {
		parts = append(parts, "colours")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ParseRules converts rule names ("pins", "colours"/"colors") into flags.
func ParseRules(names []string) (SnapRules, error) {
	var r SnapRules
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "pins":
			r |= RulePins
		case "colours", "colors":
			r |= RuleColours
		default:
			return 0, fmt.Errorf("piece: unknown snap rule %q", n)
		}
	}
	return r, nil
}
