package piece

import (
	"fmt"

	"github.com/chazu/snapgen/pkg/geom"
)

// ConnectorSpec describes a connector on a template, in the template's
// local frame.
type ConnectorSpec struct {
	Name   string     `json:"name,omitempty"`
	Frame  geom.Frame `json:"frame"`
	Pins   uint       `json:"pins"`
	Colour Colour     `json:"colour"`
}

// Connector is an attachment point on a piece instance. Its frame, pins
// and colour are fixed; only the used flag and the matched partner change,
// and only through Connect.
type Connector struct {
	spec  ConnectorSpec
	index int
	owner *Piece
	used  bool
	match *Connector
}

// Name returns the connector's optional name.
func (c *Connector) Name() string { return c.spec.Name }

// Pins returns the pin count.
func (c *Connector) Pins() uint { return c.spec.Pins }

// Colour returns the colour tag.
func (c *Connector) Colour() Colour { return c.spec.Colour }

// Local returns the connector frame in the owning piece's local frame.
func (c *Connector) Local() geom.Frame { return c.spec.Frame }

// Index returns the connector's position in its owner's ordered list.
func (c *Connector) Index() int { return c.index }

// Owner returns the piece the connector belongs to.
func (c *Connector) Owner() *Piece { return c.owner }

// Used reports whether the connector has been matched.
func (c *Connector) Used() bool { return c.used }

// Match returns the connector this one was matched with, or nil.
func (c *Connector) Match() *Connector { return c.match }

// World returns the connector frame under the owner's current transform.
func (c *Connector) World() geom.Frame {
	return c.spec.Frame.In(c.owner.transform)
}

func (c *Connector) String() string {
	name := c.spec.Name
	if name == "" {
		name = fmt.Sprintf("#%d", c.index)
	}
	return fmt.Sprintf("%s/%s(pins=%d %s)", c.owner.Name(), name, c.spec.Pins, c.spec.Colour)
}

// Connect commits a match between a and b: both become used and each
// records the other as its partner. It fails without changing either
// connector if one of them is already used or both belong to one piece.
func Connect(a, b *Connector) error {
	if a.used || b.used {
		return fmt.Errorf("%w: %s, %s", ErrAlreadyUsed, a, b)
	}
	if a.owner == b.owner {
		return fmt.Errorf("%w: %s and %s share a piece", ErrSelfMatch, a, b)
	}
	a.used, b.used = true, true
	a.match, b.match = b, a
	return nil
}

// Compatible reports whether a and b are both free and satisfy rules:
// with RulePins their pin counts differ by at most pinTolerance, with
// RuleColours the matrix allows their colours. A nil matrix allows every
// colour pair.
func Compatible(a, b *Connector, rules SnapRules, pinTolerance uint, colours *ColourMatrix) bool {
	if a.used || b.used {
		return false
	}
	if rules.Has(RulePins) && pinDiff(a.spec.Pins, b.spec.Pins) > pinTolerance {
		return false
	}
	if rules.Has(RuleColours) && !colours.Allows(a.spec.Colour, b.spec.Colour) {
		return false
	}
	return true
}

func pinDiff(a, b uint) uint {
	if a > b {
		return a - b
	}
	return b - a
}
