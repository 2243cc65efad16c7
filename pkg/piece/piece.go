// Package piece models the assembly units of a generated map: templates
// (prefabs) with local geometry and connector specs, and the piece
// instances materialized from them whose connectors are matched during
// assembly.
package piece

import (
	"errors"
	"fmt"
	"sort"

	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/voxel"
	"github.com/deadsy/sdfx/sdf"
	"github.com/samber/lo"
)

var (
	// ErrAlreadyScanned is returned when a piece's connectors are scanned twice.
	ErrAlreadyScanned = errors.New("piece: connectors already scanned")
	// ErrUnknownColour is returned for a colour name outside the palette.
	ErrUnknownColour = errors.New("piece: unknown colour")
	// ErrAlreadyUsed is returned when connecting a used connector.
	ErrAlreadyUsed = errors.New("piece: connector already used")
	// ErrSelfMatch is returned when connecting two connectors of one piece.
	ErrSelfMatch = errors.New("piece: connectors belong to the same piece")
	// ErrBadBounds is returned for templates with malformed collision data.
	ErrBadBounds = errors.New("piece: malformed bounds")
	// ErrBadConnector is returned for connector specs without a heading.
	ErrBadConnector = errors.New("piece: malformed connector")
)

// dedupeEpsilon is the distance under which two connector specs with the
// same heading are the same connector discovered twice.
const dedupeEpsilon = 1e-6

// Piece is an instance of a template placed (or about to be placed) in a
// map. Its connector list is fixed once scanned.
type Piece struct {
	template   *Template
	connectors []*Connector
	scanned    bool
	transform  geom.Transform
}

// Template returns the template the piece was instantiated from.
func (p *Piece) Template() *Template { return p.template }

// Name returns the template name.
func (p *Piece) Name() string {
	if p.template == nil {
		return "<anonymous>"
	}
	return p.template.Name
}

// Scan discovers the piece's connectors from specs. Duplicates (same
// position and heading) are dropped and the rest are ordered by
// descending pin count, keeping spec order among equal counts. Scanning is
// done exactly once per instance.
func (p *Piece) Scan(specs []ConnectorSpec) error {
	if p.scanned {
		return fmt.Errorf("%w: %s", ErrAlreadyScanned, p.Name())
	}
	kept := make([]ConnectorSpec, 0, len(specs))
	for _, s := range specs {
		if s.Frame.Heading.Length() < geom.Epsilon {
			return fmt.Errorf("%w: %s connector %q has no heading", ErrBadConnector, p.Name(), s.Name)
		}
		dup := lo.ContainsBy(kept, func(k ConnectorSpec) bool {
			return k.Frame.Pos.Sub(s.Frame.Pos).Length() < dedupeEpsilon &&
				k.Frame.Heading.Normalize().Sub(s.Frame.Heading.Normalize()).Length() < dedupeEpsilon
		})
		if !dup {
			kept = append(kept, s)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Pins > kept[j].Pins })

	p.connectors = make([]*Connector, len(kept))
	for i, s := range kept {
		p.connectors[i] = &Connector{spec: s, index: i, owner: p}
	}
	p.scanned = true
	return nil
}

// Connectors returns the ordered connector list. Callers must not modify it.
func (p *Piece) Connectors() []*Connector { return p.connectors }

// Connector returns the connector at index i.
func (p *Piece) Connector(i int) *Connector { return p.connectors[i] }

// ConnectorCount returns the number of connectors.
func (p *Piece) ConnectorCount() int { return len(p.connectors) }

// FreeCount returns the number of connectors not yet matched.
func (p *Piece) FreeCount() int {
	return lo.CountBy(p.connectors, func(c *Connector) bool { return !c.used })
}

// Full reports whether every connector is used.
func (p *Piece) Full() bool {
	return p.FreeCount() == 0
}

// Transform returns the piece's world transform.
func (p *Piece) Transform() geom.Transform { return p.transform }

// SetTransform moves the piece. Connector states are unaffected.
func (p *Piece) SetTransform(t geom.Transform) { p.transform = t }

// Boxes returns the template's local collision boxes.
func (p *Piece) Boxes() []geom.Box {
	if p.template == nil {
		return nil
	}
	return p.template.Boxes
}

// Volume returns the template's voxel volume, or nil if it has none.
func (p *Piece) Volume() *voxel.Octree {
	if p.template == nil {
		return nil
	}
	return p.template.volume
}

// LocalBounds returns the local box enclosing every collision box and the
// voxel volume. It returns false for a piece without bounds.
func (p *Piece) LocalBounds() (geom.Box, bool) {
	boxes := lo.Map(p.Boxes(), func(b geom.Box, _ int) sdf.Box3 { return b.SDF() })
	if v := p.Volume(); v != nil {
		boxes = append(boxes, v.Bounds().SDF())
	}
	u, ok := geom.Enclose(boxes)
	if !ok {
		return geom.Box{}, false
	}
	return geom.BoxFromSDF(u), true
}

// WorldAABB returns the world axis-aligned box around the piece's bounds.
func (p *Piece) WorldAABB() (sdf.Box3, bool) {
	b, ok := p.LocalBounds()
	if !ok {
		return sdf.Box3{}, false
	}
	return b.World(p.transform).AABB(), true
}
