package piece

import (
	"fmt"

	"github.com/chazu/snapgen/pkg/geom"
	"github.com/chazu/snapgen/pkg/kernel"
	"github.com/chazu/snapgen/pkg/voxel"
)

// Template is a prefab piece: local collision geometry plus connector
// specs. A template is immutable once instantiated; its voxel volume is
// built on first use and shared by every instance.
type Template struct {
	Name       string
	Connectors []ConnectorSpec
	// Boxes are collision boxes, axis aligned in the template frame.
	Boxes []geom.Box
	// Solid, when set with VoxelDepth > 0, is voxelized for voxel/voxel
	// collision tests.
	Solid      kernel.Solid
	VoxelDepth int
	Samples    int

	built     bool
	volume    *voxel.Octree
	volumeErr error
}

// ConnectorCount returns the number of distinct connectors an instance
// of t will have.
func (t *Template) ConnectorCount() int {
	p := &Piece{template: t}
	if err := p.Scan(t.Connectors); err != nil {
		return 0
	}
	return p.ConnectorCount()
}

// Validate checks the template's collision data without building the
// voxel volume.
func (t *Template) Validate() error {
	for i, b := range t.Boxes {
		if !b.Valid() {
			return fmt.Errorf("%w: template %q box %d has half extents %v", ErrBadBounds, t.Name, i, b.Half)
		}
	}
	if t.VoxelDepth > 0 && t.Solid == nil {
		return fmt.Errorf("%w: template %q sets a voxel depth without a solid", ErrBadBounds, t.Name)
	}
	return nil
}

// buildVolume voxelizes the template's solid once. The error, if any, is
// remembered so a broken template fails the same way every time.
func (t *Template) buildVolume() error {
	if t.built {
		return t.volumeErr
	}
	t.built = true
	if t.Solid == nil || t.VoxelDepth <= 0 {
		return nil
	}
	v, err := voxel.Build(t.Solid, t.VoxelDepth, t.Samples)
	if err != nil {
		t.volumeErr = fmt.Errorf("%w: template %q: %w", ErrBadBounds, t.Name, err)
		return t.volumeErr
	}
	t.volume = v
	return nil
}

// Instantiate materializes a fresh piece at the identity transform with
// its connectors scanned. It fails when the template's bounds are
// malformed.
func (t *Template) Instantiate() (*Piece, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := t.buildVolume(); err != nil {
		return nil, err
	}
	p := &Piece{template: t, transform: geom.Identity()}
	if err := p.Scan(t.Connectors); err != nil {
		return nil, err
	}
	return p, nil
}
