// Package kernel defines the abstract geometry kernel interface used to
// describe the solid volume of a piece. Implementations (sdfx) build
// solids behind this interface; the voxelizer only needs bounding boxes
// and signed distances, so backends can be swapped without touching the
// collision code.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
	// Evaluate returns the signed distance from p to the surface,
	// negative inside the solid.
	Evaluate(p [3]float64) float64
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Primitives, centered on the origin.
	Box(x, y, z float64) (Solid, error)
	Cylinder(height, radius float64) (Solid, error)

	// Boolean operations
	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	// Transforms
	Translate(s Solid, x, y, z float64) Solid
	Rotate(s Solid, x, y, z float64) Solid // Euler angles in degrees
}

// Inside reports whether p lies inside s or on its surface.
func Inside(s Solid, p [3]float64) bool {
	return s.Evaluate(p) <= 0
}
