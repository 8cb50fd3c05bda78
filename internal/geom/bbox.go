// Package geom provides the page-local rectangle math used by detection
// reconciliation: intersection, IoU, containment, and union.
package geom

import "math"

// BBox is an axis-aligned rectangle in page coordinates.
// (X0, Y0) is the top-left corner, (X1, Y1) the bottom-right.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// New returns a normalized box from two corner points.
func New(x0, y0, x1, y1 float64) BBox {
	return BBox{X0: x0, Y0: y0, X1: x1, Y1: y1}.Norm()
}

// Norm returns a copy with X1>=X0 and Y1>=Y0.
func (b BBox) Norm() BBox {
	if b.X1 < b.X0 {
		b.X0, b.X1 = b.X1, b.X0
	}
	if b.Y1 < b.Y0 {
		b.Y0, b.Y1 = b.Y1, b.Y0
	}
	return b
}

// Width returns the horizontal extent.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// Area returns the box area. Degenerate boxes have zero area.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Empty reports whether the box has no usable area.
func (b BBox) Empty() bool { return b.Area() <= 0 }

// Intersect returns the overlapping region of two boxes.
// If they do not overlap, the result is a degenerate (zero-area) box.
func (b BBox) Intersect(o BBox) BBox {
	r := BBox{
		X0: math.Max(b.X0, o.X0),
		Y0: math.Max(b.Y0, o.Y0),
		X1: math.Min(b.X1, o.X1),
		Y1: math.Min(b.Y1, o.Y1),
	}
	if r.X1 < r.X0 || r.Y1 < r.Y0 {
		return BBox{}
	}
	return r
}

// Union returns the smallest box covering both boxes.
func (b BBox) Union(o BBox) BBox {
	if b.Empty() {
		return o
	}
	if o.Empty() {
		return b
	}
	return BBox{
		X0: math.Min(b.X0, o.X0),
		Y0: math.Min(b.Y0, o.Y0),
		X1: math.Max(b.X1, o.X1),
		Y1: math.Max(b.Y1, o.Y1),
	}
}

// IoU returns intersection-over-union in [0,1].
func (b BBox) IoU(o BBox) float64 {
	inter := b.Intersect(o).Area()
	if inter <= 0 {
		return 0
	}
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ContainedFrac returns the fraction of b's area that lies inside o.
// A zero-area b yields 0.
func (b BBox) ContainedFrac(o BBox) float64 {
	area := b.Area()
	if area <= 0 {
		return 0
	}
	return b.Intersect(o).Area() / area
}

// OverlapFrac returns the overlap area relative to the smaller box.
// This is the measure tested against the configured overlap tolerance.
func (b BBox) OverlapFrac(o BBox) float64 {
	inter := b.Intersect(o).Area()
	if inter <= 0 {
		return 0
	}
	small := math.Min(b.Area(), o.Area())
	if small <= 0 {
		return 0
	}
	return inter / small
}
