// Package images - Box geometry and frame helpers for the detection pipeline.
package images

import (
	"fmt"
	"image"
)

// Rect is a lightweight bounding box in pixel coordinates.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// FromTLBR builds a Rect from the top/left/bottom/right order used by detectors.
//
// Arguments:
//   - top: The top edge (Y1).
//   - left: The left edge (X1).
//   - bottom: The bottom edge (Y2).
//   - right: The right edge (X2).
//
// Returns:
//   - Rect: The rectangle.
func FromTLBR(top, left, bottom, right int) Rect {
	return Rect{X1: left, Y1: top, X2: right, Y2: bottom}
}

// TLBR returns the rectangle as top, left, bottom, right.
func (r Rect) TLBR() (top, left, bottom, right int) {
	return r.Y1, r.X1, r.Y2, r.X2
}

// Width is the horizontal extent of the rectangle.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height is the vertical extent of the rectangle.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.X2 <= r.X1 || r.Y2 <= r.Y1 }

// Rectangle converts r into an image.Rectangle for drawing.
func (r Rect) Rectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

func (r Rect) String() string {
	return fmt.Sprintf("(top=%d, left=%d, bottom=%d, right=%d)", r.Y1, r.X1, r.Y2, r.X2)
}

// Shrink pulls every edge of the rectangle inward by fraction of its height
// (top and bottom) or width (left and right).
//
// Offsets are truncated to whole pixels before being applied, so a
// 100 pixel box shrunk by 0.2 loses exactly 20 pixels on each side.
//
// Arguments:
//   - fraction: The margin applied to each side, as a fraction of the box size.
//
// Returns:
//   - Rect: The shrunk rectangle.
//
// Example:
//
// ```go
//
//	box := FromTLBR(100, 100, 200, 200)
//	box.Shrink(0.2) // (top=120, left=120, bottom=180, right=180)
//
// ```
func (r Rect) Shrink(fraction float64) Rect {
	dy := int(fraction * float64(r.Height()))
	dx := int(fraction * float64(r.Width()))
	return Rect{
		X1: r.X1 + dx,
		Y1: r.Y1 + dy,
		X2: r.X2 - dx,
		Y2: r.Y2 - dy,
	}
}

// Clamp limits the rectangle to the bounds [0, width) x [0, height).
func (r Rect) Clamp(width, height int) Rect {
	return Rect{
		X1: clamp(r.X1, 0, width),
		Y1: clamp(r.Y1, 0, height),
		X2: clamp(r.X2, 0, width),
		Y2: clamp(r.Y2, 0, height),
	}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// CalculateIoU measures the overlap between two rectangles as
// area(intersection) / area(union).
//
// A value of 1.0 means the rectangles are identical, 0.0 means they do not
// overlap at all. Rectangles that only touch along an edge, or that have no
// area, yield 0.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//	CalculateIoU(rect1, rect2) // 25 / 175 = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	// Inclusion-exclusion: Union(A, B) = Area(A) + Area(B) - Intersection(A, B)
	areaR := (r.X2 - r.X1) * (r.Y2 - r.Y1)
	areaO := (o.X2 - o.X1) * (o.Y2 - o.Y1)
	unionArea := areaR + areaO - interArea
	if unionArea <= 0 {
		return 0.0
	}

	return float32(interArea) / float32(unionArea)
}
