// Package grid provides integer plane geometry for Intcode controllers.
//
// The plane uses mathematical orientation: North is +Y, East is +X.
package grid

import "fmt"

// Point is a position or direction on the plane.
type Point struct {
	X, Y int
}

// Unit directions.
var (
	North = Point{0, 1}
	South = Point{0, -1}
	West  = Point{-1, 0}
	East  = Point{1, 0}
)

// Directions lists the four unit directions clockwise from North.
var Directions = [4]Point{North, East, South, West}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{p.X + q.X, p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{p.X - q.X, p.Y - q.Y}
}

// Left returns the direction p rotated a quarter turn counter-clockwise.
func (p Point) Left() Point {
	return Point{-p.Y, p.X}
}

// Right returns the direction p rotated a quarter turn clockwise.
func (p Point) Right() Point {
	return Point{p.Y, -p.X}
}

// String formats the point as (x, y).
func (p Point) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

// Bounds is an axis-aligned bounding box, inclusive on both ends.
type Bounds struct {
	Min, Max Point
	empty    bool
}

// NewBounds returns an empty bounding box.
func NewBounds() Bounds {
	return Bounds{empty: true}
}

// Extend grows the box to include p.
func (b *Bounds) Extend(p Point) {
	if b.empty {
		b.Min, b.Max, b.empty = p, p, false
		return
	}
	b.Min.X = min(b.Min.X, p.X)
	b.Min.Y = min(b.Min.Y, p.Y)
	b.Max.X = max(b.Max.X, p.X)
	b.Max.Y = max(b.Max.Y, p.Y)
}

// Empty reports whether no point has been added.
func (b Bounds) Empty() bool {
	return b.empty
}
