// Package geometry holds the box arithmetic shared by the planner, the
// chipper and the repairer. Everything here is pure.
package geometry

import "github.com/menta2k/geococo/pkg/types"

// Region is an image-aligned rectangle in integer pixel coordinates.
type Region struct {
	X int
	Y int
	W int
	H int
}

// Box returns the region as a float box.
func (r Region) Box() types.Box {
	return types.Box{X: float64(r.X), Y: float64(r.Y), W: float64(r.W), H: float64(r.H)}
}

// Overlaps reports whether two regions share any area.
func (r Region) Overlaps(o Region) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Center returns the arithmetic mean of the box's opposite corners.
func Center(b types.Box) types.Point {
	return types.Point{X: (b.X + (b.X + b.W)) / 2, Y: (b.Y + (b.Y + b.H)) / 2}
}

// Containment selects which region edges count as inside.
type Containment struct {
	InclusiveLow  bool
	InclusiveHigh bool
}

// HalfOpen is the default rule: a point on the lower edge belongs to the
// region, a point on the upper edge does not.
var HalfOpen = Containment{InclusiveLow: true, InclusiveHigh: false}

// ContainsPoint tests p against region using the half-open rule.
func ContainsPoint(region types.Box, p types.Point) bool {
	return HalfOpen.Contains(region, p)
}

// Contains tests p against region using the receiver's edge rule.
func (c Containment) Contains(region types.Box, p types.Point) bool {
	return c.within(p.X, region.X, region.X+region.W) && c.within(p.Y, region.Y, region.Y+region.H)
}

func (c Containment) within(v, lo, hi float64) bool {
	if c.InclusiveLow {
		if v < lo {
			return false
		}
	} else if v <= lo {
		return false
	}
	if c.InclusiveHigh {
		return v <= hi
	}
	return v < hi
}

// Translate moves b into the frame whose origin is at origin.
func Translate(b types.Box, origin types.Point) types.Box {
	return types.Box{X: b.X - origin.X, Y: b.Y - origin.Y, W: b.W, H: b.H}
}

// ClampTo intersects b with [0,w] x [0,h]. The second return value is false
// when the intersection has no positive width or height, in which case the
// box must be dropped.
func ClampTo(b types.Box, w, h float64) (types.Box, bool) {
	x1 := clamp(b.X, 0, w)
	y1 := clamp(b.Y, 0, h)
	x2 := clamp(b.X+b.W, 0, w)
	y2 := clamp(b.Y+b.H, 0, h)
	out := types.Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
	if !Valid(out) {
		return types.Box{}, false
	}
	// keep already in-bounds boxes bit-identical
	if x1 == b.X && y1 == b.Y && x2 == b.X+b.W && y2 == b.Y+b.H {
		return b, true
	}
	return out, true
}

// Valid reports whether b has positive extent on both axes.
func Valid(b types.Box) bool {
	return b.W > 0 && b.H > 0
}

// Area of the box.
func Area(b types.Box) float64 {
	return b.W * b.H
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
