package geofence

import "image"

// Polygon is an ordered vertex list in frame pixels, serialised as [[x, y], ...].
type Polygon [][2]int

// Enabled reports whether the polygon has enough vertices to bound anything.
func (p Polygon) Enabled() bool {
	return len(p) >= 3
}

// Contains reports whether pt lies inside p or on one of its edges. A polygon with
// fewer than three vertices contains every point.
func (p Polygon) Contains(pt image.Point) bool {
	if !p.Enabled() {
		return true
	}

	inside := false
	for i, j := 0, len(p)-1; i < len(p); j, i = i, i+1 {
		a, b := p[j], p[i]
		if onSegment(a, b, pt) {
			return true
		}
		// Even-odd ray cast towards +x.
		if (a[1] > pt.Y) != (b[1] > pt.Y) {
			xCross := float64(b[0]-a[0])*float64(pt.Y-a[1])/float64(b[1]-a[1]) + float64(a[0])
			if float64(pt.X) < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b [2]int, pt image.Point) bool {
	cross := (b[0]-a[0])*(pt.Y-a[1]) - (b[1]-a[1])*(pt.X-a[0])
	if cross != 0 {
		return false
	}
	return pt.X >= min(a[0], b[0]) && pt.X <= max(a[0], b[0]) &&
		pt.Y >= min(a[1], b[1]) && pt.Y <= max(a[1], b[1])
}
