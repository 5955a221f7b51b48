// Package geom has the planar primitives shared by targeting and bounds.
// Angles are degrees, 0 along +X, increasing toward +Y.
package geom

import "math"

// onEdgeEps absorbs float error for points that lie on a polygon edge.
const onEdgeEps = 1e-7

type Coord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (c Coord) Add(o Coord) Coord { return Coord{X: c.X + o.X, Y: c.Y + o.Y} }

func (c Coord) Sub(o Coord) Coord { return Coord{X: c.X - o.X, Y: c.Y - o.Y} }

func (c Coord) Scale(k float64) Coord { return Coord{X: c.X * k, Y: c.Y * k} }

// Round quantizes to the integer grid.
func (c Coord) Round() (int, int) {
	return int(math.Round(c.X)), int(math.Round(c.Y))
}

func Distance(a, b Coord) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// NormalizeDegrees wraps to [0, 360).
func NormalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	return a
}

// Direction is the unit vector at angle deg.
func Direction(deg float64) Coord {
	r := Radians(deg)
	return Coord{X: math.Cos(r), Y: math.Sin(r)}
}

// Project moves dist units from origin along angle deg.
func Project(origin Coord, deg, dist float64) Coord {
	return origin.Add(Direction(deg).Scale(dist))
}

// Polygon is a simple (non self-intersecting) vertex ring.
type Polygon []Coord

// Contains reports whether p is inside poly. Points on an edge count as inside.
func (poly Polygon) Contains(p Coord) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := poly[j], poly[i]
		if onSegment(a, b, p) {
			return true
		}
		if (b.Y > p.Y) != (a.Y > p.Y) {
			x := (a.X-b.X)*(p.Y-b.Y)/(a.Y-b.Y) + b.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b, p Coord) bool {
	ab := b.Sub(a)
	ap := p.Sub(a)
	l2 := ab.X*ab.X + ab.Y*ab.Y
	if l2 == 0 {
		return Distance(a, p) <= onEdgeEps
	}
	t := (ap.X*ab.X + ap.Y*ab.Y) / l2
	if t < 0 || t > 1 {
		return false
	}
	closest := a.Add(ab.Scale(t))
	return Distance(closest, p) <= onEdgeEps*math.Max(1, math.Sqrt(l2))
}
