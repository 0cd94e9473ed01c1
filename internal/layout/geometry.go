package layout

import (
	"math"
	"sort"
)

// Point is a position in layout space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polygon is an ordered ring of vertices. The closing edge back to the first
// vertex is implied.
type Polygon []Point

// Edge is an undirected segment between two points.
type Edge struct {
	A, B Point
}

// Named is a point that belongs to a system.
type Named struct {
	Name string
	P    Point
}

func (p Point) sub(q Point) Point       { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) add(q Point) Point       { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) scale(k float64) Point   { return Point{p.X * k, p.Y * k} }
func (p Point) dist(q Point) float64    { return math.Hypot(p.X-q.X, p.Y-q.Y) }
func (p Point) less(q Point) bool       { return p.X < q.X || (p.X == q.X && p.Y < q.Y) }
func cross(o, a, b Point) float64       { return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X) }
func snapValue(v, grid float64) float64 { return math.Round(v/grid) * grid }

// Snap rounds a point to the nearest multiple of grid on both axes.
func (p Point) Snap(grid float64) Point {
	if grid <= 0 {
		return p
	}
	return Point{snapValue(p.X, grid), snapValue(p.Y, grid)}
}

// Area returns the signed area of the ring (positive when counter-clockwise
// in a y-up frame).
func (poly Polygon) Area() float64 {
	var a float64
	for i := range poly {
		j := (i + 1) % len(poly)
		a += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return a / 2
}

// Contains reports whether p lies strictly inside the ring (even-odd rule).
func (poly Polygon) Contains(p Point) bool {
	in := false
	for i, j := 0, len(poly)-1; i < len(poly); j, i = i, i+1 {
		a, b := poly[i], poly[j]
		if (a.Y > p.Y) != (b.Y > p.Y) && p.X < (b.X-a.X)*(p.Y-a.Y)/(b.Y-a.Y)+a.X {
			in = !in
		}
	}
	return in
}

type bounds struct {
	min, max Point
}

func boundsOf(points []Point) bounds {
	b := bounds{
		min: Point{math.Inf(1), math.Inf(1)},
		max: Point{math.Inf(-1), math.Inf(-1)},
	}
	for _, p := range points {
		b.min.X = math.Min(b.min.X, p.X)
		b.min.Y = math.Min(b.min.Y, p.Y)
		b.max.X = math.Max(b.max.X, p.X)
		b.max.Y = math.Max(b.max.Y, p.Y)
	}
	return b
}

func (b bounds) pad(d float64) bounds {
	return bounds{min: Point{b.min.X - d, b.min.Y - d}, max: Point{b.max.X + d, b.max.Y + d}}
}

// collinear reports whether every point lies on one line (or there are fewer
// than three distinct points).
func collinear(points []Point) bool {
	if len(points) < 3 {
		return true
	}
	b := boundsOf(points)
	eps := 1e-9 * math.Max(1, math.Max(b.max.X-b.min.X, b.max.Y-b.min.Y))
	a := points[0]
	var far Point
	found := false
	for _, p := range points[1:] {
		if p.dist(a) > eps {
			far, found = p, true
			break
		}
	}
	if !found {
		return true
	}
	scale := far.dist(a)
	for _, p := range points {
		if math.Abs(cross(a, far, p))/scale > eps {
			return false
		}
	}
	return true
}

func sortNamed(pts []Named) {
	sort.Slice(pts, func(i, j int) bool { return pts[i].Name < pts[j].Name })
}

// dedupeRing drops consecutive duplicate vertices, including a duplicate
// closing vertex.
func dedupeRing(poly Polygon) Polygon {
	out := make(Polygon, 0, len(poly))
	for _, p := range poly {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[0] == out[len(out)-1] {
		out = out[:len(out)-1]
	}
	return out
}
