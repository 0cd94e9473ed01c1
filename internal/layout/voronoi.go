package layout

import (
	"fmt"
	"math"
	"sort"

	"github.com/fogleman/delaunay"
)

// fillerLattice returns lattice points every step units across b, skipping any
// closer than exclusion to an occupied point. Filler sites keep the outer cells of
// a region bounded instead of running out to the clipping box.
func fillerLattice(b bounds, step, exclusion float64, occupied []Point) []Point {
	if step <= 0 {
		return nil
	}
	var out []Point
	nx := int(math.Floor((b.max.X-b.min.X)/step + 1e-9))
	ny := int(math.Floor((b.max.Y-b.min.Y)/step + 1e-9))
	for i := 0; i <= nx; i++ {
		for j := 0; j <= ny; j++ {
			p := Point{b.min.X + float64(i)*step, b.min.Y + float64(j)*step}
			near := false
			for _, r := range occupied {
				if p.dist(r) < exclusion {
					near = true
					break
				}
			}
			if !near {
				out = append(out, p)
			}
		}
	}
	return out
}

// triangulate wraps delaunay.Triangulate. Inputs with no triangulation
// (fewer than three distinct points, all collinear) and any failure inside
// the library come back as ErrDegenerateLayout.
func triangulate(points []Point) (tri *delaunay.Triangulation, err error) {
	if len(points) < 3 {
		return nil, fmt.Errorf("%w: %d points", ErrDegenerateLayout, len(points))
	}
	defer func() {
		if r := recover(); r != nil {
			tri, err = nil, fmt.Errorf("%w: triangulation failed: %v", ErrDegenerateLayout, r)
		}
	}()
	pts := make([]delaunay.Point, len(points))
	for i, p := range points {
		pts[i] = delaunay.Point{X: p.X, Y: p.Y}
	}
	tri, err = delaunay.Triangulate(pts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateLayout, err)
	}
	return tri, nil
}

// delaunayTriangles returns the Delaunay triangles of points as sorted index
// triples in a stable order.
func delaunayTriangles(points []Point) ([][3]int, error) {
	tri, err := triangulate(points)
	if err != nil {
		return nil, err
	}
	tris := make([][3]int, 0, len(tri.Triangles)/3)
	for i := 0; i+2 < len(tri.Triangles); i += 3 {
		t := [3]int{tri.Triangles[i], tri.Triangles[i+1], tri.Triangles[i+2]}
		if cross(points[t[0]], points[t[1]], points[t[2]]) == 0 {
			continue
		}
		sort.Ints(t[:])
		tris = append(tris, t)
	}
	sort.Slice(tris, func(i, j int) bool {
		for k := 0; k < 3; k++ {
			if tris[i][k] != tris[j][k] {
				return tris[i][k] < tris[j][k]
			}
		}
		return false
	})
	return tris, nil
}

// clipHalfPlane keeps the part of poly that is at least as close to p as to q.
func clipHalfPlane(poly Polygon, p, q Point) Polygon {
	d := q.sub(p)
	if d.X == 0 && d.Y == 0 {
		return poly
	}
	m := p.add(q).scale(0.5)
	side := func(x Point) float64 {
		v := x.sub(m)
		return v.X*d.X + v.Y*d.Y
	}
	out := make(Polygon, 0, len(poly)+1)
	for i := range poly {
		a, b := poly[i], poly[(i+1)%len(poly)]
		sa, sb := side(a), side(b)
		if sa <= 0 {
			out = append(out, a)
		}
		if (sa < 0 && sb > 0) || (sa > 0 && sb < 0) {
			out = append(out, a.add(b.sub(a).scale(sa/(sa-sb))))
		}
	}
	return out
}

func (b bounds) polygon() Polygon {
	return Polygon{b.min, {b.max.X, b.min.Y}, b.max, {b.min.X, b.max.Y}}
}

// voronoiCells tessellates system and filler sites inside box and returns the
// cell of every system site, vertices snapped to grid. A cell is the box
// clipped by the bisector against each Delaunay neighbour; when the sites
// have no triangulation every other site is used instead. Systems whose cell
// could not be formed are returned in the second result, sorted.
func voronoiCells(systems []Named, filler []Point, box bounds, grid float64) (map[string]Polygon, []string) {
	sites := make([]Point, 0, len(systems)+len(filler))
	for _, n := range systems {
		sites = append(sites, n.P)
	}
	sites = append(sites, filler...)

	var neighbours [][]int
	if tris, err := delaunayTriangles(sites); err == nil {
		neighbours = make([][]int, len(systems))
		seen := make([]map[int]bool, len(systems))
		link := func(a, b int) {
			if a >= len(systems) {
				return
			}
			if seen[a] == nil {
				seen[a] = make(map[int]bool)
			}
			if !seen[a][b] {
				seen[a][b] = true
				neighbours[a] = append(neighbours[a], b)
			}
		}
		for _, t := range tris {
			link(t[0], t[1])
			link(t[1], t[0])
			link(t[1], t[2])
			link(t[2], t[1])
			link(t[0], t[2])
			link(t[2], t[0])
		}
		for _, ns := range neighbours {
			sort.Ints(ns)
		}
	}

	cells := make(map[string]Polygon, len(systems))
	for i, n := range systems {
		poly := box.polygon()
		if neighbours != nil {
			for _, j := range neighbours[i] {
				poly = clipHalfPlane(poly, sites[i], sites[j])
			}
		} else {
			for j := range sites {
				if j != i {
					poly = clipHalfPlane(poly, sites[i], sites[j])
				}
			}
		}
		for k := range poly {
			poly[k] = poly[k].Snap(grid)
		}
		poly = dedupeRing(poly)
		if len(poly) >= 3 && poly.Area() != 0 {
			cells[n.Name] = poly
		}
	}

	var degenerate []string
	for _, n := range systems {
		if _, ok := cells[n.Name]; !ok {
			degenerate = append(degenerate, n.Name)
		}
	}
	sort.Strings(degenerate)
	return cells, degenerate
}
