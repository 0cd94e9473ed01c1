package layout

import (
	"errors"
	"math"
	"sort"
)

// ErrDegenerateLayout means a region's geometry could not be outlined: fewer
// than three distinct points, collinear points, or no triangle small enough
// for the alpha radius.
var ErrDegenerateLayout = errors.New("degenerate layout")

func circumradius(a, b, c Point) float64 {
	area2 := math.Abs(cross(a, b, c))
	if area2 == 0 {
		return math.Inf(1)
	}
	return a.dist(b) * b.dist(c) * c.dist(a) / (2 * area2)
}

func normEdge(a, b Point) Edge {
	if b.less(a) {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// AlphaShape returns the boundary edges of the alpha shape of points: the
// Delaunay triangles with circumradius below alpha are kept and the edges
// used by exactly one kept triangle form the boundary. alpha <= 0 keeps every
// triangle, giving the convex hull. Edges are returned in a stable order.
func AlphaShape(points []Point, alpha float64) ([]Edge, error) {
	uniq := make([]Point, 0, len(points))
	seen := make(map[Point]bool, len(points))
	for _, p := range points {
		if !seen[p] {
			seen[p] = true
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 3 || collinear(uniq) {
		return nil, ErrDegenerateLayout
	}

	tris, err := delaunayTriangles(uniq)
	if err != nil {
		return nil, err
	}
	count := make(map[Edge]int)
	for _, t := range tris {
		p, q, r := uniq[t[0]], uniq[t[1]], uniq[t[2]]
		if alpha > 0 && circumradius(p, q, r) >= alpha {
			continue
		}
		count[normEdge(p, q)]++
		count[normEdge(q, r)]++
		count[normEdge(r, p)]++
	}

	var edges []Edge
	for e, n := range count {
		if n == 1 {
			edges = append(edges, e)
		}
	}
	if len(edges) == 0 {
		return nil, ErrDegenerateLayout
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].A != edges[j].A {
			return edges[i].A.less(edges[j].A)
		}
		return edges[i].B.less(edges[j].B)
	})
	return edges, nil
}

// WalkOutline chains an edge set into rings. Starting from the smallest
// unused edge it repeatedly follows an unused edge sharing the current
// endpoint until it returns to the start or gets stuck, and repeats until
// every edge is used. The ring enclosing the largest area is returned; nil
// when no ring has three vertices.
func WalkOutline(edges []Edge) Polygon {
	es := make([]Edge, len(edges))
	for i, e := range edges {
		es[i] = normEdge(e.A, e.B)
	}
	sort.Slice(es, func(i, j int) bool {
		if es[i].A != es[j].A {
			return es[i].A.less(es[j].A)
		}
		return es[i].B.less(es[j].B)
	})

	incident := make(map[Point][]int)
	for i, e := range es {
		incident[e.A] = append(incident[e.A], i)
		incident[e.B] = append(incident[e.B], i)
	}

	used := make([]bool, len(es))
	var best Polygon
	bestArea := -1.0
	for start := range es {
		if used[start] {
			continue
		}
		used[start] = true
		origin, cur := es[start].A, es[start].B
		ring := Polygon{origin}
		for cur != origin {
			ring = append(ring, cur)
			next := -1
			for _, k := range incident[cur] {
				if !used[k] {
					next = k
					break
				}
			}
			if next < 0 {
				break
			}
			used[next] = true
			if es[next].A == cur {
				cur = es[next].B
			} else {
				cur = es[next].A
			}
		}
		if len(ring) < 3 {
			continue
		}
		if a := math.Abs(ring.Area()); a > bestArea {
			best, bestArea = ring, a
		}
	}
	return best
}

// Outline computes the alpha-shape outline polygon of points.
func Outline(points []Point, alpha float64) (Polygon, error) {
	edges, err := AlphaShape(points, alpha)
	if err != nil {
		return nil, err
	}
	ring := WalkOutline(edges)
	if len(ring) < 3 {
		return nil, ErrDegenerateLayout
	}
	return ring, nil
}
