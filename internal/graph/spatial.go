package graph

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// lyEpsilon absorbs rounding when a neighbour sits exactly on the range limit.
const lyEpsilon = 1e-9

// spatialIndex is a 3D k-d tree over system positions in light-years.
type spatialIndex struct {
	tree *kdtree.Tree
}

// sysPoint is a system position in light-years. It implements kdtree.Comparable.
type sysPoint struct {
	name string
	p    [3]float64
}

func (p sysPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return p.p[d] - c.(sysPoint).p[d]
}

func (p sysPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance, as gonum's Point does.
func (p sysPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(sysPoint)
	var sum float64
	for i := range p.p {
		d := p.p[i] - q.p[i]
		sum += d * d
	}
	return sum
}

type sysPoints []sysPoint

func (p sysPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p sysPoints) Len() int                              { return len(p) }
func (p sysPoints) Pivot(d kdtree.Dim) int                { return plane{Dim: d, sysPoints: p}.Pivot() }
func (p sysPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane sorts points along one axis for median selection.
type plane struct {
	kdtree.Dim
	sysPoints
}

func (p plane) Less(i, j int) bool {
	return p.sysPoints[i].p[p.Dim] < p.sysPoints[j].p[p.Dim]
}
func (p plane) Pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	p.sysPoints = p.sysPoints[start:end]
	return p
}
func (p plane) Swap(i, j int) {
	p.sysPoints[i], p.sysPoints[j] = p.sysPoints[j], p.sysPoints[i]
}

func toPoint(s *System) sysPoint {
	return sysPoint{name: s.Name, p: [3]float64{s.X / MetersPerLY, s.Y / MetersPerLY, s.Z / MetersPerLY}}
}

func newSpatialIndex(systems map[string]*System) *spatialIndex {
	if len(systems) == 0 {
		return &spatialIndex{}
	}
	pts := make(sysPoints, 0, len(systems))
	for _, s := range systems {
		pts = append(pts, toPoint(s))
	}
	// kdtree.New reorders pts; sort first so the tree shape is reproducible.
	sort.Slice(pts, func(i, j int) bool { return pts[i].name < pts[j].name })
	return &spatialIndex{tree: kdtree.New(pts, false)}
}

// within returns the names of all systems whose distance to q is at most ly,
// q included, in lexical order.
func (ix *spatialIndex) within(q sysPoint, ly float64) []string {
	if ix.tree == nil || ly < 0 {
		return nil
	}
	r := ly + lyEpsilon
	keep := kdtree.NewDistKeeper(r * r)
	ix.tree.NearestSet(keep, q)

	out := make([]string, 0, len(keep.Heap))
	for _, cd := range keep.Heap {
		// The keeper is seeded with a nil sentinel that survives an empty search.
		if cd.Comparable == nil {
			continue
		}
		out = append(out, cd.Comparable.(sysPoint).name)
	}
	sort.Strings(out)
	return out
}

// SystemsWithinLY returns every system within ly light-years of origin,
// origin included, in lexical order.
func (u *Universe) SystemsWithinLY(origin string, ly float64) ([]string, error) {
	s, ok := u.systems[origin]
	if !ok {
		return nil, unknown(origin)
	}
	return u.index.within(toPoint(s), ly), nil
}
