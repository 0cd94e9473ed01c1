package layout

import "eve-atlas/internal/metrics"

// spacingTolerance absorbs rounding when two points were pushed to exactly
// the minimum spacing.
const spacingTolerance = 1e-9

// RelaxResult is the outcome of a relaxation run. Converged is true when the
// final pass moved nothing, which implies every pair is at least the minimum
// spacing apart. Otherwise the iteration cap was hit.
type RelaxResult struct {
	Points     []Named
	Iterations int
	Converged  bool
}

// Positions returns the relaxed points keyed by name.
func (r RelaxResult) Positions() map[string]Point {
	out := make(map[string]Point, len(r.Points))
	for _, p := range r.Points {
		out[p.Name] = p.P
	}
	return out
}

// Relax pushes apart every pair of points closer than minSpacing, each by
// half the deficit along the line joining them. Pairs are visited in name
// order and passes repeat until one moves nothing or maxIter passes ran.
// Coincident points are split along the x axis, the smaller name going left.
// The input slice is not modified.
func Relax(points []Named, minSpacing float64, maxIter int) RelaxResult {
	pts := append([]Named(nil), points...)
	sortNamed(pts)

	res := RelaxResult{Points: pts}
	for res.Iterations < maxIter {
		res.Iterations++
		moved := false
		for i := 0; i < len(pts); i++ {
			for j := i + 1; j < len(pts); j++ {
				d := pts[i].P.dist(pts[j].P)
				if d >= minSpacing-spacingTolerance {
					continue
				}
				dir := Point{1, 0}
				if d > 0 {
					dir = pts[j].P.sub(pts[i].P).scale(1 / d)
				}
				push := dir.scale((minSpacing - d) / 2)
				pts[i].P = pts[i].P.sub(push)
				pts[j].P = pts[j].P.add(push)
				moved = true
			}
		}
		if !moved {
			res.Converged = true
			break
		}
	}
	if len(pts) < 2 {
		res.Converged = true
	}
	metrics.RelaxIterations.Observe(float64(res.Iterations))
	return res
}
