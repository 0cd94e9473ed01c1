// Package pathfind implements the two route searches over a graph.Universe:
// hop search over stargates (optionally with friendly jump bridges) and
// range-bounded search over straight-line jump distance.
//
// Both are A* with unit step cost. The open set is a binary heap keyed by
// F = G + H with ties broken by system name; a node already in the open set
// is relaxed only when a strictly smaller G is found. Both heuristics are
// consistent, so closed nodes are never reopened.
//
// A Finder holds no mutable state and is safe for concurrent use.
package pathfind

import (
	"container/heap"
	"context"
	"errors"
	"math"
	"time"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/metrics"
)

var (
	// ErrNoPath means the search space was exhausted without reaching the
	// destination. It is an expected outcome, not a failure.
	ErrNoPath = errors.New("no path")

	// ErrInvalidRange is returned for a non-positive jump range.
	ErrInvalidRange = errors.New("invalid jump range")
)

// contextCheckInterval is how many expansions run between ctx checks.
const contextCheckInterval = 64

// Finder runs searches against one immutable Universe.
type Finder struct {
	u *graph.Universe
}

// New creates a Finder over u.
func New(u *graph.Universe) *Finder {
	return &Finder{u: u}
}

// Universe returns the graph the Finder searches.
func (f *Finder) Universe() *graph.Universe { return f.u }

// Navigate returns the fewest-hop route from one system to another, both
// inclusive. With useBridges each system's friendly jump bridge counts as
// one extra neighbour at the same cost as a stargate.
func (f *Finder) Navigate(ctx context.Context, from, to string, useBridges bool) ([]string, error) {
	if _, err := f.u.System(from); err != nil {
		return nil, err
	}
	if _, err := f.u.System(to); err != nil {
		return nil, err
	}
	if from == to {
		return []string{from}, nil
	}

	// floor(LY / span) never overestimates the remaining hops because no
	// single hop covers more than span light-years.
	span := math.Max(1, f.u.MaxEdgeLY(useBridges))
	h := func(name string) float64 {
		d, _ := f.u.Distance(name, to)
		return math.Floor(d / span)
	}
	expand := func(name string, visit func(string)) {
		gates, _ := f.u.Neighbors(name)
		for _, n := range gates {
			visit(n)
		}
		if useBridges {
			if partner, ok := f.u.Bridge(name); ok {
				visit(partner)
			}
		}
	}

	start := time.Now()
	path, expanded, err := search(ctx, from, to, h, expand)
	observe("navigate", start, expanded, err)
	return path, err
}

// search is the shared A* loop. expand calls visit for every neighbour of a
// system; the step cost is always one hop.
func search(ctx context.Context, from, to string, h func(string) float64, expand func(string, func(string))) ([]string, int, error) {
	open := &nodeQueue{}
	nodes := make(map[string]*node)
	closed := make(map[string]bool)

	startNode := &node{name: from, h: h(from)}
	startNode.f = startNode.h
	heap.Push(open, startNode)
	nodes[from] = startNode

	expanded := 0
	for open.Len() > 0 {
		if expanded%contextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, expanded, err
			}
		}

		current := heap.Pop(open).(*node)
		if current.name == to {
			return reconstruct(current), expanded, nil
		}
		closed[current.name] = true
		expanded++

		g := current.g + 1
		expand(current.name, func(name string) {
			if closed[name] {
				return
			}
			existing, seen := nodes[name]
			if !seen {
				n := &node{name: name, g: g, h: h(name), parent: current}
				n.f = n.g + n.h
				heap.Push(open, n)
				nodes[name] = n
				return
			}
			if g < existing.g {
				existing.g = g
				existing.f = g + existing.h
				existing.parent = current
				heap.Fix(open, existing.index)
			}
		})
	}
	return nil, expanded, ErrNoPath
}

func reconstruct(n *node) []string {
	var rev []string
	for ; n != nil; n = n.parent {
		rev = append(rev, n.name)
	}
	path := make([]string, len(rev))
	for i, name := range rev {
		path[len(rev)-1-i] = name
	}
	return path
}

func observe(kind string, start time.Time, expanded int, err error) {
	outcome := "found"
	switch {
	case errors.Is(err, ErrNoPath):
		outcome = "no_path"
	case err != nil:
		outcome = "error"
	}
	metrics.SearchesTotal.WithLabelValues(kind, outcome).Inc()
	metrics.SearchExpansions.WithLabelValues(kind).Observe(float64(expanded))
	metrics.SearchDurationMs.WithLabelValues(kind).Observe(float64(time.Since(start).Microseconds()) / 1000)
}
