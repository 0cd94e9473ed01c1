package pathfind

import (
	"context"
	"fmt"
	"time"
)

// RoutePoint is one stop on a jump route. LY is the distance travelled from
// the previous point; it is zero for the first point.
type RoutePoint struct {
	System string  `json:"system"`
	LY     float64 `json:"ly"`
}

// Avoid lists systems and regions a ranged search must not pass through.
type Avoid struct {
	Systems []string `json:"systems,omitempty"`
	Regions []string `json:"regions,omitempty"`
}

// excluded builds the predicate for a set of avoided systems and regions.
func (f *Finder) excluded(avoid Avoid) func(string) bool {
	if len(avoid.Systems) == 0 && len(avoid.Regions) == 0 {
		return func(string) bool { return false }
	}
	systems := make(map[string]bool, len(avoid.Systems))
	for _, s := range avoid.Systems {
		systems[s] = true
	}
	regions := make(map[string]bool, len(avoid.Regions))
	for _, r := range avoid.Regions {
		regions[r] = true
	}
	return func(name string) bool {
		if systems[name] {
			return true
		}
		s, err := f.u.System(name)
		return err == nil && regions[s.Region]
	}
}

// JumpNeighbors returns every system within maxLY of origin that is not
// excluded by avoid, origin itself left out, in lexical order.
func (f *Finder) JumpNeighbors(origin string, maxLY float64, avoid Avoid) ([]string, error) {
	in, err := f.u.SystemsWithinLY(origin, maxLY)
	if err != nil {
		return nil, err
	}
	skip := f.excluded(avoid)
	out := in[:0]
	for _, name := range in {
		if name == origin || skip(name) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// NavigateRanged returns the fewest-jump route where every jump is at most
// maxLY light-years and no point lies in an avoided system or region.
// Candidate neighbours come from the Universe's k-d tree rather than a scan
// of every system.
func (f *Finder) NavigateRanged(ctx context.Context, from, to string, maxLY float64, avoid Avoid) ([]RoutePoint, error) {
	if _, err := f.u.System(from); err != nil {
		return nil, err
	}
	if _, err := f.u.System(to); err != nil {
		return nil, err
	}
	if !(maxLY > 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRange, maxLY)
	}
	skip := f.excluded(avoid)
	if skip(from) {
		return nil, fmt.Errorf("%w: origin %s is avoided", ErrNoPath, from)
	}
	if skip(to) {
		return nil, fmt.Errorf("%w: destination %s is avoided", ErrNoPath, to)
	}
	if from == to {
		return []RoutePoint{{System: from}}, nil
	}

	// One jump shrinks the remaining distance by at most maxLY.
	h := func(name string) float64 {
		d, _ := f.u.Distance(name, to)
		return d / maxLY
	}
	expand := func(name string, visit func(string)) {
		in, _ := f.u.SystemsWithinLY(name, maxLY)
		for _, n := range in {
			if n != name && !skip(n) {
				visit(n)
			}
		}
	}

	start := time.Now()
	path, expanded, err := search(ctx, from, to, h, expand)
	observe("ranged", start, expanded, err)
	if err != nil {
		return nil, err
	}
	return f.annotate(path), nil
}

// annotate converts a system path into route points with per-jump distances.
func (f *Finder) annotate(path []string) []RoutePoint {
	out := make([]RoutePoint, len(path))
	for i, name := range path {
		out[i].System = name
		if i > 0 {
			out[i].LY, _ = f.u.Distance(path[i-1], name)
		}
	}
	return out
}
