// Package graphtest builds small synthetic universes for tests.
package graphtest

import (
	"fmt"
	"math/rand"

	"eve-atlas/internal/graph"
)

// LY is one light-year in coordinate units.
const LY = graph.MetersPerLY

// Line returns systems named A, B, C, ... placed 1 LY apart on the x axis,
// each gated to its neighbours, all in region "Line".
func Line(n int) []graph.System {
	systems := make([]graph.System, n)
	for i := range systems {
		systems[i] = graph.System{
			ID:     int32(i + 1),
			Name:   string(rune('A' + i)),
			X:      float64(i) * LY,
			Region: "Line",
		}
	}
	for i := 0; i+1 < n; i++ {
		systems[i].Gates = append(systems[i].Gates, systems[i+1].Name)
		systems[i+1].Gates = append(systems[i+1].Gates, systems[i].Name)
	}
	return systems
}

// Grid returns a w*h lattice of systems spaced spacing LY apart on the x/z
// plane, gated to their 4-neighbours. Columns left of w/2 belong to region
// "West", the rest to "East".
func Grid(w, h int, spacing float64) []graph.System {
	idx := func(x, y int) int { return y*w + x }
	systems := make([]graph.System, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			region := "East"
			if x < w/2 {
				region = "West"
			}
			systems[idx(x, y)] = graph.System{
				ID:     int32(idx(x, y) + 1),
				Name:   GridName(x, y),
				X:      float64(x) * spacing * LY,
				Z:      float64(y) * spacing * LY,
				Region: region,
			}
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := &systems[idx(x, y)]
			if x+1 < w {
				s.Gates = append(s.Gates, GridName(x+1, y))
				systems[idx(x+1, y)].Gates = append(systems[idx(x+1, y)].Gates, s.Name)
			}
			if y+1 < h {
				s.Gates = append(s.Gates, GridName(x, y+1))
				systems[idx(x, y+1)].Gates = append(systems[idx(x, y+1)].Gates, s.Name)
			}
		}
	}
	return systems
}

// GridName names the grid system at column x, row y.
func GridName(x, y int) string { return fmt.Sprintf("G%02d-%02d", x, y) }

// Random returns n systems scattered in a cube of side size LY. Each system
// is gated to its nearest predecessor so the stargate graph is a connected
// tree, plus extra random symmetric gates.
func Random(seed int64, n int, size float64, extra int) []graph.System {
	rng := rand.New(rand.NewSource(seed))
	systems := make([]graph.System, n)
	for i := range systems {
		systems[i] = graph.System{
			ID:     int32(i + 1),
			Name:   fmt.Sprintf("R%04d", i),
			X:      rng.Float64() * size * LY,
			Y:      rng.Float64() * size * LY,
			Z:      rng.Float64() * size * LY,
			Region: fmt.Sprintf("Region%d", i%4),
		}
	}
	link := func(a, b int) {
		for _, g := range systems[a].Gates {
			if g == systems[b].Name {
				return
			}
		}
		systems[a].Gates = append(systems[a].Gates, systems[b].Name)
		systems[b].Gates = append(systems[b].Gates, systems[a].Name)
	}
	for i := 1; i < n; i++ {
		best, bestD := 0, -1.0
		for j := 0; j < i; j++ {
			dx := systems[i].X - systems[j].X
			dy := systems[i].Y - systems[j].Y
			dz := systems[i].Z - systems[j].Z
			d := dx*dx + dy*dy + dz*dz
			if bestD < 0 || d < bestD {
				best, bestD = j, d
			}
		}
		link(i, best)
	}
	for k := 0; k < extra; k++ {
		a, b := rng.Intn(n), rng.Intn(n)
		if a != b {
			link(a, b)
		}
	}
	return systems
}

// MustUniverse builds a Universe or panics.
func MustUniverse(systems []graph.System, bridges ...graph.Bridge) *graph.Universe {
	u, err := graph.NewUniverse(systems, bridges)
	if err != nil {
		panic(err)
	}
	return u
}
