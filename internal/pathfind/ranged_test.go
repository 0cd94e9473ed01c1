package pathfind

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/graph/graphtest"
)

func TestNavigateRanged_LineScenario(t *testing.T) {
	f := lineFinder(t)

	route, err := f.NavigateRanged(context.Background(), "A", "D", 2.5, Avoid{})
	require.NoError(t, err)
	require.Len(t, route, 3)
	assert.Equal(t, "A", route[0].System)
	assert.Equal(t, 0.0, route[0].LY)
	assert.Equal(t, "C", route[1].System)
	assert.InDelta(t, 2.0, route[1].LY, 1e-9)
	assert.Equal(t, "D", route[2].System)
	assert.InDelta(t, 1.0, route[2].LY, 1e-9)
}

func TestNavigateRanged_Avoidance(t *testing.T) {
	f := lineFinder(t)
	ctx := context.Background()

	route, err := f.NavigateRanged(ctx, "A", "D", 2.5, Avoid{Systems: []string{"C"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, systems(route))

	// With B and C both avoided no jump of 2.5 LY reaches D.
	_, err = f.NavigateRanged(ctx, "A", "D", 2.5, Avoid{Systems: []string{"B", "C"}})
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = f.NavigateRanged(ctx, "A", "D", 2.5, Avoid{Systems: []string{"D"}})
	assert.ErrorIs(t, err, ErrNoPath)

	_, err = f.NavigateRanged(ctx, "A", "D", 2.5, Avoid{Regions: []string{"Line"}})
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestNavigateRanged_InvalidInput(t *testing.T) {
	f := lineFinder(t)
	ctx := context.Background()

	_, err := f.NavigateRanged(ctx, "A", "D", 0, Avoid{})
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = f.NavigateRanged(ctx, "A", "Nowhere", 5, Avoid{})
	assert.ErrorIs(t, err, graph.ErrUnknownSystem)

	route, err := f.NavigateRanged(ctx, "B", "B", 5, Avoid{})
	require.NoError(t, err)
	assert.Equal(t, []RoutePoint{{System: "B"}}, route)
}

func TestJumpNeighbors(t *testing.T) {
	f := lineFinder(t)
	got, err := f.JumpNeighbors("C", 1.5, Avoid{Systems: []string{"B"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"D"}, got)
}

// rangeHops is a brute-force BFS over the "within maxLY" graph.
func rangeHops(u *graph.Universe, from, to string, maxLY float64, avoid map[string]bool) int {
	if avoid[from] || avoid[to] {
		return -1
	}
	dist := map[string]int{from: 0}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return dist[cur]
		}
		for _, n := range u.Names() {
			if _, seen := dist[n]; seen || avoid[n] {
				continue
			}
			if d, _ := u.Distance(cur, n); d <= maxLY {
				dist[n] = dist[cur] + 1
				queue = append(queue, n)
			}
		}
	}
	return -1
}

func TestNavigateRanged_PropertiesOnRandomGraph(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Random(9, 200, 40, 0))
	f := New(u)
	rng := rand.New(rand.NewSource(3))
	names := u.Names()

	for i := 0; i < 40; i++ {
		from, to := names[rng.Intn(len(names))], names[rng.Intn(len(names))]
		maxLY := 4 + rng.Float64()*6
		avoidList := []string{names[rng.Intn(len(names))], names[rng.Intn(len(names))]}
		avoidRegion := "Region3"

		avoidSet := map[string]bool{}
		for _, s := range avoidList {
			avoidSet[s] = true
		}
		for _, n := range names {
			if s, _ := u.System(n); s.Region == avoidRegion {
				avoidSet[n] = true
			}
		}

		route, err := f.NavigateRanged(context.Background(), from, to, maxLY, Avoid{Systems: avoidList, Regions: []string{avoidRegion}})
		want := rangeHops(u, from, to, maxLY, avoidSet)
		if want < 0 {
			assert.ErrorIs(t, err, ErrNoPath)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, want, len(route)-1, "%s->%s range=%.2f", from, to, maxLY)
		for j, p := range route {
			assert.False(t, avoidSet[p.System], "route passes avoided %s", p.System)
			if j > 0 {
				assert.LessOrEqual(t, p.LY, maxLY+1e-9)
				d, _ := u.Distance(route[j-1].System, p.System)
				assert.InDelta(t, d, p.LY, 1e-9)
			}
		}
	}
}

func systems(route []RoutePoint) []string {
	out := make([]string, len(route))
	for i, p := range route {
		out[i] = p.System
	}
	return out
}
