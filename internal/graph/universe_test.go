package graph_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/graph/graphtest"
)

func TestNewUniverse_Lookups(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Line(5))

	assert.Equal(t, 5, u.Len())
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, u.Names())
	assert.True(t, u.Exists("C"))
	assert.False(t, u.Exists("Z"))

	n, err := u.Neighbors("C")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "D"}, n)

	d, err := u.Distance("A", "E")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, d, 1e-12)

	canon, err := u.Lookup(" c ")
	require.NoError(t, err)
	assert.Equal(t, "C", canon)
}

func TestUnknownSystem_IsTyped(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Line(3))

	_, err := u.Neighbors("Nowhere")
	require.Error(t, err)
	assert.True(t, errors.Is(err, graph.ErrUnknownSystem))

	var use *graph.UnknownSystemError
	require.True(t, errors.As(err, &use))
	assert.Equal(t, "Nowhere", use.Name)

	_, err = u.Distance("A", "Nowhere")
	assert.ErrorIs(t, err, graph.ErrUnknownSystem)
	_, err = u.SystemsWithinLY("Nowhere", 3)
	assert.ErrorIs(t, err, graph.ErrUnknownSystem)
}

func TestBuild_RejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func([]graph.System) []graph.System
		bridges []graph.Bridge
	}{
		{
			name: "asymmetric gate",
			mutate: func(s []graph.System) []graph.System {
				s[0].Gates = append(s[0].Gates, "C")
				return s
			},
		},
		{
			name: "gate to unknown system",
			mutate: func(s []graph.System) []graph.System {
				s[1].Gates = append(s[1].Gates, "Ghost")
				return s
			},
		},
		{
			name: "duplicate name",
			mutate: func(s []graph.System) []graph.System {
				return append(s, graph.System{Name: "A"})
			},
		},
		{
			name:    "bridge to unknown system",
			bridges: []graph.Bridge{{From: "A", To: "Ghost", Friendly: true}},
		},
		{
			name:    "two friendly bridges on one system",
			bridges: []graph.Bridge{{From: "A", To: "C", Friendly: true}, {From: "A", To: "E", Friendly: true}},
		},
		{
			name:    "self bridge",
			bridges: []graph.Bridge{{From: "B", To: "B", Friendly: true}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			systems := graphtest.Line(5)
			if tt.mutate != nil {
				systems = tt.mutate(systems)
			}
			_, err := graph.NewUniverse(systems, tt.bridges)
			require.Error(t, err)
			assert.ErrorIs(t, err, graph.ErrMalformedGraph)
		})
	}
}

func TestBridges_OnlyFriendlyAreActive(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Line(5),
		graph.Bridge{From: "A", To: "E", Friendly: true},
		graph.Bridge{From: "B", To: "D", Friendly: false},
	)

	to, ok := u.Bridge("A")
	assert.True(t, ok)
	assert.Equal(t, "E", to)
	to, ok = u.Bridge("E")
	assert.True(t, ok)
	assert.Equal(t, "A", to)

	_, ok = u.Bridge("B")
	assert.False(t, ok)
	assert.Len(t, u.Bridges(), 2)

	assert.InDelta(t, 1.0, u.MaxEdgeLY(false), 1e-12)
	assert.InDelta(t, 4.0, u.MaxEdgeLY(true), 1e-12)

	// Bridges are not merged into stargate adjacency.
	n, err := u.Neighbors("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, n)
}

func TestWithBridges_LeavesOriginalUntouched(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Line(5))
	nu, err := u.WithBridges([]graph.Bridge{{From: "A", To: "D", Friendly: true}})
	require.NoError(t, err)

	_, ok := u.Bridge("A")
	assert.False(t, ok)
	to, ok := nu.Bridge("A")
	assert.True(t, ok)
	assert.Equal(t, "D", to)
	assert.Equal(t, u.Names(), nu.Names())
}

func TestSystemsWithinRadius(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Line(5))

	got := u.SystemsWithinRadius("C", 1)
	assert.Equal(t, map[string]int{"B": 1, "C": 0, "D": 1}, got)

	got = u.SystemsWithinRadius("A", 10)
	assert.Len(t, got, 5)
	assert.Equal(t, 4, got["E"])

	assert.Empty(t, u.SystemsWithinRadius("Nowhere", 3))
}

func TestSystemsWithinRadiusMinSecurity(t *testing.T) {
	systems := graphtest.Line(5)
	for i := range systems {
		systems[i].Security = 0.9
	}
	systems[2].Security = 0.1 // C is lowsec
	u := graphtest.MustUniverse(systems)

	got := u.SystemsWithinRadiusMinSecurity("A", 10, 0.45)
	assert.Equal(t, map[string]int{"A": 0, "B": 1}, got)
}

func TestShortestPath(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Line(5))
	assert.Equal(t, 0, u.ShortestPath("B", "B"))
	assert.Equal(t, 4, u.ShortestPath("A", "E"))
	assert.Equal(t, -1, u.ShortestPath("A", "Nowhere"))
}

func TestRegions(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Grid(4, 2, 1))
	assert.Equal(t, []string{"East", "West"}, u.Regions())
	assert.Len(t, u.RegionSystems("West"), 4)
	assert.Nil(t, u.RegionSystems("Nowhere"))
	assert.Equal(t, map[string]bool{"West": true}, u.RegionsInSet(map[string]int{graphtest.GridName(0, 0): 0}))
}
