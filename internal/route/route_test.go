package route

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/graph/graphtest"
	"eve-atlas/internal/pathfind"
)

func lineManager(t *testing.T, maxLY float64) *Manager {
	t.Helper()
	m := NewManager(pathfind.New(graphtest.MustUniverse(graphtest.Line(5))), maxLY)
	t.Cleanup(m.Close)
	return m
}

func systemsOf(r *Route) []string {
	out := make([]string, len(r.Points))
	for i, p := range r.Points {
		out[i] = p.System
	}
	return out
}

func waitUpdate(t *testing.T, m *Manager, id string) Update {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-m.Updates():
			require.True(t, ok, "updates closed")
			if u.ID == id {
				return u
			}
		case <-timeout:
			t.Fatalf("no update for %s", id)
		}
	}
}

func TestCompute_SingleLegWithAlternates(t *testing.T) {
	m := lineManager(t, 2.5)
	m.mu.Lock()
	m.st.waypoints = []string{"A", "D"}
	m.mu.Unlock()

	r, err := m.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "D"}, systemsOf(r))
	assert.InDelta(t, 3.0, r.TotalLY, 1e-9)
	assert.Equal(t, 2, r.Jumps())
	require.Len(t, r.Alternates, 1)
	assert.Equal(t, Alternate{Index: 1, System: "C", Options: []string{"B"}}, r.Alternates[0])
	assert.NotEmpty(t, r.ID)
}

func TestRecompute_MergesSharedWaypoints(t *testing.T) {
	m := lineManager(t, 2.5)
	id := m.SetWaypoints([]string{"A", "C", "E"})
	u := waitUpdate(t, m, id)
	require.NoError(t, u.Err)

	assert.Equal(t, []string{"A", "C", "E"}, systemsOf(u.Route))
	assert.Equal(t, 0.0, u.Route.Points[0].LY)
	assert.InDelta(t, 2.0, u.Route.Points[1].LY, 1e-9)
	assert.InDelta(t, 2.0, u.Route.Points[2].LY, 1e-9)
	assert.Equal(t, u.Route, m.Current())
}

func TestRecompute_RepeatedWaypointIsMerged(t *testing.T) {
	m := lineManager(t, 2.5)
	id := m.SetWaypoints([]string{"A", "B", "B", "C"})
	u := waitUpdate(t, m, id)
	require.NoError(t, u.Err)
	assert.Equal(t, []string{"A", "B", "C"}, systemsOf(u.Route))
}

func TestMutators(t *testing.T) {
	m := lineManager(t, 1.5)
	m.SetWaypoints([]string{"A"})
	m.AddWaypoint("C")
	id := m.AddWaypoint("E")
	assert.Equal(t, []string{"A", "C", "E"}, m.Waypoints())

	u := waitUpdate(t, m, id)
	require.NoError(t, u.Err)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, systemsOf(u.Route))

	id, err := m.RemoveWaypoint(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "E"}, m.Waypoints())
	waitUpdate(t, m, id)

	_, err = m.RemoveWaypoint(7)
	assert.ErrorIs(t, err, ErrBadIndex)

	id = m.SetAvoid(pathfind.Avoid{Systems: []string{"C"}})
	u = waitUpdate(t, m, id)
	assert.ErrorIs(t, u.Err, pathfind.ErrNoPath)
	assert.Nil(t, u.Route)

	id = m.SetMaxLY(2.5)
	u = waitUpdate(t, m, id)
	require.NoError(t, u.Err)
	assert.Equal(t, []string{"A", "B", "D", "E"}, systemsOf(u.Route))
}

func TestRecompute_LatestWins(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Random(4, 300, 60, 40))
	names := u.Names()
	m := NewManager(pathfind.New(u), 30)
	defer m.Close()

	var last string
	for i := 0; i < 20; i++ {
		last = m.SetWaypoints([]string{names[i], names[len(names)-1-i]})
	}
	want := []string{names[19], names[len(names)-20]}

	require.Eventually(t, func() bool {
		r := m.Current()
		return r != nil && r.ID == last
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, want, m.Current().Waypoints)
}

func TestCompute_EmptyAndSingle(t *testing.T) {
	m := lineManager(t, 2)
	r, err := m.Compute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, r.Points)

	m.mu.Lock()
	m.st.waypoints = []string{"B"}
	m.mu.Unlock()
	r, err = m.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, systemsOf(r))

	m.mu.Lock()
	m.st.waypoints = []string{"Nowhere"}
	m.mu.Unlock()
	_, err = m.Compute(context.Background())
	assert.ErrorIs(t, err, graph.ErrUnknownSystem)
}

func TestSetFinder_RecomputesOnNewUniverse(t *testing.T) {
	m := lineManager(t, 2.5)
	id := m.SetWaypoints([]string{"A", "E"})
	require.NoError(t, waitUpdate(t, m, id).Err)

	id = m.SetFinder(pathfind.New(graphtest.MustUniverse(graphtest.Line(3))))
	u := waitUpdate(t, m, id)
	assert.ErrorIs(t, u.Err, graph.ErrUnknownSystem)
	assert.Equal(t, []string{"A", "C", "E"}, systemsOf(m.Current()))
}

func TestClose_StopsUpdates(t *testing.T) {
	m := NewManager(pathfind.New(graphtest.MustUniverse(graphtest.Line(5))), 2)
	m.SetWaypoints([]string{"A", "E"})
	m.Close()
	m.Close()

	assert.Empty(t, m.SetWaypoints([]string{"A", "B"}))
	for range m.Updates() {
	}
}
