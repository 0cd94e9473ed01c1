package graph_test

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve-atlas/internal/graph/graphtest"
)

func TestSystemsWithinLY_Line(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Line(5))

	got, err := u.SystemsWithinLY("A", 2.5)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, got)

	// Exactly on the boundary counts as in range.
	got, err = u.SystemsWithinLY("C", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, got)

	got, err = u.SystemsWithinLY("C", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, got)
}

func TestSystemsWithinLY_MatchesBruteForce(t *testing.T) {
	u := graphtest.MustUniverse(graphtest.Random(7, 300, 40, 50))

	for _, origin := range u.Names()[:25] {
		for _, r := range []float64{0.5, 3, 7.5, 15} {
			var want []string
			for _, other := range u.Names() {
				d, err := u.Distance(origin, other)
				require.NoError(t, err)
				if d <= r {
					want = append(want, other)
				}
			}
			sort.Strings(want)

			got, err := u.SystemsWithinLY(origin, r)
			require.NoError(t, err)
			assert.Equal(t, want, got, "origin=%s r=%v", origin, r)
		}
	}
}
