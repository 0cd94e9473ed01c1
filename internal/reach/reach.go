// Package reach precomputes, for every system, the systems reachable within a
// fixed number of stargate hops. The cache is built once, persisted, and then
// shared read-only.
package reach

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/metrics"
)

// ErrInvalidHops is returned for a negative hop count.
var ErrInvalidHops = errors.New("invalid hop count")

// Entry lists the systems within the cache bound of System, ordered by hop
// count and then by name. Hops[i] is the hop count of Reachable[i].
type Entry struct {
	System    string   `json:"system"`
	Reachable []string `json:"reachable"`
	Hops      []int    `json:"hops"`
}

// Cache answers bounded reachability queries. It is immutable.
type Cache struct {
	maxHops int
	entries []Entry
	bySys   map[string]int
	u       *graph.Universe
}

type document struct {
	MaxHops int     `json:"max_hops"`
	Entries []Entry `json:"entries"`
}

// Build runs a stargate-only BFS from every system of u out to maxHops.
// Work is spread over at most concurrency goroutines; the result does not
// depend on scheduling.
func Build(ctx context.Context, u *graph.Universe, maxHops, concurrency int) (*Cache, error) {
	if maxHops < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHops, maxHops)
	}
	start := time.Now()
	names := u.Names()
	entries := make([]Entry, len(names))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			entries[i] = entryFromRadius(name, u.SystemsWithinRadius(name, maxHops))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build reachability: %w", err)
	}

	c, err := FromEntries(maxHops, entries, u)
	if err != nil {
		return nil, err
	}
	metrics.ReachBuildSeconds.Observe(time.Since(start).Seconds())
	metrics.ReachEntries.Set(float64(len(entries)))
	return c, nil
}

func entryFromRadius(system string, radius map[string]int) Entry {
	e := Entry{System: system, Reachable: make([]string, 0, len(radius))}
	for name := range radius {
		e.Reachable = append(e.Reachable, name)
	}
	sort.Slice(e.Reachable, func(i, j int) bool {
		hi, hj := radius[e.Reachable[i]], radius[e.Reachable[j]]
		if hi != hj {
			return hi < hj
		}
		return e.Reachable[i] < e.Reachable[j]
	})
	e.Hops = make([]int, len(e.Reachable))
	for i, name := range e.Reachable {
		e.Hops[i] = radius[name]
	}
	return e
}

// FromEntries assembles a Cache from stored entries. u may be nil, in which
// case queries beyond the bound and light-year queries are unavailable.
func FromEntries(maxHops int, entries []Entry, u *graph.Universe) (*Cache, error) {
	c := &Cache{
		maxHops: maxHops,
		entries: append([]Entry(nil), entries...),
		bySys:   make(map[string]int, len(entries)),
		u:       u,
	}
	sort.Slice(c.entries, func(i, j int) bool { return c.entries[i].System < c.entries[j].System })
	for i, e := range c.entries {
		if len(e.Hops) != len(e.Reachable) {
			return nil, fmt.Errorf("reach entry %s: %d systems but %d hop counts", e.System, len(e.Reachable), len(e.Hops))
		}
		for j := 1; j < len(e.Hops); j++ {
			if e.Hops[j] < e.Hops[j-1] {
				return nil, fmt.Errorf("reach entry %s: hop counts out of order", e.System)
			}
		}
		if _, dup := c.bySys[e.System]; dup {
			return nil, fmt.Errorf("reach entry %s: duplicate", e.System)
		}
		c.bySys[e.System] = i
	}
	return c, nil
}

// MaxHops is the hop bound the cache was built with.
func (c *Cache) MaxHops() int { return c.maxHops }

// Len returns the number of cached systems.
func (c *Cache) Len() int { return len(c.entries) }

// Entries returns the cache contents ordered by system name. The slice is shared.
func (c *Cache) Entries() []Entry { return c.entries }

// WithinHops returns the systems at most n stargate hops from system, ordered
// by hop count and then name. The result always starts with system itself.
// For n up to the cache bound the answer comes from the cache; larger n falls
// back to a BFS over the Universe.
func (c *Cache) WithinHops(system string, n int) ([]string, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidHops, n)
	}
	if n <= c.maxHops {
		i, ok := c.bySys[system]
		if !ok {
			return nil, &graph.UnknownSystemError{Name: system}
		}
		e := c.entries[i]
		cut := sort.Search(len(e.Hops), func(k int) bool { return e.Hops[k] > n })
		return append([]string(nil), e.Reachable[:cut]...), nil
	}
	if c.u == nil {
		return nil, fmt.Errorf("reach: %d hops exceeds cache bound %d and no universe is attached", n, c.maxHops)
	}
	if !c.u.Exists(system) {
		return nil, &graph.UnknownSystemError{Name: system}
	}
	return entryFromRadius(system, c.u.SystemsWithinRadius(system, n)).Reachable, nil
}

// WithinLY returns the systems within ly light-years of system. It is a
// straight-line query answered by the Universe, not by the hop cache.
func (c *Cache) WithinLY(system string, ly float64) ([]string, error) {
	if c.u == nil {
		return nil, errors.New("reach: no universe attached")
	}
	return c.u.SystemsWithinLY(system, ly)
}

// Encode writes the cache as indented JSON. Equal caches encode to identical bytes.
func (c *Cache) Encode(w io.Writer) error {
	b, err := json.MarshalIndent(document{MaxHops: c.maxHops, Entries: c.entries}, "", " ")
	if err != nil {
		return fmt.Errorf("encode reachability: %w", err)
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// Decode reads a cache written by Encode and attaches u (which may be nil).
func Decode(r io.Reader, u *graph.Universe) (*Cache, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode reachability: %w", err)
	}
	return FromEntries(doc.MaxHops, doc.Entries, u)
}

// Verify checks the cache against u: one entry per system, each entry starts
// with its own system at hop 0, and membership is symmetric with equal hop
// counts.
func (c *Cache) Verify(u *graph.Universe) error {
	if len(c.entries) != u.Len() {
		return fmt.Errorf("reach cache has %d entries, universe has %d systems", len(c.entries), u.Len())
	}
	hopOf := func(e Entry, name string) (int, bool) {
		for k, n := range e.Reachable {
			if n == name {
				return e.Hops[k], true
			}
		}
		return 0, false
	}
	for _, e := range c.entries {
		if !u.Exists(e.System) {
			return fmt.Errorf("reach entry for unknown system %q", e.System)
		}
		if len(e.Reachable) == 0 || e.Reachable[0] != e.System || e.Hops[0] != 0 {
			return fmt.Errorf("reach entry %s does not start with itself", e.System)
		}
		for k, other := range e.Reachable {
			j, ok := c.bySys[other]
			if !ok {
				return fmt.Errorf("reach entry %s lists unknown system %q", e.System, other)
			}
			back, ok := hopOf(c.entries[j], e.System)
			if !ok || back != e.Hops[k] {
				return fmt.Errorf("reach cache asymmetric between %s and %s", e.System, other)
			}
		}
	}
	return nil
}

// Fingerprint hashes the systems and stargates of u. A stored cache whose
// fingerprint differs was built from another graph and must be rebuilt.
func Fingerprint(u *graph.Universe) string {
	h := sha256.New()
	for _, name := range u.Names() {
		gates, _ := u.Neighbors(name)
		sorted := append([]string(nil), gates...)
		sort.Strings(sorted)
		io.WriteString(h, name)
		io.WriteString(h, "\x00")
		io.WriteString(h, strings.Join(sorted, "\x01"))
		io.WriteString(h, "\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}
