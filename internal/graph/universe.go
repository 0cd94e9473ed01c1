package graph

import (
	"math"
	"sort"
	"strings"
)

// MetersPerLY converts coordinate units (metres) to light-years.
const MetersPerLY = 9.4605284e15

// System is a solar system with its position and stargate neighbours.
type System struct {
	ID              int32
	Name            string
	X, Y, Z         float64 // metres
	Security        float64 // 0.0 (null) to 1.0 (highsec)
	RegionID        int32
	ConstellationID int32
	Region          string
	// Gates lists stargate neighbours by name, in input order.
	Gates []string
	// Map2D is an optional externally supplied schematic position used to
	// seed region layouts.
	Map2D    [2]float64
	HasMap2D bool
}

// Bridge is a jump bridge between two systems. Only friendly bridges are
// used by searches.
type Bridge struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Friendly bool   `json:"friendly"`
}

// Universe holds systems connected by stargates plus the friendly jump bridge
// overlay. It is immutable once built and safe for concurrent reads.
type Universe struct {
	systems map[string]*System
	byLower map[string]string
	names   []string
	regions map[string][]string
	// bridge maps a system to its friendly bridge partner
	bridge  map[string]string
	bridges []Bridge
	index   *spatialIndex

	maxGateLY   float64
	maxBridgeLY float64
}

// Builder collects systems, gates and bridges and validates them in Build.
// It mirrors the row-by-row shape of the static data export.
type Builder struct {
	systems map[string]*System
	order   []string
	bridges []Bridge
	dupes   []string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{systems: make(map[string]*System)}
}

// AddSystem registers a system. Gates listed on s are kept.
func (b *Builder) AddSystem(s System) {
	if _, ok := b.systems[s.Name]; ok {
		b.dupes = append(b.dupes, s.Name)
		return
	}
	cp := s
	cp.Gates = append([]string(nil), s.Gates...)
	b.systems[s.Name] = &cp
	b.order = append(b.order, s.Name)
}

// AddGate adds a one-way stargate row. The export lists each gate from both
// ends, so a valid dataset ends up symmetric.
func (b *Builder) AddGate(from, to string) {
	if s, ok := b.systems[from]; ok {
		s.Gates = append(s.Gates, to)
	}
}

// AddBridge registers a jump bridge.
func (b *Builder) AddBridge(br Bridge) {
	b.bridges = append(b.bridges, br)
}

// Build validates the collected data and returns the immutable Universe.
func (b *Builder) Build() (*Universe, error) {
	if len(b.dupes) > 0 {
		return nil, malformed("duplicate system name %q", b.dupes[0])
	}
	u := &Universe{
		systems: make(map[string]*System, len(b.systems)),
		byLower: make(map[string]string, len(b.systems)),
		regions: make(map[string][]string),
	}
	for _, name := range b.order {
		s := b.systems[name]
		s.Gates = dedupe(s.Gates)
		u.systems[name] = s
		u.byLower[strings.ToLower(name)] = name
		u.names = append(u.names, name)
		u.regions[s.Region] = append(u.regions[s.Region], name)
	}
	sort.Strings(u.names)
	for r := range u.regions {
		sort.Strings(u.regions[r])
	}

	for _, name := range u.names {
		s := u.systems[name]
		for _, to := range s.Gates {
			if to == name {
				return nil, malformed("system %q has a stargate to itself", name)
			}
			t, ok := u.systems[to]
			if !ok {
				return nil, malformed("system %q has a stargate to unknown system %q", name, to)
			}
			if !contains(t.Gates, name) {
				return nil, malformed("stargate %q -> %q has no return gate", name, to)
			}
			if d := lyBetween(s, t); d > u.maxGateLY {
				u.maxGateLY = d
			}
		}
	}

	if err := u.setBridges(b.bridges); err != nil {
		return nil, err
	}
	u.index = newSpatialIndex(u.systems)
	return u, nil
}

// NewUniverse builds a Universe from complete system records and bridges.
func NewUniverse(systems []System, bridges []Bridge) (*Universe, error) {
	b := NewBuilder()
	for _, s := range systems {
		b.AddSystem(s)
	}
	for _, br := range bridges {
		b.AddBridge(br)
	}
	return b.Build()
}

// WithBridges returns a new Universe sharing system data with u but using
// the given bridge list.
func (u *Universe) WithBridges(bridges []Bridge) (*Universe, error) {
	nu := &Universe{
		systems:   u.systems,
		byLower:   u.byLower,
		names:     u.names,
		regions:   u.regions,
		index:     u.index,
		maxGateLY: u.maxGateLY,
	}
	if err := nu.setBridges(bridges); err != nil {
		return nil, err
	}
	return nu, nil
}

func (u *Universe) setBridges(bridges []Bridge) error {
	u.bridge = make(map[string]string)
	u.bridges = nil
	u.maxBridgeLY = 0
	for _, br := range bridges {
		from, ok := u.systems[br.From]
		if !ok {
			return malformed("jump bridge from unknown system %q", br.From)
		}
		to, ok := u.systems[br.To]
		if !ok {
			return malformed("jump bridge to unknown system %q", br.To)
		}
		if br.From == br.To {
			return malformed("jump bridge %q connects a system to itself", br.From)
		}
		u.bridges = append(u.bridges, br)
		if !br.Friendly {
			continue
		}
		for _, end := range []string{br.From, br.To} {
			if other, ok := u.bridge[end]; ok {
				return malformed("system %q already has a friendly jump bridge to %q", end, other)
			}
		}
		u.bridge[br.From] = br.To
		u.bridge[br.To] = br.From
		if d := lyBetween(from, to); d > u.maxBridgeLY {
			u.maxBridgeLY = d
		}
	}
	return nil
}

// Len returns the number of systems.
func (u *Universe) Len() int { return len(u.names) }

// Names returns all system names in lexical order. The slice is shared.
func (u *Universe) Names() []string { return u.names }

// Exists reports whether name is a known system.
func (u *Universe) Exists(name string) bool {
	_, ok := u.systems[name]
	return ok
}

// Lookup resolves a case-insensitive name to its canonical spelling.
func (u *Universe) Lookup(name string) (string, error) {
	if _, ok := u.systems[name]; ok {
		return name, nil
	}
	if canon, ok := u.byLower[strings.ToLower(strings.TrimSpace(name))]; ok {
		return canon, nil
	}
	return "", unknown(name)
}

// System returns the record for name.
func (u *Universe) System(name string) (*System, error) {
	s, ok := u.systems[name]
	if !ok {
		return nil, unknown(name)
	}
	return s, nil
}

// Neighbors returns the stargate neighbours of name. The slice is shared.
func (u *Universe) Neighbors(name string) ([]string, error) {
	s, ok := u.systems[name]
	if !ok {
		return nil, unknown(name)
	}
	return s.Gates, nil
}

// Bridge returns the friendly jump bridge partner of name, if any.
func (u *Universe) Bridge(name string) (string, bool) {
	to, ok := u.bridge[name]
	return to, ok
}

// Bridges returns every registered bridge, friendly or not.
func (u *Universe) Bridges() []Bridge { return u.bridges }

// Distance returns the straight-line distance between a and b in light-years.
func (u *Universe) Distance(a, b string) (float64, error) {
	sa, ok := u.systems[a]
	if !ok {
		return 0, unknown(a)
	}
	sb, ok := u.systems[b]
	if !ok {
		return 0, unknown(b)
	}
	return lyBetween(sa, sb), nil
}

// Regions returns region names in lexical order.
func (u *Universe) Regions() []string {
	out := make([]string, 0, len(u.regions))
	for r := range u.regions {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// RegionSystems returns the sorted member systems of region.
func (u *Universe) RegionSystems(region string) []string {
	return u.regions[region]
}

// MaxEdgeLY is the longest single hop in light-years over stargates and,
// when withBridges is set, friendly jump bridges.
func (u *Universe) MaxEdgeLY(withBridges bool) float64 {
	if withBridges && u.maxBridgeLY > u.maxGateLY {
		return u.maxBridgeLY
	}
	return u.maxGateLY
}

func lyBetween(a, b *System) float64 {
	dx, dy, dz := a.X-b.X, a.Y-b.Y, a.Z-b.Z
	return math.Sqrt(dx*dx+dy*dy+dz*dz) / MetersPerLY
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func contains(list []string, name string) bool {
	for _, n := range list {
		if n == name {
			return true
		}
	}
	return false
}
