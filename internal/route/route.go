// Package route keeps a caller's waypoint list and the jump route through it.
//
// A Manager chains one range-bounded search per consecutive waypoint pair and
// suggests alternate midpoints. Recomputation runs on a background goroutine;
// starting a new one cancels the previous one, and only the newest result is
// published on the Updates channel.
package route

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"eve-atlas/internal/metrics"
	"eve-atlas/internal/pathfind"
)

// ErrBadIndex is returned by RemoveWaypoint for an index out of range.
var ErrBadIndex = errors.New("waypoint index out of range")

// Alternate lists systems that could replace the route point at Index: each
// is within range of both the previous and the next point.
type Alternate struct {
	Index   int      `json:"index"`
	System  string   `json:"system"`
	Options []string `json:"options"`
}

// Route is a computed multi-waypoint jump route.
type Route struct {
	ID         string                `json:"id"`
	Waypoints  []string              `json:"waypoints"`
	MaxLY      float64               `json:"max_ly"`
	Points     []pathfind.RoutePoint `json:"points"`
	TotalLY    float64               `json:"total_ly"`
	Alternates []Alternate           `json:"alternates"`
}

// Jumps is the number of jumps on the route.
func (r *Route) Jumps() int {
	if len(r.Points) == 0 {
		return 0
	}
	return len(r.Points) - 1
}

// Update is published after every background recomputation that was not
// superseded. Exactly one of Route and Err is set.
type Update struct {
	ID    string
	Route *Route
	Err   error
}

type state struct {
	waypoints []string
	maxLY     float64
	avoid     pathfind.Avoid
}

// Manager owns the mutable route state of one caller.
type Manager struct {
	mu      sync.Mutex
	finder  *pathfind.Finder
	st      state
	current *Route
	gen     uint64
	cancel  context.CancelFunc
	closed  bool

	base     context.Context
	shutdown context.CancelFunc
	wg       sync.WaitGroup
	updates  chan Update
}

// NewManager creates a Manager searching with f and jumps of at most maxLY.
func NewManager(f *pathfind.Finder, maxLY float64) *Manager {
	base, shutdown := context.WithCancel(context.Background())
	return &Manager{
		finder:   f,
		st:       state{maxLY: maxLY},
		base:     base,
		shutdown: shutdown,
		updates:  make(chan Update, 1),
	}
}

// Updates delivers recomputation results. Only the newest unread update is
// kept; the channel is closed by Close.
func (m *Manager) Updates() <-chan Update { return m.updates }

// Current returns the last successfully published route, or nil.
func (m *Manager) Current() *Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Waypoints returns a copy of the waypoint list.
func (m *Manager) Waypoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.st.waypoints...)
}

// SetWaypoints replaces the waypoint list and recomputes.
func (m *Manager) SetWaypoints(waypoints []string) string {
	return m.mutate(func(st *state) error {
		st.waypoints = append([]string(nil), waypoints...)
		return nil
	})
}

// AddWaypoint appends a waypoint and recomputes.
func (m *Manager) AddWaypoint(system string) string {
	return m.mutate(func(st *state) error {
		st.waypoints = append(st.waypoints, system)
		return nil
	})
}

// RemoveWaypoint drops the waypoint at index i and recomputes.
func (m *Manager) RemoveWaypoint(i int) (string, error) {
	var err error
	id := m.mutate(func(st *state) error {
		if i < 0 || i >= len(st.waypoints) {
			err = fmt.Errorf("%w: %d", ErrBadIndex, i)
			return err
		}
		st.waypoints = append(st.waypoints[:i:i], st.waypoints[i+1:]...)
		return nil
	})
	return id, err
}

// SetMaxLY changes the jump range and recomputes.
func (m *Manager) SetMaxLY(ly float64) string {
	return m.mutate(func(st *state) error {
		st.maxLY = ly
		return nil
	})
}

// SetFinder switches to a finder over a new Universe, e.g. after the jump
// bridge list changed, and recomputes.
func (m *Manager) SetFinder(f *pathfind.Finder) string {
	m.mu.Lock()
	m.finder = f
	m.mu.Unlock()
	return m.Recompute()
}

// SetAvoid changes the avoided systems and regions and recomputes.
func (m *Manager) SetAvoid(avoid pathfind.Avoid) string {
	return m.mutate(func(st *state) error {
		st.avoid = avoid
		return nil
	})
}

func (m *Manager) mutate(fn func(*state) error) string {
	m.mu.Lock()
	if err := fn(&m.st); err != nil {
		m.mu.Unlock()
		return ""
	}
	m.mu.Unlock()
	return m.Recompute()
}

// Recompute cancels any in-flight computation and starts a new one in the
// background. It returns the id the resulting Update will carry, or "" once
// the Manager is closed.
func (m *Manager) Recompute() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ""
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithCancel(m.base)
	m.cancel = cancel
	st := m.st.clone()
	f := m.finder
	id := uuid.NewString()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		r, err := compute(ctx, f, st)
		if r != nil {
			r.ID = id
		}
		m.publish(gen, Update{ID: id, Route: r, Err: err})
	}()
	return id
}

func (m *Manager) publish(gen uint64, u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen || m.closed {
		metrics.RouteRecomputesTotal.WithLabelValues("superseded").Inc()
		return
	}
	switch {
	case u.Err == nil:
		m.current = u.Route
		metrics.RouteRecomputesTotal.WithLabelValues("ok").Inc()
	case errors.Is(u.Err, pathfind.ErrNoPath):
		metrics.RouteRecomputesTotal.WithLabelValues("no_path").Inc()
	default:
		metrics.RouteRecomputesTotal.WithLabelValues("error").Inc()
	}
	// Replace an unread update; publish holds mu so nobody else sends.
	select {
	case m.updates <- u:
	default:
		select {
		case <-m.updates:
		default:
		}
		m.updates <- u
	}
}

// Compute computes the route for the current state synchronously, without
// publishing it.
func (m *Manager) Compute(ctx context.Context) (*Route, error) {
	m.mu.Lock()
	st := m.st.clone()
	f := m.finder
	m.mu.Unlock()
	r, err := compute(ctx, f, st)
	if r != nil {
		r.ID = uuid.NewString()
	}
	return r, err
}

// Close cancels any in-flight computation, waits for it and closes Updates.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.shutdown()
	m.wg.Wait()
	close(m.updates)
}

func (s state) clone() state {
	s.waypoints = append([]string(nil), s.waypoints...)
	s.avoid.Systems = append([]string(nil), s.avoid.Systems...)
	s.avoid.Regions = append([]string(nil), s.avoid.Regions...)
	return s
}

func compute(ctx context.Context, f *pathfind.Finder, st state) (*Route, error) {
	r := &Route{Waypoints: st.waypoints, MaxLY: st.maxLY, Points: []pathfind.RoutePoint{}, Alternates: []Alternate{}}
	switch len(st.waypoints) {
	case 0:
		return r, nil
	case 1:
		if _, err := f.Universe().System(st.waypoints[0]); err != nil {
			return nil, err
		}
		r.Points = append(r.Points, pathfind.RoutePoint{System: st.waypoints[0]})
		return r, nil
	}

	for i := 0; i+1 < len(st.waypoints); i++ {
		from, to := st.waypoints[i], st.waypoints[i+1]
		leg, err := f.NavigateRanged(ctx, from, to, st.maxLY, st.avoid)
		if err != nil {
			return nil, fmt.Errorf("leg %s -> %s: %w", from, to, err)
		}
		if n := len(r.Points); n > 0 && r.Points[n-1].System == leg[0].System {
			leg = leg[1:]
		}
		r.Points = append(r.Points, leg...)
	}
	for _, p := range r.Points {
		r.TotalLY += p.LY
	}

	alts, err := alternates(f, r.Points, st.maxLY, st.avoid)
	if err != nil {
		return nil, err
	}
	r.Alternates = alts
	return r, nil
}

// alternates returns, for every interior point, the systems in jump range of
// both neighbouring points other than the point itself. Only the points
// directly before and after are used: a substitute for point i must connect
// p[i-1] to p[i+1] so the route keeps the same jump count.
func alternates(f *pathfind.Finder, points []pathfind.RoutePoint, maxLY float64, avoid pathfind.Avoid) ([]Alternate, error) {
	out := []Alternate{}
	for i := 1; i+1 < len(points); i++ {
		before, err := f.JumpNeighbors(points[i-1].System, maxLY, avoid)
		if err != nil {
			return nil, err
		}
		after, err := f.JumpNeighbors(points[i+1].System, maxLY, avoid)
		if err != nil {
			return nil, err
		}
		inAfter := make(map[string]bool, len(after))
		for _, s := range after {
			inAfter[s] = true
		}
		options := []string{}
		for _, s := range before {
			if inAfter[s] && s != points[i].System {
				options = append(options, s)
			}
		}
		out = append(out, Alternate{Index: i, System: points[i].System, Options: options})
	}
	return out, nil
}
