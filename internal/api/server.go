package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"eve-atlas/internal/config"
	"eve-atlas/internal/graph"
	"eve-atlas/internal/layout"
	"eve-atlas/internal/metrics"
	"eve-atlas/internal/pathfind"
	"eve-atlas/internal/reach"
)

// Server is the HTTP API over the universe graph, the reachability cache,
// the layout engine and per-caller tracked routes.
type Server struct {
	cfg    *config.Config
	engine *layout.Engine

	mu       sync.RWMutex
	universe *graph.Universe
	finder   *pathfind.Finder
	cache    *reach.Cache
	ready    bool

	// Region layouts are cached per universe generation; concurrent misses
	// for the same region share one computation.
	layoutMu    sync.RWMutex
	layoutGen   uint64
	layouts     map[string]*layout.RegionLayout
	projection  *layout.RelaxResult
	layoutGroup singleflight.Group

	trackedMu sync.Mutex
	tracked   map[string]*tracked
}

var validate = validator.New()

// NewServer creates a Server. It answers 503 until SetUniverse is called.
func NewServer(cfg *config.Config, engine *layout.Engine) *Server {
	return &Server{
		cfg:     cfg,
		engine:  engine,
		layouts: make(map[string]*layout.RegionLayout),
		tracked: make(map[string]*tracked),
	}
}

// SetUniverse installs a new universe and its reachability cache. It is
// called once the static data is loaded and again whenever the jump bridge
// list changes. Tracked routes are recomputed against the new universe.
func (s *Server) SetUniverse(u *graph.Universe, cache *reach.Cache) {
	f := pathfind.New(u)
	s.mu.Lock()
	s.universe = u
	s.finder = f
	s.cache = cache
	s.ready = true
	s.mu.Unlock()

	s.layoutMu.Lock()
	s.layoutGen++
	s.layouts = make(map[string]*layout.RegionLayout)
	s.projection = nil
	s.layoutMu.Unlock()

	s.trackedMu.Lock()
	for _, t := range s.tracked {
		t.m.SetFinder(f)
	}
	s.trackedMu.Unlock()
}

// Universe returns the installed universe, or nil before SetUniverse.
func (s *Server) Universe() *graph.Universe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.universe
}

func (s *Server) snapshot() (*graph.Universe, *pathfind.Finder, *reach.Cache, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.universe, s.finder, s.cache, s.ready
}

// Handler returns the HTTP handler with all API routes and CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, instrument(pattern, h))
	}
	handle("GET /api/status", s.handleStatus)
	handle("GET /api/systems/autocomplete", s.handleAutocomplete)
	handle("GET /api/regions/autocomplete", s.handleRegionAutocomplete)
	handle("GET /api/systems/{name}", s.handleSystem)
	handle("GET /api/systems/{name}/within-hops", s.handleWithinHops)
	handle("GET /api/systems/{name}/within-ly", s.handleWithinLY)
	handle("GET /api/route", s.handleNavigate)
	handle("POST /api/route/ranged", s.handleNavigateRanged)
	// Layout
	handle("GET /api/layout", s.handleUniverseLayout)
	handle("GET /api/layout/{region}", s.handleRegionLayout)
	// Tracked routes
	handle("POST /api/tracked", s.handleTrackedCreate)
	handle("PUT /api/tracked/{id}/waypoints", s.handleTrackedWaypoints)
	handle("PUT /api/tracked/{id}/settings", s.handleTrackedSettings)
	handle("GET /api/tracked/{id}/route", s.handleTrackedRoute)
	handle("DELETE /api/tracked/{id}", s.handleTrackedDelete)
	mux.Handle("GET /metrics", metrics.Handler())
	return corsMiddleware(mux)
}

// Close stops every tracked route.
func (s *Server) Close() {
	s.trackedMu.Lock()
	all := s.tracked
	s.tracked = make(map[string]*tracked)
	s.trackedMu.Unlock()
	for _, t := range all {
		t.close()
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(204)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument counts requests per route pattern and status code.
func instrument(pattern string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: 200}
		next(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(pattern, strconv.Itoa(rec.code)).Inc()
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, map[string]string{"error": msg})
}

// writeQueryError maps engine errors to status codes. ErrNoPath is not an
// error for clients and is handled by the callers.
func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, graph.ErrUnknownSystem):
		writeError(w, 404, err.Error())
	case errors.Is(err, pathfind.ErrInvalidRange), errors.Is(err, reach.ErrInvalidHops):
		writeError(w, 400, err.Error())
	case errors.Is(err, layout.ErrDegenerateLayout):
		writeError(w, 422, err.Error())
	default:
		writeError(w, 500, err.Error())
	}
}

func writeNotReady(w http.ResponseWriter) {
	writeError(w, 503, "universe not loaded yet")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	u, _, cache, ready := s.snapshot()
	result := map[string]interface{}{
		"ready": ready,
	}
	if u != nil {
		result["systems"] = u.Len()
		result["regions"] = len(u.Regions())
		result["bridges"] = len(u.Bridges())
	}
	if cache != nil {
		result["reach_max_hops"] = cache.MaxHops()
		result["reach_entries"] = cache.Len()
	}
	s.trackedMu.Lock()
	result["tracked_routes"] = len(s.tracked)
	s.trackedMu.Unlock()
	writeJSON(w, result)
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	u, _, _, ready := s.snapshot()
	if q == "" || !ready {
		writeJSON(w, map[string][]string{"systems": {}})
		return
	}

	var prefix, contains []string
	for _, name := range u.Names() {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, q) {
			prefix = append(prefix, name)
		} else if strings.Contains(lower, q) {
			contains = append(contains, name)
		}
	}

	result := append(prefix, contains...)
	if len(result) > 15 {
		result = result[:15]
	}
	if result == nil {
		result = []string{}
	}
	writeJSON(w, map[string][]string{"systems": result})
}

func (s *Server) handleRegionAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("q")))
	u, _, _, ready := s.snapshot()
	if q == "" || !ready {
		writeJSON(w, map[string][]string{"regions": {}})
		return
	}

	seen := map[string]bool{}
	var prefix, contains, bySystem []string
	for _, region := range u.Regions() {
		lower := strings.ToLower(region)
		if strings.HasPrefix(lower, q) {
			prefix = append(prefix, region)
			seen[region] = true
		} else if strings.Contains(lower, q) {
			contains = append(contains, region)
			seen[region] = true
		}
	}

	// Also match by system name -> suggest the region that system belongs to
	for _, name := range u.Names() {
		if !strings.HasPrefix(strings.ToLower(name), q) {
			continue
		}
		if sys, err := u.System(name); err == nil && sys.Region != "" && !seen[sys.Region] {
			bySystem = append(bySystem, sys.Region+" ("+name+")")
			seen[sys.Region] = true
		}
	}

	result := append(prefix, contains...)
	result = append(result, bySystem...)
	if len(result) > 15 {
		result = result[:15]
	}
	if result == nil {
		result = []string{}
	}
	writeJSON(w, map[string][]string{"regions": result})
}

type systemResponse struct {
	Name            string   `json:"name"`
	ID              int32    `json:"id"`
	Region          string   `json:"region"`
	ConstellationID int32    `json:"constellation_id"`
	Security        float64  `json:"security"`
	Gates           []string `json:"gates"`
	Bridge          string   `json:"bridge,omitempty"`
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	u, _, _, ready := s.snapshot()
	if !ready {
		writeNotReady(w)
		return
	}
	name, err := u.Lookup(r.PathValue("name"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	sys, _ := u.System(name)
	gates := append([]string(nil), sys.Gates...)
	sort.Strings(gates)
	resp := systemResponse{
		Name:            sys.Name,
		ID:              sys.ID,
		Region:          sys.Region,
		ConstellationID: sys.ConstellationID,
		Security:        sys.Security,
		Gates:           gates,
	}
	if partner, ok := u.Bridge(name); ok {
		resp.Bridge = partner
	}
	writeJSON(w, resp)
}
