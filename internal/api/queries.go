package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/pathfind"
	"eve-atlas/internal/reach"
)

// GET /api/route?from=Jita&to=Amarr&bridges=true
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	u, finder, _, ready := s.snapshot()
	if !ready {
		writeNotReady(w)
		return
	}
	q := r.URL.Query()
	from, err := u.Lookup(q.Get("from"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	to, err := u.Lookup(q.Get("to"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	useBridges := false
	if v := q.Get("bridges"); v != "" {
		if useBridges, err = strconv.ParseBool(v); err != nil {
			writeError(w, 400, "invalid bridges flag")
			return
		}
	}

	path, err := finder.Navigate(r.Context(), from, to, useBridges)
	if errors.Is(err, pathfind.ErrNoPath) {
		writeJSON(w, map[string]interface{}{"path": nil, "no_path": true})
		return
	}
	if err != nil {
		writeQueryError(w, err)
		return
	}
	result := map[string]interface{}{
		"path":    path,
		"jumps":   len(path) - 1,
		"bridges": useBridges,
	}
	if useBridges {
		// Stargate-only jump count, for comparison.
		result["gate_jumps"] = u.ShortestPath(from, to)
	}
	writeJSON(w, result)
}

type rangedRequest struct {
	From         string   `json:"from" validate:"required"`
	To           string   `json:"to" validate:"required"`
	MaxLY        float64  `json:"max_ly" validate:"omitempty,gt=0"`
	AvoidSystems []string `json:"avoid_systems" validate:"dive,required"`
	AvoidRegions []string `json:"avoid_regions" validate:"dive,required"`
}

// POST /api/route/ranged
// Body: {"from":"Jita","to":"Amarr","max_ly":7,"avoid_systems":[],"avoid_regions":[]}
func (s *Server) handleNavigateRanged(w http.ResponseWriter, r *http.Request) {
	var req rangedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	u, finder, _, ready := s.snapshot()
	if !ready {
		writeNotReady(w)
		return
	}
	if req.MaxLY == 0 {
		req.MaxLY = s.cfg.DefaultJumpLY
	}
	from, err := u.Lookup(req.From)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	to, err := u.Lookup(req.To)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	avoid, err := resolveAvoid(u, req.AvoidSystems, req.AvoidRegions)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	points, err := finder.NavigateRanged(r.Context(), from, to, req.MaxLY, avoid)
	if errors.Is(err, pathfind.ErrNoPath) {
		writeJSON(w, map[string]interface{}{"path": nil, "no_path": true})
		return
	}
	if err != nil {
		writeQueryError(w, err)
		return
	}
	total := 0.0
	for _, p := range points {
		total += p.LY
	}
	writeJSON(w, map[string]interface{}{
		"path":     points,
		"jumps":    len(points) - 1,
		"total_ly": total,
		"max_ly":   req.MaxLY,
	})
}

// resolveAvoid canonicalises avoided system names. Region names are kept as
// given; an unknown region simply matches nothing.
func resolveAvoid(u *graph.Universe, systems, regions []string) (pathfind.Avoid, error) {
	avoid := pathfind.Avoid{Regions: regions}
	for _, name := range systems {
		canon, err := u.Lookup(name)
		if err != nil {
			return pathfind.Avoid{}, err
		}
		avoid.Systems = append(avoid.Systems, canon)
	}
	return avoid, nil
}

// GET /api/systems/{name}/within-hops?n=3&min_security=0.45
// A security floor bypasses the cache.
func (s *Server) handleWithinHops(w http.ResponseWriter, r *http.Request) {
	u, _, cache, ready := s.snapshot()
	if !ready || cache == nil {
		writeNotReady(w)
		return
	}
	name, err := u.Lookup(r.PathValue("name"))
	if err != nil {
		writeQueryError(w, err)
		return
	}
	q := r.URL.Query()
	n, err := strconv.Atoi(q.Get("n"))
	if err != nil {
		writeError(w, 400, "invalid n")
		return
	}
	minSec := 0.0
	if v := q.Get("min_security"); v != "" {
		if minSec, err = strconv.ParseFloat(v, 64); err != nil {
			writeError(w, 400, "invalid min_security")
			return
		}
	}

	var systems []string
	cached := false
	if minSec > 0 {
		if n < 0 {
			writeQueryError(w, fmt.Errorf("%w: %d", reach.ErrInvalidHops, n))
			return
		}
		systems = orderByHops(u.SystemsWithinRadiusMinSecurity(name, n, minSec))
	} else {
		if systems, err = cache.WithinHops(name, n); err != nil {
			writeQueryError(w, err)
			return
		}
		cached = n <= cache.MaxHops()
	}

	set := make(map[string]int, len(systems))
	for _, sys := range systems {
		set[sys] = 0
	}
	regions := make([]string, 0)
	for region := range u.RegionsInSet(set) {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	writeJSON(w, map[string]interface{}{
		"system":  name,
		"n":       n,
		"cached":  cached,
		"systems": systems,
		"regions": regions,
	})
}

// orderByHops flattens a hop map into the cache's order: hop count, then name.
func orderByHops(hops map[string]int) []string {
	out := make([]string, 0, len(hops))
	for name := range hops {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		if hops[out[i]] != hops[out[j]] {
			return hops[out[i]] < hops[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// GET /api/systems/{name}/within-ly?ly=6.5
func (s *Server) handleWithinLY(w http.ResponseWriter, r *http.Request) {
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
	ly, err := strconv.ParseFloat(r.URL.Query().Get("ly"), 64)
	if err != nil || ly < 0 || math.IsNaN(ly) || math.IsInf(ly, 0) {
		writeError(w, 400, "invalid ly")
		return
	}
	systems, err := u.SystemsWithinLY(name, ly)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"system":  name,
		"ly":      ly,
		"systems": systems,
	})
}
