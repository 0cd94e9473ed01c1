package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"eve-atlas/internal/pathfind"
	"eve-atlas/internal/route"
)

// maxTrackedRoutes caps concurrently tracked routes per server.
const maxTrackedRoutes = 256

// tracked is one caller's route manager plus the last update it published.
type tracked struct {
	m *route.Manager

	mu   sync.Mutex
	last route.Update
	done chan struct{}
}

func newTracked(m *route.Manager) *tracked {
	t := &tracked{m: m, done: make(chan struct{})}
	go t.drain()
	return t
}

func (t *tracked) drain() {
	defer close(t.done)
	for u := range t.m.Updates() {
		t.mu.Lock()
		t.last = u
		t.mu.Unlock()
	}
}

func (t *tracked) lastUpdate() route.Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *tracked) close() {
	t.m.Close()
	<-t.done
}

func (s *Server) lookupTracked(w http.ResponseWriter, r *http.Request) (*tracked, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, 400, "invalid tracked route id")
		return nil, false
	}
	s.trackedMu.Lock()
	t, ok := s.tracked[id]
	s.trackedMu.Unlock()
	if !ok {
		writeError(w, 404, "unknown tracked route: "+id)
		return nil, false
	}
	return t, true
}

// POST /api/tracked
// Body (optional): {"max_ly": 7}
func (s *Server) handleTrackedCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxLY float64 `json:"max_ly" validate:"omitempty,gt=0"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, "invalid json")
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	if req.MaxLY == 0 {
		req.MaxLY = s.cfg.DefaultJumpLY
	}

	// The finder is read under trackedMu so that a concurrent SetUniverse
	// either hands it to us or finds the new route in its loop.
	s.trackedMu.Lock()
	_, finder, _, ready := s.snapshot()
	if !ready {
		s.trackedMu.Unlock()
		writeNotReady(w)
		return
	}
	if len(s.tracked) >= maxTrackedRoutes {
		s.trackedMu.Unlock()
		writeError(w, 429, "too many tracked routes")
		return
	}
	id := uuid.NewString()
	s.tracked[id] = newTracked(route.NewManager(finder, req.MaxLY))
	s.trackedMu.Unlock()

	writeJSONStatus(w, 201, map[string]string{"id": id})
}

// PUT /api/tracked/{id}/waypoints
// Body: {"waypoints": ["Jita", "Amarr"]}
func (s *Server) handleTrackedWaypoints(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupTracked(w, r)
	if !ok {
		return
	}
	var req struct {
		Waypoints []string `json:"waypoints" validate:"dive,required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	u, _, _, _ := s.snapshot()
	waypoints := make([]string, len(req.Waypoints))
	for i, name := range req.Waypoints {
		canon, err := u.Lookup(name)
		if err != nil {
			writeQueryError(w, err)
			return
		}
		waypoints[i] = canon
	}
	writeJSONStatus(w, 202, map[string]string{"recompute_id": t.m.SetWaypoints(waypoints)})
}

// PUT /api/tracked/{id}/settings
// Body: {"max_ly": 7, "avoid_systems": [], "avoid_regions": []}
func (s *Server) handleTrackedSettings(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupTracked(w, r)
	if !ok {
		return
	}
	var req struct {
		MaxLY        float64  `json:"max_ly" validate:"omitempty,gt=0"`
		AvoidSystems []string `json:"avoid_systems" validate:"dive,required"`
		AvoidRegions []string `json:"avoid_regions" validate:"dive,required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid json")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	u, _, _, _ := s.snapshot()
	avoid, err := resolveAvoid(u, req.AvoidSystems, req.AvoidRegions)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	if req.MaxLY > 0 {
		t.m.SetMaxLY(req.MaxLY)
	}
	writeJSONStatus(w, 202, map[string]string{"recompute_id": t.m.SetAvoid(avoid)})
}

type trackedRouteResponse struct {
	ID        string       `json:"id"`
	Waypoints []string     `json:"waypoints"`
	Route     *route.Route `json:"route"`
	// LastUpdate is the recompute id of the newest published result.
	LastUpdate string `json:"last_update,omitempty"`
	NoPath     bool   `json:"no_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// GET /api/tracked/{id}/route
func (s *Server) handleTrackedRoute(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupTracked(w, r)
	if !ok {
		return
	}
	last := t.lastUpdate()
	resp := trackedRouteResponse{
		ID:         r.PathValue("id"),
		Waypoints:  t.m.Waypoints(),
		Route:      t.m.Current(),
		LastUpdate: last.ID,
	}
	switch {
	case errors.Is(last.Err, pathfind.ErrNoPath):
		resp.NoPath = true
	case last.Err != nil:
		resp.Error = last.Err.Error()
	}
	writeJSON(w, resp)
}

// DELETE /api/tracked/{id}
func (s *Server) handleTrackedDelete(w http.ResponseWriter, r *http.Request) {
	t, ok := s.lookupTracked(w, r)
	if !ok {
		return
	}
	s.trackedMu.Lock()
	delete(s.tracked, r.PathValue("id"))
	s.trackedMu.Unlock()
	t.close()
	w.WriteHeader(204)
}
