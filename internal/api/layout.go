package api

import (
	"net/http"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/layout"
)

// universeLayoutKey is the singleflight key of the whole-universe projection.
// Region names never start with a NUL byte.
const universeLayoutKey = "\x00universe"

// GET /api/layout/{region}
func (s *Server) handleRegionLayout(w http.ResponseWriter, r *http.Request) {
	u, _, _, ready := s.snapshot()
	if !ready {
		writeNotReady(w)
		return
	}
	region := r.PathValue("region")
	if len(u.RegionSystems(region)) == 0 {
		writeError(w, 404, "unknown region: "+region)
		return
	}
	rl, err := s.regionLayout(u, region)
	if err != nil {
		writeQueryError(w, err)
		return
	}
	writeJSON(w, rl)
}

// regionLayout returns the cached layout of region, computing it at most once
// per universe generation.
func (s *Server) regionLayout(u *graph.Universe, region string) (*layout.RegionLayout, error) {
	s.layoutMu.RLock()
	rl, ok := s.layouts[region]
	gen := s.layoutGen
	s.layoutMu.RUnlock()
	if ok {
		return rl, nil
	}

	v, err, _ := s.layoutGroup.Do(region, func() (interface{}, error) {
		rl, err := s.engine.Region(u, region)
		if err != nil {
			return nil, err
		}
		s.layoutMu.Lock()
		if s.layoutGen == gen {
			s.layouts[region] = rl
		}
		s.layoutMu.Unlock()
		return rl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*layout.RegionLayout), nil
}

type universeLayoutResponse struct {
	Positions  map[string]layout.Point `json:"positions"`
	Iterations int                     `json:"iterations"`
	Converged  bool                    `json:"converged"`
}

// GET /api/layout
func (s *Server) handleUniverseLayout(w http.ResponseWriter, r *http.Request) {
	u, _, _, ready := s.snapshot()
	if !ready {
		writeNotReady(w)
		return
	}

	s.layoutMu.RLock()
	proj := s.projection
	gen := s.layoutGen
	s.layoutMu.RUnlock()
	if proj == nil {
		v, _, _ := s.layoutGroup.Do(universeLayoutKey, func() (interface{}, error) {
			res := s.engine.Universe(u)
			s.layoutMu.Lock()
			if s.layoutGen == gen {
				s.projection = &res
			}
			s.layoutMu.Unlock()
			return &res, nil
		})
		proj = v.(*layout.RelaxResult)
	}

	writeJSON(w, universeLayoutResponse{
		Positions:  proj.Positions(),
		Iterations: proj.Iterations,
		Converged:  proj.Converged,
	})
}
