package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"eve-atlas/internal/config"
	"eve-atlas/internal/graph"
	"eve-atlas/internal/graph/graphtest"
	"eve-atlas/internal/layout"
	"eve-atlas/internal/reach"
)

// newTestServer serves Line(5) (A..E, 1 LY apart), a friendly bridge A<->E
// and an isolated system Z in region "Far".
func newTestServer(t *testing.T) *Server {
	t.Helper()
	systems := append(graphtest.Line(5), graph.System{ID: 99, Name: "Z", X: 100 * graphtest.LY, Region: "Far"})
	u := graphtest.MustUniverse(systems, graph.Bridge{From: "A", To: "E", Friendly: true})
	cache, err := reach.Build(context.Background(), u, 2, 2)
	if err != nil {
		t.Fatalf("reach.Build: %v", err)
	}
	srv := NewServer(config.Default(), layout.NewEngine(layout.DefaultOptions()))
	srv.SetUniverse(u, cache)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNotReady(t *testing.T) {
	srv := NewServer(config.Default(), layout.NewEngine(layout.DefaultOptions()))

	rec := do(t, srv, http.MethodGet, "/api/status", "")
	var status map[string]interface{}
	decode(t, rec, &status)
	if status["ready"] != false {
		t.Errorf("status = %v", status)
	}

	for _, target := range []string{"/api/route?from=A&to=B", "/api/layout/Line", "/api/systems/A/within-hops?n=1"} {
		if rec := do(t, srv, http.MethodGet, target, ""); rec.Code != 503 {
			t.Errorf("GET %s status = %d, want 503", target, rec.Code)
		}
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t)
	var status struct {
		Ready        bool `json:"ready"`
		Systems      int  `json:"systems"`
		Bridges      int  `json:"bridges"`
		ReachMaxHops int  `json:"reach_max_hops"`
		ReachEntries int  `json:"reach_entries"`
	}
	decode(t, do(t, srv, http.MethodGet, "/api/status", ""), &status)
	if !status.Ready || status.Systems != 6 || status.Bridges != 1 || status.ReachMaxHops != 2 || status.ReachEntries != 6 {
		t.Errorf("status = %+v", status)
	}
}

func TestNavigate(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name     string
		target   string
		wantCode int
		wantPath []string
		noPath   bool
	}{
		{name: "stargates only", target: "/api/route?from=A&to=E", wantCode: 200, wantPath: []string{"A", "B", "C", "D", "E"}},
		{name: "with bridges", target: "/api/route?from=A&to=E&bridges=true", wantCode: 200, wantPath: []string{"A", "E"}},
		{name: "case insensitive", target: "/api/route?from=b&to=d", wantCode: 200, wantPath: []string{"B", "C", "D"}},
		{name: "no path", target: "/api/route?from=A&to=Z", wantCode: 200, noPath: true},
		{name: "unknown system", target: "/api/route?from=A&to=Nowhere", wantCode: 404},
		{name: "bad flag", target: "/api/route?from=A&to=E&bridges=maybe", wantCode: 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != 200 {
				return
			}
			var out struct {
				Path   []string `json:"path"`
				NoPath bool     `json:"no_path"`
			}
			decode(t, rec, &out)
			if out.NoPath != tt.noPath || !equalStrings(out.Path, tt.wantPath) {
				t.Errorf("got path=%v no_path=%v, want %v no_path=%v", out.Path, out.NoPath, tt.wantPath, tt.noPath)
			}
		})
	}
}

func TestNavigateRanged(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name     string
		body     string
		wantCode int
		want     []string
		noPath   bool
	}{
		{name: "range 2.5", body: `{"from":"A","to":"E","max_ly":2.5}`, wantCode: 200, want: []string{"A", "C", "E"}},
		{name: "avoid C", body: `{"from":"A","to":"E","max_ly":2.5,"avoid_systems":["c"]}`, wantCode: 200, want: []string{"A", "B", "D", "E"}},
		{name: "avoid region", body: `{"from":"A","to":"E","max_ly":2.5,"avoid_regions":["Line"]}`, wantCode: 200, noPath: true},
		{name: "unreachable", body: `{"from":"A","to":"Z","max_ly":2.5}`, wantCode: 200, noPath: true},
		{name: "negative range", body: `{"from":"A","to":"E","max_ly":-1}`, wantCode: 400},
		{name: "missing destination", body: `{"from":"A"}`, wantCode: 400},
		{name: "invalid json", body: `{`, wantCode: 400},
		{name: "unknown avoided system", body: `{"from":"A","to":"E","avoid_systems":["Nowhere"]}`, wantCode: 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/route/ranged", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != 200 {
				return
			}
			var out struct {
				Path []struct {
					System string  `json:"system"`
					LY     float64 `json:"ly"`
				} `json:"path"`
				NoPath bool `json:"no_path"`
			}
			decode(t, rec, &out)
			var got []string
			for _, p := range out.Path {
				if p.LY > 2.5+1e-9 {
					t.Errorf("hop to %s is %.3f LY", p.System, p.LY)
				}
				got = append(got, p.System)
			}
			if out.NoPath != tt.noPath || !equalStrings(got, tt.want) {
				t.Errorf("got %v no_path=%v, want %v no_path=%v", got, out.NoPath, tt.want, tt.noPath)
			}
		})
	}
}

func TestWithinHopsAndLY(t *testing.T) {
	srv := newTestServer(t)
	tests := []struct {
		name     string
		target   string
		wantCode int
		want     []string
	}{
		{name: "cached", target: "/api/systems/C/within-hops?n=1", wantCode: 200, want: []string{"C", "B", "D"}},
		{name: "beyond cache bound", target: "/api/systems/a/within-hops?n=4", wantCode: 200, want: []string{"A", "B", "C", "D", "E"}},
		{name: "security floor", target: "/api/systems/C/within-hops?n=2&min_security=0.5", wantCode: 200, want: []string{"C"}},
		{name: "negative hops", target: "/api/systems/C/within-hops?n=-1", wantCode: 400},
		{name: "missing hops", target: "/api/systems/C/within-hops", wantCode: 400},
		{name: "unknown system", target: "/api/systems/Nowhere/within-hops?n=1", wantCode: 404},
		{name: "light-years", target: "/api/systems/B/within-ly?ly=1", wantCode: 200, want: []string{"A", "B", "C"}},
		{name: "bad light-years", target: "/api/systems/B/within-ly?ly=x", wantCode: 400},
		{name: "NaN light-years", target: "/api/systems/B/within-ly?ly=NaN", wantCode: 400},
		{name: "infinite light-years", target: "/api/systems/B/within-ly?ly=Inf", wantCode: 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body.String())
			}
			if tt.wantCode != 200 {
				return
			}
			var out struct {
				Systems []string `json:"systems"`
			}
			decode(t, rec, &out)
			if !equalStrings(out.Systems, tt.want) {
				t.Errorf("systems = %v, want %v", out.Systems, tt.want)
			}
		})
	}
}

func TestSystemAndAutocomplete(t *testing.T) {
	srv := newTestServer(t)

	var sys systemResponse
	decode(t, do(t, srv, http.MethodGet, "/api/systems/a", ""), &sys)
	if sys.Name != "A" || sys.Region != "Line" || sys.Bridge != "E" || !equalStrings(sys.Gates, []string{"B"}) {
		t.Errorf("system = %+v", sys)
	}

	var systems map[string][]string
	decode(t, do(t, srv, http.MethodGet, "/api/systems/autocomplete?q=z", ""), &systems)
	if !equalStrings(systems["systems"], []string{"Z"}) {
		t.Errorf("autocomplete = %v", systems)
	}

	var regions map[string][]string
	decode(t, do(t, srv, http.MethodGet, "/api/regions/autocomplete?q=li", ""), &regions)
	if !equalStrings(regions["regions"], []string{"Line"}) {
		t.Errorf("region autocomplete = %v", regions)
	}
}

func TestRegionLayout(t *testing.T) {
	srv := newTestServer(t)

	if rec := do(t, srv, http.MethodGet, "/api/layout/Nowhere", ""); rec.Code != 404 {
		t.Errorf("unknown region status = %d, want 404", rec.Code)
	}

	rec := do(t, srv, http.MethodGet, "/api/layout/Line", "")
	if rec.Code != 200 {
		t.Fatalf("status = %d (%s)", rec.Code, rec.Body.String())
	}
	var rl layout.RegionLayout
	decode(t, rec, &rl)
	if rl.Region != "Line" || len(rl.Positions) != 5 {
		t.Errorf("layout = %+v", rl)
	}
	// Five collinear systems have no area to outline.
	if !rl.OutlineDegenerate {
		t.Error("expected a degenerate outline for a straight line")
	}

	u := srv.Universe()
	first, err := srv.regionLayout(u, "Line")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := srv.regionLayout(u, "Line")
	if first != again {
		t.Error("second lookup should hit the cache")
	}
	srv.SetUniverse(u, nil)
	fresh, _ := srv.regionLayout(u, "Line")
	if fresh == first {
		t.Error("SetUniverse should drop cached layouts")
	}
}

func TestUniverseLayout(t *testing.T) {
	srv := newTestServer(t)
	var out universeLayoutResponse
	decode(t, do(t, srv, http.MethodGet, "/api/layout", ""), &out)
	if len(out.Positions) != 6 {
		t.Fatalf("positions = %d, want 6", len(out.Positions))
	}
	opts := layout.DefaultOptions()
	for name, p := range out.Positions {
		if p.X < 0 || p.X > opts.Width || p.Y < 0 || p.Y > opts.Height {
			t.Errorf("%s at %+v is outside the render box", name, p)
		}
	}
}

func waitTracked(t *testing.T, srv *Server, id, recomputeID string) trackedRouteResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var out trackedRouteResponse
		decode(t, do(t, srv, http.MethodGet, "/api/tracked/"+id+"/route", ""), &out)
		if out.LastUpdate == recomputeID {
			return out
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("tracked route %s never published %s", id, recomputeID)
	return trackedRouteResponse{}
}

func routeSystems(r trackedRouteResponse) []string {
	if r.Route == nil {
		return nil
	}
	out := make([]string, len(r.Route.Points))
	for i, p := range r.Route.Points {
		out[i] = p.System
	}
	return out
}

func TestTrackedRoute(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/tracked", `{"max_ly":2.5}`)
	if rec.Code != 201 {
		t.Fatalf("create status = %d (%s)", rec.Code, rec.Body.String())
	}
	var created map[string]string
	decode(t, rec, &created)
	id := created["id"]

	rec = do(t, srv, http.MethodPut, "/api/tracked/"+id+"/waypoints", `{"waypoints":["a","E"]}`)
	if rec.Code != 202 {
		t.Fatalf("waypoints status = %d (%s)", rec.Code, rec.Body.String())
	}
	var accepted map[string]string
	decode(t, rec, &accepted)
	out := waitTracked(t, srv, id, accepted["recompute_id"])
	if got := routeSystems(out); !equalStrings(got, []string{"A", "C", "E"}) {
		t.Errorf("route = %v, want [A C E]", got)
	}
	if !equalStrings(out.Waypoints, []string{"A", "E"}) {
		t.Errorf("waypoints = %v", out.Waypoints)
	}

	rec = do(t, srv, http.MethodPut, "/api/tracked/"+id+"/settings", `{"avoid_systems":["C"]}`)
	decode(t, rec, &accepted)
	out = waitTracked(t, srv, id, accepted["recompute_id"])
	if got := routeSystems(out); !equalStrings(got, []string{"A", "B", "D", "E"}) {
		t.Errorf("route avoiding C = %v, want [A B D E]", got)
	}

	rec = do(t, srv, http.MethodPut, "/api/tracked/"+id+"/waypoints", `{"waypoints":["A","Z"]}`)
	decode(t, rec, &accepted)
	out = waitTracked(t, srv, id, accepted["recompute_id"])
	if !out.NoPath {
		t.Errorf("expected no_path for an isolated destination, got %+v", out)
	}

	if rec := do(t, srv, http.MethodPut, "/api/tracked/"+id+"/waypoints", `{"waypoints":["Nowhere"]}`); rec.Code != 404 {
		t.Errorf("unknown waypoint status = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodDelete, "/api/tracked/"+id, ""); rec.Code != 204 {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/tracked/"+id+"/route", ""); rec.Code != 404 {
		t.Errorf("after delete status = %d, want 404", rec.Code)
	}
	if rec := do(t, srv, http.MethodGet, "/api/tracked/not-a-uuid/route", ""); rec.Code != 400 {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestTrackedRoute_FollowsConcurrentUniverseSwap(t *testing.T) {
	srv := newTestServer(t)
	line := graphtest.MustUniverse(graphtest.Line(5))
	cache, err := reach.Build(context.Background(), line, 2, 2)
	if err != nil {
		t.Fatalf("reach.Build: %v", err)
	}

	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := do(t, srv, http.MethodPost, "/api/tracked", "")
			var created struct {
				ID string `json:"id"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&created); err == nil {
				ids <- created.ID
			}
		}()
		if i == n/2 {
			srv.SetUniverse(line, cache)
		}
	}
	wg.Wait()
	close(ids)

	// Z only exists in the first universe; every route must search the second.
	for id := range ids {
		srv.trackedMu.Lock()
		tr := srv.tracked[id]
		srv.trackedMu.Unlock()
		if tr == nil {
			t.Fatalf("tracked route %s missing", id)
		}
		tr.m.SetWaypoints([]string{"A", "Z"})
		if _, err := tr.m.Compute(context.Background()); !errors.Is(err, graph.ErrUnknownSystem) {
			t.Errorf("route %s: err = %v, want ErrUnknownSystem", id, err)
		}
	}
}

func TestMetricsAndCORS(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodGet, "/api/status", "")

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != 200 || !strings.Contains(rec.Body.String(), "atlas_http_requests_total") {
		t.Errorf("metrics status = %d, body lacks request counter", rec.Code)
	}

	if rec := do(t, srv, http.MethodOptions, "/api/route", ""); rec.Code != 204 {
		t.Errorf("OPTIONS status = %d, want 204", rec.Code)
	}
}
