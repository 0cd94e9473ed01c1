// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_searches_total",
		Help: "Route searches by kind (navigate, ranged) and outcome (found, no_path, error)",
	}, []string{"kind", "outcome"})
	SearchExpansions = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_search_expansions",
		Help:    "Nodes expanded per search",
		Buckets: prometheus.ExponentialBuckets(1, 4, 9),
	}, []string{"kind"})
	SearchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_search_duration_ms",
		Help:    "Search duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000},
	}, []string{"kind"})
	ReachBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "atlas_reach_build_seconds",
		Help:    "Reachability cache build duration",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
	ReachEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_reach_entries",
		Help: "Systems in the loaded reachability cache",
	})
	LayoutRegionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_layout_regions_total",
		Help: "Region layouts computed by outcome (ok, degenerate)",
	}, []string{"outcome"})
	LayoutDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "atlas_layout_duration_ms",
		Help:    "Per-region layout duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	RelaxIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "atlas_relax_iterations",
		Help:    "Relaxation passes until convergence or cap",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})
	RouteRecomputesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_route_recomputes_total",
		Help: "Tracked route recomputations by outcome (ok, no_path, error, superseded)",
	}, []string{"outcome"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_http_requests_total",
		Help: "API requests by route pattern and status code",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(SearchesTotal)
	prometheus.MustRegister(SearchExpansions)
	prometheus.MustRegister(SearchDurationMs)
	prometheus.MustRegister(ReachBuildSeconds)
	prometheus.MustRegister(ReachEntries)
	prometheus.MustRegister(LayoutRegionsTotal)
	prometheus.MustRegister(LayoutDurationMs)
	prometheus.MustRegister(RelaxIterations)
	prometheus.MustRegister(RouteRecomputesTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
