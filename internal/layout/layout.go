// Package layout turns 3D system coordinates into decluttered 2D diagrams:
// per-region Voronoi cells with an alpha-shape outline, and a universe-wide
// projection into a fixed render box.
package layout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eve-atlas/internal/config"
	"eve-atlas/internal/graph"
	"eve-atlas/internal/logger"
	"eve-atlas/internal/metrics"
)

// Options tunes the layout passes. Distances are in render units.
type Options struct {
	MinSpacing    float64
	MaxIterations int
	Grid          float64
	FillerStep    float64
	Padding       float64
	AlphaRadius   float64

	Width, Height, Margin float64
	UniverseSpacing       float64
}

// OptionsFromConfig copies the layout section of the application config.
func OptionsFromConfig(c config.LayoutConfig) Options {
	return Options{
		MinSpacing:      c.MinSpacing,
		MaxIterations:   c.MaxIterations,
		Grid:            c.Grid,
		FillerStep:      c.FillerStep,
		Padding:         c.Padding,
		AlphaRadius:     c.AlphaRadius,
		Width:           c.Width,
		Height:          c.Height,
		Margin:          c.Margin,
		UniverseSpacing: c.UniverseSpacing,
	}
}

// DefaultOptions returns the options of config.Default.
func DefaultOptions() Options { return OptionsFromConfig(config.Default().Layout) }

// RegionLayout is the planar diagram of one region.
type RegionLayout struct {
	Region    string             `json:"region"`
	Positions map[string]Point   `json:"positions"`
	Cells     map[string]Polygon `json:"cells"`
	Outline   Polygon            `json:"outline"`

	Iterations int  `json:"iterations"`
	Converged  bool `json:"converged"`
	// Degenerate lists systems whose cell could not be formed.
	Degenerate        []string `json:"degenerate,omitempty"`
	OutlineDegenerate bool     `json:"outline_degenerate,omitempty"`
}

// LayoutRegion relaxes the seed positions, surrounds them with a filler
// lattice, tessellates, and outlines the result. Cell and outline failures
// are recorded on the layout rather than returned; an error means there was
// nothing to lay out or the geometry could not be processed at all.
func LayoutRegion(region string, seeds []Named, opts Options) (rl *RegionLayout, err error) {
	defer func() {
		if r := recover(); r != nil {
			rl, err = nil, fmt.Errorf("layout %s: %w: %v", region, ErrDegenerateLayout, r)
		}
	}()
	return layoutRegion(region, seeds, opts)
}

func layoutRegion(region string, seeds []Named, opts Options) (*RegionLayout, error) {
	if len(seeds) == 0 {
		return nil, fmt.Errorf("layout %s: %w: no systems", region, ErrDegenerateLayout)
	}
	start := time.Now()

	relaxed := Relax(seeds, opts.MinSpacing, opts.MaxIterations)
	sites := make([]Point, len(relaxed.Points))
	for i, p := range relaxed.Points {
		sites[i] = p.P
	}

	lattice := boundsOf(sites).pad(opts.Padding)
	exclusion := math.Max(opts.MinSpacing, opts.FillerStep/2)
	filler := fillerLattice(lattice, opts.FillerStep, exclusion, sites)
	cells, degenerate := voronoiCells(relaxed.Points, filler, lattice.pad(opts.FillerStep), opts.Grid)

	out := &RegionLayout{
		Region:     region,
		Positions:  relaxed.Positions(),
		Cells:      cells,
		Iterations: relaxed.Iterations,
		Converged:  relaxed.Converged,
		Degenerate: degenerate,
	}

	outline, err := Outline(sites, opts.AlphaRadius)
	switch {
	case errors.Is(err, ErrDegenerateLayout):
		out.OutlineDegenerate = true
		out.Outline = Polygon{}
	case err != nil:
		return nil, err
	default:
		out.Outline = outline
	}

	outcome := "ok"
	if out.OutlineDegenerate || len(out.Degenerate) > 0 {
		outcome = "degenerate"
	}
	metrics.LayoutRegionsTotal.WithLabelValues(outcome).Inc()
	metrics.LayoutDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return out, nil
}

// fit scales points into a width x height box inside margin, preserving
// aspect ratio and centring the result. The y axis is inverted so that
// larger input y ends up nearer the top of the box.
func fit(points []Named, width, height, margin float64) []Named {
	raw := make([]Point, len(points))
	for i, p := range points {
		raw[i] = p.P
	}
	b := boundsOf(raw)
	w, h := b.max.X-b.min.X, b.max.Y-b.min.Y
	availW, availH := width-2*margin, height-2*margin

	scale := math.Inf(1)
	if w > 0 {
		scale = availW / w
	}
	if h > 0 {
		scale = math.Min(scale, availH/h)
	}
	if math.IsInf(scale, 1) {
		scale = 0
	}
	offX := margin + (availW-w*scale)/2
	offY := margin + (availH-h*scale)/2

	out := make([]Named, len(points))
	for i, p := range points {
		out[i] = Named{Name: p.Name, P: Point{
			X: offX + (p.P.X-b.min.X)*scale,
			Y: offY + (b.max.Y-p.P.Y)*scale,
		}}
	}
	return out
}

// Project maps every system's (X, Z) world position into the render box of
// opts (Z becomes the inverted vertical axis) and relaxes the result at
// universe scale.
func Project(systems []*graph.System, opts Options) RelaxResult {
	pts := make([]Named, len(systems))
	for i, s := range systems {
		pts[i] = Named{Name: s.Name, P: Point{X: s.X, Y: s.Z}}
	}
	return Relax(fit(pts, opts.Width, opts.Height, opts.Margin), opts.UniverseSpacing, opts.MaxIterations)
}

// Engine lays out the regions of a Universe.
type Engine struct {
	opts        Options
	concurrency int
}

// NewEngine creates an Engine. Region passes run on up to GOMAXPROCS goroutines.
func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts, concurrency: runtime.GOMAXPROCS(0)}
}

// Options returns the engine's options.
func (e *Engine) Options() Options { return e.opts }

// Seeds returns the starting positions of a region's systems, fitted to the
// render box. A supplied schematic position is preferred over (X, Z).
func (e *Engine) Seeds(u *graph.Universe, region string) []Named {
	names := u.RegionSystems(region)
	pts := make([]Named, 0, len(names))
	for _, name := range names {
		s, err := u.System(name)
		if err != nil {
			continue
		}
		p := Point{X: s.X, Y: s.Z}
		if s.HasMap2D {
			p = Point{X: s.Map2D[0], Y: s.Map2D[1]}
		}
		pts = append(pts, Named{Name: name, P: p})
	}
	return fit(pts, e.opts.Width, e.opts.Height, e.opts.Margin)
}

// Region lays out a single region.
func (e *Engine) Region(u *graph.Universe, region string) (*RegionLayout, error) {
	return LayoutRegion(region, e.Seeds(u, region), e.opts)
}

// Universe projects every system of u into the render box.
func (e *Engine) Universe(u *graph.Universe) RelaxResult {
	systems := make([]*graph.System, 0, u.Len())
	for _, name := range u.Names() {
		if s, err := u.System(name); err == nil {
			systems = append(systems, s)
		}
	}
	return Project(systems, e.opts)
}

// LayoutAll lays out every region of u in parallel. A region that fails is
// logged and left out; only cancellation aborts the pass.
func (e *Engine) LayoutAll(ctx context.Context, u *graph.Universe) (map[string]*RegionLayout, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*RegionLayout)
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, region := range u.Regions() {
		region := region
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rl, err := e.Region(u, region)
			if err != nil {
				metrics.LayoutRegionsTotal.WithLabelValues("error").Inc()
				logger.Warn("Layout", fmt.Sprintf("%s skipped: %v", region, err))
				return nil
			}
			if rl.OutlineDegenerate {
				logger.Warn("Layout", fmt.Sprintf("%s has no outline", region))
			}
			mu.Lock()
			out[region] = rl
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
