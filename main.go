package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"eve-atlas/internal/api"
	"eve-atlas/internal/config"
	"eve-atlas/internal/db"
	"eve-atlas/internal/graph"
	"eve-atlas/internal/layout"
	"eve-atlas/internal/logger"
	"eve-atlas/internal/metrics"
	"eve-atlas/internal/pathfind"
	"eve-atlas/internal/reach"
	"eve-atlas/internal/route"
	"eve-atlas/internal/sde"
)

var version = "dev"

var (
	configPath string
	cfg        *config.Config

	rootCmd = &cobra.Command{
		Use:   "eve-atlas",
		Short: "Navigation and map layout engine for the EVE Online universe",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing .env file is fine.
			_ = godotenv.Load()
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = c
			return nil
		},
		SilenceUsage: true,
	}

	servePort int
	serveCmd  = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the reachability cache",
	}
	cacheBuildCmd = &cobra.Command{
		Use:   "build",
		Short: "Rebuild the reachability cache and store it in the database",
		RunE:  runCacheBuild,
	}
	cacheVerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check the stored cache against the current static data",
		RunE:  runCacheVerify,
	}
	cacheExportCmd = &cobra.Command{
		Use:   "export [file]",
		Short: "Write the stored cache as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runCacheExport,
	}

	useBridges bool
	routeCmd   = &cobra.Command{
		Use:   "route [from] [to]",
		Short: "Fewest-jump route over stargates",
		Args:  cobra.ExactArgs(2),
		RunE:  runRoute,
	}

	jumpMaxLY     float64
	avoidSystems  []string
	avoidRegions  []string
	jumpWaypoints []string
	jumpCmd       = &cobra.Command{
		Use:   "jump [from] [to]",
		Short: "Fewest-jump route where every jump is within range",
		Args:  cobra.ExactArgs(2),
		RunE:  runJump,
	}

	layoutOut string
	layoutCmd = &cobra.Command{
		Use:   "layout [region]",
		Short: "Compute the schematic layout of one region, or of all regions",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLayout,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "atlas.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (overrides config)")

	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheBuildCmd)
	cacheCmd.AddCommand(cacheVerifyCmd)
	cacheCmd.AddCommand(cacheExportCmd)

	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().BoolVar(&useBridges, "bridges", false, "Use friendly jump bridges")

	rootCmd.AddCommand(jumpCmd)
	jumpCmd.Flags().Float64Var(&jumpMaxLY, "max-ly", 0, "Maximum jump range in light-years (default from config)")
	jumpCmd.Flags().StringSliceVar(&avoidSystems, "avoid-system", nil, "System to avoid (repeatable)")
	jumpCmd.Flags().StringSliceVar(&avoidRegions, "avoid-region", nil, "Region to avoid (repeatable)")
	jumpCmd.Flags().StringSliceVar(&jumpWaypoints, "via", nil, "Intermediate waypoint (repeatable, in order)")

	rootCmd.AddCommand(layoutCmd)
	layoutCmd.Flags().StringVarP(&layoutOut, "out", "o", "", "Write JSON to this file instead of stdout")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func openDB() (*db.DB, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return database, nil
}

// loadBridges prefers the configured bridges file and stores what it read;
// without a file the stored list is used.
func loadBridges(database *db.DB) ([]graph.Bridge, error) {
	if cfg.BridgesFile == "" {
		return database.LoadBridges()
	}
	bridges, err := sde.LoadBridgesFile(cfg.BridgesFile)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("Bridges", fmt.Sprintf("%s not found, using stored bridges", cfg.BridgesFile))
		return database.LoadBridges()
	}
	if err != nil {
		return nil, err
	}
	if err := database.SaveBridges(bridges); err != nil {
		return nil, err
	}
	return bridges, nil
}

func loadUniverse(ctx context.Context, database *db.DB) (*graph.Universe, error) {
	bridges, err := loadBridges(database)
	if err != nil {
		return nil, err
	}
	data, err := sde.Load(ctx, cfg.DataDir, bridges)
	if err != nil {
		return nil, err
	}
	return data.Universe, nil
}

// loadOrBuildCache returns the stored cache when it matches u and the
// configured hop bound, and rebuilds and stores it otherwise.
func loadOrBuildCache(ctx context.Context, database *db.DB, u *graph.Universe) (*reach.Cache, error) {
	fp := reach.Fingerprint(u)
	c, info, err := database.LoadReachability(u)
	switch {
	case err == nil && info.Fingerprint == fp && info.MaxHops == cfg.ReachMaxHops:
		logger.Success("Cache", fmt.Sprintf("Loaded %d entries (built %s)", info.Entries, info.BuiltAt))
		metrics.ReachEntries.Set(float64(c.Len()))
		return c, nil
	case err == nil:
		logger.Info("Cache", "Stored cache is stale, rebuilding...")
	case errors.Is(err, db.ErrNoCache):
		logger.Info("Cache", "No stored cache, building...")
	default:
		logger.Warn("Cache", fmt.Sprintf("Stored cache unreadable (%v), rebuilding...", err))
	}
	return buildCache(ctx, database, u)
}

func buildCache(ctx context.Context, database *db.DB, u *graph.Universe) (*reach.Cache, error) {
	start := time.Now()
	c, err := reach.Build(ctx, u, cfg.ReachMaxHops, cfg.BuildConcurrency)
	if err != nil {
		return nil, fmt.Errorf("build reachability: %w", err)
	}
	if err := database.SaveReachability(c, reach.Fingerprint(u)); err != nil {
		return nil, err
	}
	logger.Success("Cache", fmt.Sprintf("Built %d entries (%d hops) in %s", c.Len(), c.MaxHops(), time.Since(start).Round(time.Millisecond)))
	return c, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	port := cfg.Port
	if servePort != 0 {
		port = servePort
	}
	return serve(cmd.Context(), fmt.Sprintf("127.0.0.1:%d", port))
}

// serve runs the API on addr until parent is cancelled. A failure to load the
// static data or the cache stops the server and is returned.
func serve(parent context.Context, addr string) error {
	logger.Banner(version)
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	database, err := openDB()
	if err != nil {
		logger.Error("DB", err.Error())
		return err
	}
	defer database.Close()

	srv := api.NewServer(cfg, layout.NewEngine(layout.OptionsFromConfig(cfg.Layout)))
	defer srv.Close()

	// Load static data and the cache in the background; the API answers 503
	// until they are ready.
	loaded := make(chan struct{})
	go func() {
		defer close(loaded)
		u, err := loadUniverse(ctx, database)
		if err != nil {
			logger.Error("SDE", fmt.Sprintf("Load failed: %v", err))
			cancel(fmt.Errorf("load static data: %w", err))
			return
		}
		cache, err := loadOrBuildCache(ctx, database, u)
		if err != nil {
			logger.Error("Cache", err.Error())
			cancel(fmt.Errorf("reachability cache: %w", err))
			return
		}
		srv.SetUniverse(u, cache)
		logger.Success("SDE", "Navigation ready")

		if cfg.BridgesFile != "" {
			watchBridges(ctx, srv, database, cache)
		}
	}()

	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Server(addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server", fmt.Sprintf("Failed: %v", err))
		cancel(err)
	}
	<-loaded
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

// watchBridges swaps in a new universe whenever the bridges file changes.
// Bridges do not affect stargate reachability, so the cache is kept.
func watchBridges(ctx context.Context, srv *api.Server, database *db.DB, cache *reach.Cache) {
	bw, err := sde.NewBridgeWatcher(cfg.BridgesFile, 500*time.Millisecond, func(bridges []graph.Bridge) {
		nu, err := srv.Universe().WithBridges(bridges)
		if err != nil {
			logger.Warn("Bridges", fmt.Sprintf("Rejected: %v", err))
			return
		}
		if err := database.SaveBridges(bridges); err != nil {
			logger.Warn("Bridges", err.Error())
		}
		srv.SetUniverse(nu, cache)
	})
	if err != nil {
		logger.Warn("Bridges", fmt.Sprintf("Not watching %s: %v", cfg.BridgesFile, err))
		return
	}
	bw.Run(ctx)
}

func runCacheBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	u, err := loadUniverse(ctx, database)
	if err != nil {
		return err
	}
	_, err = buildCache(ctx, database, u)
	return err
}

func runCacheVerify(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	u, err := loadUniverse(cmd.Context(), database)
	if err != nil {
		return err
	}
	c, info, err := database.LoadReachability(u)
	if err != nil {
		return err
	}
	logger.Section("Reachability cache")
	logger.Stats("Entries", info.Entries)
	logger.Stats("Max hops", info.MaxHops)
	logger.Stats("Built at", info.BuiltAt)
	if fp := reach.Fingerprint(u); fp != info.Fingerprint {
		return fmt.Errorf("cache was built from a different stargate graph (stored %.12s, current %.12s)", info.Fingerprint, fp)
	}
	if err := c.Verify(u); err != nil {
		return err
	}
	logger.Success("Cache", "Verified")
	return nil
}

func runCacheExport(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	c, _, err := database.LoadReachability(nil)
	if err != nil {
		return err
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	if err := c.Encode(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Success("Cache", fmt.Sprintf("Wrote %d entries to %s", c.Len(), args[0]))
	return nil
}

func runRoute(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	u, err := loadUniverse(cmd.Context(), database)
	if err != nil {
		return err
	}
	from, err := u.Lookup(args[0])
	if err != nil {
		return err
	}
	to, err := u.Lookup(args[1])
	if err != nil {
		return err
	}
	path, err := pathfind.New(u).Navigate(cmd.Context(), from, to, useBridges)
	if errors.Is(err, pathfind.ErrNoPath) {
		fmt.Printf("No route from %s to %s\n", from, to)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d jumps: %s\n", len(path)-1, strings.Join(path, " -> "))
	return nil
}

func runJump(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	u, err := loadUniverse(cmd.Context(), database)
	if err != nil {
		return err
	}

	waypoints := append(append([]string{args[0]}, jumpWaypoints...), args[1])
	for i, name := range waypoints {
		if waypoints[i], err = u.Lookup(name); err != nil {
			return err
		}
	}
	avoid := pathfind.Avoid{Regions: avoidRegions}
	for _, name := range avoidSystems {
		canon, err := u.Lookup(name)
		if err != nil {
			return err
		}
		avoid.Systems = append(avoid.Systems, canon)
	}
	maxLY := jumpMaxLY
	if maxLY == 0 {
		maxLY = cfg.DefaultJumpLY
	}

	m := route.NewManager(pathfind.New(u), maxLY)
	defer m.Close()
	m.SetWaypoints(waypoints)
	id := m.SetAvoid(avoid)
	var upd route.Update
	for upd = range m.Updates() {
		if upd.ID == id {
			break
		}
	}
	r, err := upd.Route, upd.Err
	if errors.Is(err, pathfind.ErrNoPath) {
		fmt.Printf("No route within %.2f LY: %v\n", maxLY, err)
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("%d jumps, %.2f LY (max %.2f LY per jump)\n", r.Jumps(), r.TotalLY, r.MaxLY)
	for i, p := range r.Points {
		fmt.Printf("%3d  %-20s %6.2f LY\n", i, p.System, p.LY)
	}
	for _, alt := range r.Alternates {
		if len(alt.Options) > 0 {
			fmt.Printf("  alternates for %s: %s\n", alt.System, strings.Join(alt.Options, ", "))
		}
	}
	return nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	u, err := loadUniverse(cmd.Context(), database)
	if err != nil {
		return err
	}
	engine := layout.NewEngine(layout.OptionsFromConfig(cfg.Layout))

	var out interface{}
	if len(args) == 1 {
		rl, err := engine.Region(u, args[0])
		if err != nil {
			return err
		}
		out = rl
	} else {
		all, err := engine.LayoutAll(cmd.Context(), u)
		if err != nil {
			return err
		}
		logger.Success("Layout", fmt.Sprintf("%d of %d regions laid out", len(all), len(u.Regions())))
		out = all
	}

	w := os.Stdout
	if layoutOut != "" {
		f, err := os.Create(layoutOut)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
