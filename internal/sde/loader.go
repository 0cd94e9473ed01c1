package sde

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"eve-atlas/internal/graph"
	"eve-atlas/internal/logger"
)

const sdeURL = "https://developers.eveonline.com/static-data/eve-online-static-data-latest-jsonl.zip"

// Data holds the parsed map data.
type Data struct {
	Systems      map[int32]*SolarSystem // systemID -> system
	SystemByName map[string]int32       // lowercase name -> systemID
	Regions      map[int32]*Region      // regionID -> region
	Universe     *graph.Universe
	Gates        int // stargate rows read
	SkippedGates int // rows naming an unknown system
}

// Region represents an EVE region from the SDE.
type Region struct {
	ID   int32
	Name string
}

// SolarSystem represents an EVE solar system from the SDE.
type SolarSystem struct {
	ID              int32
	Name            string
	RegionID        int32
	ConstellationID int32
	Security        float64 // 0.0 (null) to 1.0 (highsec); highsec >= 0.45
	X, Y, Z         float64 // metres
	Map2D           [2]float64
	HasMap2D        bool
}

// Load downloads (if needed), extracts and parses the SDE under dataDir,
// then builds the Universe with the given jump bridges.
func Load(ctx context.Context, dataDir string, bridges []graph.Bridge) (*Data, error) {
	zipPath := filepath.Join(dataDir, "sde.zip")
	extractDir := filepath.Join(dataDir, "sde")

	if _, err := os.Stat(extractDir); os.IsNotExist(err) {
		logger.Info("SDE", "Downloading data...")
		if err := downloadFile(ctx, zipPath, sdeURL); err != nil {
			return nil, fmt.Errorf("download SDE: %w", err)
		}
		logger.Info("SDE", "Extracting data...")
		if err := extractZip(zipPath, extractDir); err != nil {
			return nil, fmt.Errorf("extract SDE: %w", err)
		}
	}
	return LoadDir(extractDir, bridges)
}

// LoadDir parses already extracted SDE files from dir.
func LoadDir(dir string, bridges []graph.Bridge) (*Data, error) {
	data := &Data{
		Systems:      make(map[int32]*SolarSystem),
		SystemByName: make(map[string]int32),
		Regions:      make(map[int32]*Region),
	}

	logger.Info("SDE", "Loading regions...")
	if err := data.loadRegions(dir); err != nil {
		return nil, err
	}
	logger.Info("SDE", "Loading solar systems...")
	if err := data.loadSystems(dir); err != nil {
		return nil, err
	}

	b := graph.NewBuilder()
	ids := make([]int32, 0, len(data.Systems))
	for id := range data.Systems {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s := data.Systems[id]
		region := ""
		if r, ok := data.Regions[s.RegionID]; ok {
			region = r.Name
		}
		b.AddSystem(graph.System{
			ID:              s.ID,
			Name:            s.Name,
			X:               s.X,
			Y:               s.Y,
			Z:               s.Z,
			Security:        s.Security,
			RegionID:        s.RegionID,
			ConstellationID: s.ConstellationID,
			Region:          region,
			Map2D:           s.Map2D,
			HasMap2D:        s.HasMap2D,
		})
	}

	logger.Info("SDE", "Loading stargates...")
	if err := data.loadStargates(dir, b); err != nil {
		return nil, err
	}
	for _, br := range bridges {
		b.AddBridge(br)
	}

	u, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build universe: %w", err)
	}
	data.Universe = u

	logger.Section("SDE Statistics")
	logger.Stats("Regions", len(data.Regions))
	logger.Stats("Systems", len(data.Systems))
	logger.Stats("Stargates", data.Gates)
	logger.Stats("Jump bridges", len(u.Bridges()))
	if data.SkippedGates > 0 {
		logger.Warn("SDE", fmt.Sprintf("Skipped %d stargates to unknown systems", data.SkippedGates))
	}
	return data, nil
}

// RegionNames returns a map of region ID to region name.
func (d *Data) RegionNames() map[int32]string {
	names := make(map[int32]string, len(d.Regions))
	for id, r := range d.Regions {
		names[id] = r.Name
	}
	return names
}

func (d *Data) loadRegions(dir string) error {
	return readJSONL(dir, "mapRegions", func(raw json.RawMessage) error {
		var r struct {
			Key  int32             `json:"_key"`
			Name map[string]string `json:"name"`
		}
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		name := r.Name["en"]
		if name == "" {
			return nil
		}
		d.Regions[r.Key] = &Region{
			ID:   r.Key,
			Name: name,
		}
		return nil
	})
}

type xyz struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (d *Data) loadSystems(dir string) error {
	return readJSONL(dir, "mapSolarSystems", func(raw json.RawMessage) error {
		var s struct {
			Key             int32             `json:"_key"`
			Name            map[string]string `json:"name"`
			RegionID        int32             `json:"regionID"`
			ConstellationID int32             `json:"constellationID"`
			Security        float64           `json:"security"`
			SecurityStatus  float64           `json:"securityStatus"` // alternate SDE field name
			Position        xyz               `json:"position"`
			Position2D      *xyz              `json:"position2D"`
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		name := s.Name["en"]
		if name == "" {
			return nil
		}
		sec := s.Security
		if sec == 0 && s.SecurityStatus != 0 {
			sec = s.SecurityStatus
		}
		sys := &SolarSystem{
			ID: s.Key, Name: name, RegionID: s.RegionID, ConstellationID: s.ConstellationID,
			Security: sec, X: s.Position.X, Y: s.Position.Y, Z: s.Position.Z,
		}
		if s.Position2D != nil {
			sys.Map2D = [2]float64{s.Position2D.X, s.Position2D.Y}
			sys.HasMap2D = true
		}
		d.Systems[s.Key] = sys
		d.SystemByName[strings.ToLower(name)] = s.Key
		return nil
	})
}

func (d *Data) loadStargates(dir string, b *graph.Builder) error {
	return readJSONL(dir, "mapStargates", func(raw json.RawMessage) error {
		var g struct {
			SolarSystemID int32 `json:"solarSystemID"`
			Destination   struct {
				SolarSystemID int32 `json:"solarSystemID"`
			} `json:"destination"`
		}
		if err := json.Unmarshal(raw, &g); err != nil {
			return err
		}
		if g.SolarSystemID == 0 || g.Destination.SolarSystemID == 0 {
			return nil
		}
		from, ok1 := d.Systems[g.SolarSystemID]
		to, ok2 := d.Systems[g.Destination.SolarSystemID]
		if !ok1 || !ok2 {
			d.SkippedGates++
			return nil
		}
		b.AddGate(from.Name, to.Name)
		d.Gates++
		return nil
	})
}

// LoadBridgesFile reads a JSON array of jump bridges. A missing friendly
// flag means friendly.
func LoadBridgesFile(path string) ([]graph.Bridge, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bridges: %w", err)
	}
	var rows []struct {
		From     string `json:"from"`
		To       string `json:"to"`
		Friendly *bool  `json:"friendly"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parse bridges %s: %w", path, err)
	}
	out := make([]graph.Bridge, 0, len(rows))
	for _, r := range rows {
		if r.From == "" || r.To == "" {
			return nil, fmt.Errorf("parse bridges %s: bridge with empty endpoint", path)
		}
		out = append(out, graph.Bridge{From: r.From, To: r.To, Friendly: r.Friendly == nil || *r.Friendly})
	}
	return out, nil
}

// readJSONL finds and reads a .jsonl file by base name from the extracted SDE directory.
func readJSONL(dir, baseName string, fn func(json.RawMessage) error) error {
	// Search for the file recursively
	var filePath string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		name := strings.TrimSuffix(info.Name(), ".jsonl")
		if strings.EqualFold(name, baseName) {
			filePath = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && err != filepath.SkipAll {
		return err
	}
	if filePath == "" {
		logger.Warn("SDE", fmt.Sprintf("File %s.jsonl not found, skipping", baseName))
		return nil
	}

	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	bad := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(json.RawMessage(line)); err != nil {
			bad++
		}
	}
	if bad > 0 {
		logger.Warn("SDE", fmt.Sprintf("%s: skipped %d malformed lines", baseName, bad))
	}
	return scanner.Err()
}

func downloadFile(ctx context.Context, dst, url string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	// Download to a .part file and rename it once complete.
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

func extractZip(src, dst string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	// Resolve destination to an absolute path for zip slip prevention
	dstAbs, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("resolve extract dir: %w", err)
	}

	for _, f := range r.File {
		fpath := filepath.Join(dstAbs, f.Name)

		// Zip slip guard: ensure the resolved path stays within dst
		if rel, err := filepath.Rel(dstAbs, fpath); err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("illegal zip entry path: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			os.MkdirAll(fpath, 0755)
			continue
		}
		os.MkdirAll(filepath.Dir(fpath), 0755)
		rc, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(fpath)
		if err != nil {
			rc.Close()
			return err
		}
		_, err = io.Copy(out, rc)
		rc.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
