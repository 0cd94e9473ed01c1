package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds application settings (in-memory representation).
// The reachability cache and bridge list are persisted by internal/db.
type Config struct {
	DataDir     string `yaml:"data_dir" json:"data_dir" validate:"required"`
	DBPath      string `yaml:"db_path" json:"db_path" validate:"required"`
	BridgesFile string `yaml:"bridges_file" json:"bridges_file"`
	Port        int    `yaml:"port" json:"port" validate:"min=1,max=65535"`

	// Reachability cache.
	ReachMaxHops     int `yaml:"reach_max_hops" json:"reach_max_hops" validate:"min=1,max=50"`
	BuildConcurrency int `yaml:"build_concurrency" json:"build_concurrency" validate:"min=1,max=256"`

	// Ranged routing.
	DefaultJumpLY float64 `yaml:"default_jump_ly" json:"default_jump_ly" validate:"gt=0,lte=20"`

	Layout LayoutConfig `yaml:"layout" json:"layout"`
}

// LayoutConfig tunes the region and universe layout passes.
type LayoutConfig struct {
	MinSpacing    float64 `yaml:"min_spacing" json:"min_spacing" validate:"gt=0"`
	MaxIterations int     `yaml:"max_iterations" json:"max_iterations" validate:"min=1,max=1000"`
	Grid          float64 `yaml:"grid" json:"grid" validate:"gt=0"`
	FillerStep    float64 `yaml:"filler_step" json:"filler_step" validate:"gt=0"`
	Padding       float64 `yaml:"padding" json:"padding" validate:"gte=0"`
	AlphaRadius   float64 `yaml:"alpha_radius" json:"alpha_radius" validate:"gt=0"`

	// Universe render box.
	Width           float64 `yaml:"width" json:"width" validate:"gt=0"`
	Height          float64 `yaml:"height" json:"height" validate:"gt=0"`
	Margin          float64 `yaml:"margin" json:"margin" validate:"gte=0"`
	UniverseSpacing float64 `yaml:"universe_spacing" json:"universe_spacing" validate:"gt=0"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DataDir:          "data",
		DBPath:           "data/atlas.db",
		Port:             13380,
		ReachMaxHops:     5,
		BuildConcurrency: 8,
		DefaultJumpLY:    6.0,
		Layout: LayoutConfig{
			MinSpacing:      12,
			MaxIterations:   20,
			Grid:            0.5,
			FillerStep:      25,
			Padding:         25,
			AlphaRadius:     200,
			Width:           1050,
			Height:          800,
			Margin:          20,
			UniverseSpacing: 4,
		},
	}
}

var validate = validator.New()

// Load reads a YAML config file over the defaults, applies ATLAS_* environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ATLAS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ATLAS_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("ATLAS_BRIDGES_FILE"); v != "" {
		cfg.BridgesFile = v
	}
	if v := os.Getenv("ATLAS_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Port = i
		}
	}
	if v := os.Getenv("ATLAS_REACH_MAX_HOPS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.ReachMaxHops = i
		}
	}
	if v := os.Getenv("ATLAS_BUILD_CONCURRENCY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.BuildConcurrency = i
		}
	}
	if v := os.Getenv("ATLAS_DEFAULT_JUMP_LY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.DefaultJumpLY = f
		}
	}
	for _, f := range []struct {
		env string
		dst *float64
	}{
		{"ATLAS_LAYOUT_MIN_SPACING", &cfg.Layout.MinSpacing},
		{"ATLAS_LAYOUT_GRID", &cfg.Layout.Grid},
		{"ATLAS_LAYOUT_FILLER_STEP", &cfg.Layout.FillerStep},
		{"ATLAS_LAYOUT_PADDING", &cfg.Layout.Padding},
		{"ATLAS_LAYOUT_ALPHA_RADIUS", &cfg.Layout.AlphaRadius},
		{"ATLAS_LAYOUT_WIDTH", &cfg.Layout.Width},
		{"ATLAS_LAYOUT_HEIGHT", &cfg.Layout.Height},
		{"ATLAS_LAYOUT_MARGIN", &cfg.Layout.Margin},
		{"ATLAS_LAYOUT_UNIVERSE_SPACING", &cfg.Layout.UniverseSpacing},
	} {
		if v := os.Getenv(f.env); v != "" {
			if x, err := strconv.ParseFloat(v, 64); err == nil {
				*f.dst = x
			}
		}
	}
	if v := os.Getenv("ATLAS_LAYOUT_MAX_ITERATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Layout.MaxIterations = i
		}
	}
}
