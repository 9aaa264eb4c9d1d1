// Package config handles configuration loading and shared data structures.
package config

import (
	"fmt"
	"os"

	"github.com/planscape/planmap/internal/scenario"

	"gopkg.in/yaml.v3"
)

// Config represents the root configuration file structure.
type Config struct {
	Attribution string            `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	Features    string            `yaml:"features,omitempty" json:"-"` // comma-separated feature flags
	Database    string            `yaml:"database,omitempty" json:"-"`
	TileDir     string            `yaml:"tile_dir,omitempty" json:"-"`
	StandTiles  string            `yaml:"stand_tiles,omitempty" json:"stand_tiles,omitempty"`
	StandLayer  string            `yaml:"stand_layer,omitempty" json:"stand_layer,omitempty"`
	Regions     []Region          `yaml:"regions" json:"regions"`
	BaseLayers  []BaseLayer       `yaml:"base_layers" json:"base_layers"`
	Metrics     []scenario.Metric `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Goals       []scenario.Goal   `yaml:"goals,omitempty" json:"goals,omitempty"`
	View        View              `yaml:"view,omitempty" json:"view"`
	ZoomLimit   int               `yaml:"zoom,omitempty" json:"-"`
}

// Region is a planning region users can pick.
type Region struct {
	Name   string     `yaml:"name" json:"name"`
	Label  string     `yaml:"label,omitempty" json:"label,omitempty"`
	Center [2]float64 `yaml:"center" json:"center"` // [Lon, Lat]
	Zoom   float64    `yaml:"zoom,omitempty" json:"zoom,omitempty"`
}

// BaseLayer is a raster base map fetched by the loader into the tile cache.
type BaseLayer struct {
	Index       *int   `yaml:"index,omitempty" json:"index,omitempty"`
	Name        string `yaml:"name" json:"name"`
	Source      string `yaml:"source" json:"-"` // URL template with {z} {x} {y} or {tms_y}
	Attribution string `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	ZoomLimit   int    `yaml:"zoom,omitempty" json:"zoom"`
}

// View holds the default map view and zoom bounds.
type View struct {
	MinZoom   float64  `yaml:"min_zoom,omitempty" json:"min_zoom"`
	MaxZoom   float64  `yaml:"max_zoom,omitempty" json:"max_zoom"`
	Zoom      float64  `yaml:"zoom,omitempty" json:"zoom"`
	Opacity   *float64 `yaml:"opacity,omitempty" json:"opacity"`
	BaseLayer string   `yaml:"base_layer,omitempty" json:"base_layer"`
}

// DefaultOpacity is the data layer opacity used when none is configured.
const DefaultOpacity = 0.75

// DataOpacity returns the configured data layer opacity. An explicit 0 is
// kept; only a missing value falls back to DefaultOpacity.
func (v View) DataOpacity() float64 {
	if v.Opacity == nil {
		return DefaultOpacity
	}
	return *v.Opacity
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes YAML configuration and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) normalize() {
	if c.Database == "" {
		c.Database = "planmap.db"
	}
	if c.TileDir == "" {
		c.TileDir = "tiles"
	}
	if c.StandLayer == "" {
		c.StandLayer = "stands"
	}
	if c.ZoomLimit <= 0 {
		c.ZoomLimit = 6
	}
	if c.View.MaxZoom <= 0 {
		c.View.MaxZoom = 17
	}
	if c.View.Zoom <= 0 {
		c.View.Zoom = c.View.MinZoom
	}
	if c.View.Opacity == nil {
		opacity := DefaultOpacity
		c.View.Opacity = &opacity
	}

	for i := range c.BaseLayers {
		bl := &c.BaseLayers[i]
		if bl.ZoomLimit <= 0 {
			bl.ZoomLimit = c.ZoomLimit
		}
		if bl.Attribution == "" {
			bl.Attribution = c.Attribution
		}
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool, len(c.BaseLayers))
	for _, bl := range c.BaseLayers {
		if bl.Name == "" {
			return fmt.Errorf("base layer without name")
		}
		if seen[bl.Name] {
			return fmt.Errorf("duplicate base layer %q", bl.Name)
		}
		seen[bl.Name] = true
	}

	for _, m := range c.Metrics {
		if m.ID == "" {
			return fmt.Errorf("metric without id")
		}
		if !(m.Max > m.Min) {
			return fmt.Errorf("metric %q: max must be greater than min", m.ID)
		}
	}

	if c.View.MinZoom > c.View.MaxZoom {
		return fmt.Errorf("view: min_zoom %v exceeds max_zoom %v", c.View.MinZoom, c.View.MaxZoom)
	}
	if o := c.View.DataOpacity(); o < 0 || o > 1 {
		return fmt.Errorf("view: opacity %v outside [0, 1]", o)
	}

	return nil
}

// BaseLayerNames returns the configured base layer names in config order.
func (c *Config) BaseLayerNames() []string {
	names := make([]string, 0, len(c.BaseLayers))
	for _, bl := range c.BaseLayers {
		names = append(names, bl.Name)
	}
	return names
}

// Region returns the region called name.
func (c *Config) Region(name string) (Region, bool) {
	for _, r := range c.Regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}
