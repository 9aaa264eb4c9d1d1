package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
attribution: "USGS"
features: "STATEWIDE_SCENARIOS, TREATMENTS"
zoom: 8
regions:
  - name: sierra-nevada
    label: Sierra Nevada
    center: [-119.5, 38]
    zoom: 7
base_layers:
  - name: road
    source: "https://tiles.example.org/road/{z}/{x}/{y}.png"
  - name: terrain
    source: "https://tiles.example.org/terrain/{z}/{x}/{tms_y}.png"
    attribution: "Terrain by Example"
    zoom: 5
metrics:
  - id: crown_fire
    label: Crown fire probability
    min: 0
    max: 1
view:
  min_zoom: 4
  base_layer: terrain
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "planmap.db", cfg.Database)
	assert.Equal(t, "tiles", cfg.TileDir)
	assert.Equal(t, "stands", cfg.StandLayer)
	assert.Equal(t, 8, cfg.ZoomLimit)

	require.Len(t, cfg.BaseLayers, 2)
	assert.Equal(t, 8, cfg.BaseLayers[0].ZoomLimit)
	assert.Equal(t, "USGS", cfg.BaseLayers[0].Attribution)
	assert.Equal(t, 5, cfg.BaseLayers[1].ZoomLimit)
	assert.Equal(t, "Terrain by Example", cfg.BaseLayers[1].Attribution)
	assert.Equal(t, []string{"road", "terrain"}, cfg.BaseLayerNames())

	assert.Equal(t, 4.0, cfg.View.Zoom)
	assert.Equal(t, 17.0, cfg.View.MaxZoom)
	require.NotNil(t, cfg.View.Opacity)
	assert.Equal(t, 0.75, *cfg.View.Opacity)
	assert.Equal(t, 0.75, cfg.View.DataOpacity())

	r, ok := cfg.Region("sierra-nevada")
	assert.True(t, ok)
	assert.Equal(t, [2]float64{-119.5, 38}, r.Center)
	_, ok = cfg.Region("mars")
	assert.False(t, ok)
}

func TestParseZeroOpacity(t *testing.T) {
	cfg, err := Parse([]byte("view: {opacity: 0}"))
	require.NoError(t, err)
	assert.Zero(t, cfg.View.DataOpacity())

	cfg, err = Parse([]byte("view: {opacity: 0.4}"))
	require.NoError(t, err)
	assert.Equal(t, 0.4, cfg.View.DataOpacity())

	assert.Equal(t, DefaultOpacity, View{}.DataOpacity())
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"duplicate layer": "base_layers: [{name: a, source: x}, {name: a, source: y}]",
		"unnamed layer":   "base_layers: [{source: x}]",
		"empty metric":    "metrics: [{id: m, min: 1, max: 1}]",
		"zoom bounds":     "view: {min_zoom: 10, max_zoom: 5}",
		"opacity range":   "view: {opacity: 1.5}",
		"bad yaml":        "regions: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Regions, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
