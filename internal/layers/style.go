// Package layers builds MapLibre style fragments (sources and layers) for
// the planning map. It only builds style JSON; rendering happens in
// the map library.
package layers

import (
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/planscape/planmap/internal/scenario"
)

// Source is a MapLibre style source.
type Source struct {
	Type        string   `json:"type"`
	Tiles       []string `json:"tiles,omitempty"`
	TileSize    int      `json:"tileSize,omitempty"`
	MinZoom     int      `json:"minzoom,omitempty"`
	MaxZoom     int      `json:"maxzoom,omitempty"`
	Attribution string   `json:"attribution,omitempty"`
	Data        any      `json:"data,omitempty"`
	PromoteID   string   `json:"promoteId,omitempty"`
}

// Layer is a MapLibre style layer.
type Layer struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source"`
	SourceLayer string         `json:"source-layer,omitempty"`
	Filter      any            `json:"filter,omitempty"`
	Paint       map[string]any `json:"paint,omitempty"`
	Layout      map[string]any `json:"layout,omitempty"`
}

// Style is a partial style document: the sources and layers a view adds.
type Style struct {
	Version int               `json:"version"`
	Sources map[string]Source `json:"sources"`
	Layers  []Layer           `json:"layers"`
}

// NewStyle returns an empty version 8 style.
func NewStyle() *Style {
	return &Style{Version: 8, Sources: map[string]Source{}, Layers: []Layer{}}
}

// Add registers a source under id together with its layers. A source already
// present is replaced along with the layers that used it.
func (s *Style) Add(id string, src Source, layers ...Layer) {
	if _, ok := s.Sources[id]; ok {
		kept := s.Layers[:0]
		for _, l := range s.Layers {
			if l.Source != id {
				kept = append(kept, l)
			}
		}
		s.Layers = kept
	}
	s.Sources[id] = src
	for _, l := range layers {
		l.Source = id
		s.Layers = append(s.Layers, l)
	}
}

// BaseLayer is a raster base map served from the local tile cache.
type BaseLayer struct {
	Name        string
	TileURL     string // must contain {z}, {x} and {y}
	MaxZoom     int
	Attribution string
}

// BaseMap returns the raster source and layer of a base map.
func BaseMap(b BaseLayer) (string, Source, Layer) {
	id := "basemap-" + b.Name
	src := Source{
		Type:        "raster",
		Tiles:       []string{b.TileURL},
		TileSize:    256,
		MaxZoom:     b.MaxZoom,
		Attribution: b.Attribution,
	}
	return id, src, Layer{ID: id, Type: "raster"}
}

// PlanOutline returns a GeoJSON source with the planning area and a fill +
// outline layer pair.
func PlanOutline(planID string, f *geojson.Feature) (string, Source, []Layer) {
	id := "plan-" + planID
	layers := []Layer{
		{
			ID:    id + "-fill",
			Type:  "fill",
			Paint: map[string]any{"fill-color": "#000000", "fill-opacity": 0},
		},
		{
			ID:     id + "-line",
			Type:   "line",
			Layout: map[string]any{"line-join": "round"},
			Paint: map[string]any{
				"line-color": "#000000",
				"line-width": 2,
			},
		},
	}
	return id, Source{Type: "geojson", Data: f}, layers
}

// StandSource is a vector tile source of treatment stands keyed by "id".
func StandSource(tileURL string) Source {
	return Source{
		Type:      "vector",
		Tiles:     []string{tileURL},
		PromoteID: "id",
	}
}

// SelectedStands highlights the given stand ids of a stand source layer.
func SelectedStands(sourceLayer string, ids []int64) Layer {
	literal := make([]any, len(ids))
	for i, id := range ids {
		literal[i] = id
	}

	return Layer{
		ID:          "stands-selected",
		Type:        "fill",
		SourceLayer: sourceLayer,
		Filter:      []any{"in", []any{"get", "id"}, []any{"literal", literal}},
		Paint: map[string]any{
			"fill-color":   "#FFD600",
			"fill-opacity": 0.6,
		},
	}
}

// MetricFill colors stands by the value of a treatment metric.
func MetricFill(sourceLayer string, m scenario.Metric, ramp Ramp, opacity float64) (Layer, error) {
	expr, err := ramp.Expression([]any{"get", m.ID}, m.Min, m.Max)
	if err != nil {
		return Layer{}, fmt.Errorf("metric %s: %w", m.ID, err)
	}

	return Layer{
		ID:          "stands-metric-" + m.ID,
		Type:        "fill",
		SourceLayer: sourceLayer,
		Paint: map[string]any{
			"fill-color":   expr,
			"fill-opacity": opacity,
		},
	}, nil
}
