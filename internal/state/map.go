package state

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrUnknownBaseLayer is returned when selecting a base layer that is not
// configured.
var ErrUnknownBaseLayer = errors.New("unknown base layer")

// MapView is the map view configuration shared by the map controls.
type MapView struct {
	Zoom      float64    `json:"zoom"`
	Opacity   float64    `json:"opacity"`
	BaseLayer string     `json:"base_layer"`
	Center    [2]float64 `json:"center"` // [Lon, Lat]
}

// MapLimits bounds the values a MapState accepts.
type MapLimits struct {
	MinZoom    float64
	MaxZoom    float64
	BaseLayers []string
	Default    MapView
}

// MapState holds the current map view.
type MapState struct {
	view   *Subject[MapView]
	limits MapLimits
}

// NewMapState returns map state initialized to the normalized default view.
func NewMapState(limits MapLimits) *MapState {
	if limits.MaxZoom < limits.MinZoom {
		limits.MaxZoom = limits.MinZoom
	}

	m := &MapState{limits: limits}
	def := m.normalize(limits.Default)
	if !slices.Contains(limits.BaseLayers, def.BaseLayer) && len(limits.BaseLayers) > 0 {
		def.BaseLayer = limits.BaseLayers[0]
	}
	m.view = NewSubject(def)

	return m
}

// View emits the current map view.
func (m *MapState) View() Observable[MapView] { return m.view }

// Limits returns the configured bounds.
func (m *MapState) Limits() MapLimits { return m.limits }

// SetZoom sets the zoom clamped to the configured range.
func (m *MapState) SetZoom(z float64) MapView {
	return m.view.Update(func(v MapView) MapView {
		v.Zoom = z
		return m.normalize(v)
	})
}

// SetOpacity sets the data layer opacity clamped to [0, 1].
func (m *MapState) SetOpacity(o float64) MapView {
	return m.view.Update(func(v MapView) MapView {
		v.Opacity = o
		return m.normalize(v)
	})
}

// SetBaseLayer switches to a configured base layer.
func (m *MapState) SetBaseLayer(name string) (MapView, error) {
	if !slices.Contains(m.limits.BaseLayers, name) {
		return m.view.Value(), fmt.Errorf("%w %q", ErrUnknownBaseLayer, name)
	}
	return m.view.Update(func(v MapView) MapView {
		v.BaseLayer = name
		return v
	}), nil
}

// SetCenter moves the map center, clamping latitude and wrapping longitude.
func (m *MapState) SetCenter(lon, lat float64) MapView {
	return m.view.Update(func(v MapView) MapView {
		v.Center = [2]float64{lon, lat}
		return m.normalize(v)
	})
}

// Apply replaces the whole view, normalizing every field. An unknown base
// layer keeps the current one.
func (m *MapState) Apply(next MapView) MapView {
	return m.view.Update(func(cur MapView) MapView {
		if !slices.Contains(m.limits.BaseLayers, next.BaseLayer) {
			next.BaseLayer = cur.BaseLayer
		}
		return m.normalize(next)
	})
}

// Reset restores the default view.
func (m *MapState) Reset() {
	m.view.Reset()
}

func (m *MapState) normalize(v MapView) MapView {
	v.Zoom = clamp(v.Zoom, m.limits.MinZoom, m.limits.MaxZoom)
	v.Opacity = clamp(v.Opacity, 0, 1)

	lon, lat := v.Center[0], v.Center[1]
	if math.IsNaN(lon) || math.IsInf(lon, 0) {
		lon = 0
	}
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	v.Center = [2]float64{lon - 180, clamp(lat, -85.05112878, 85.05112878)}

	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
