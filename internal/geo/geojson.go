// Package geo handles planning-area geometry: GeoJSON decoding, validity
// checks and equal-area acreage.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrUnsupportedGeoJSON is returned for GeoJSON documents that are neither a
// Feature, a FeatureCollection nor a bare geometry.
var ErrUnsupportedGeoJSON = errors.New("unsupported geojson type")

// DecodeFeatures reads a Feature, FeatureCollection or bare geometry object
// and returns its features. A bare geometry is wrapped in a Feature with no
// properties.
func DecodeFeatures(data []byte) ([]*geojson.Feature, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature collection: %w", err)
		}
		return fc.Features, nil

	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("decode feature: %w", err)
		}
		return []*geojson.Feature{f}, nil

	case "Point", "MultiPoint", "LineString", "MultiLineString",
		"Polygon", "MultiPolygon", "GeometryCollection":
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("decode geometry: %w", err)
		}
		return []*geojson.Feature{geojson.NewFeature(g.Geometry())}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnsupportedGeoJSON, head.Type)
}

// OuterRing returns the ring acreage is measured on: the first ring of a
// Polygon, or the first ring of the first polygon of a MultiPolygon.
func OuterRing(g orb.Geometry) (orb.Ring, error) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil, ErrEmptyGeometry
		}
		return v[0], nil
	case orb.MultiPolygon:
		if len(v) == 0 || len(v[0]) == 0 {
			return nil, ErrEmptyGeometry
		}
		return v[0][0], nil
	case nil:
		return nil, ErrEmptyGeometry
	}

	return nil, fmt.Errorf("%w: %s", ErrNotPolygonal, g.GeoJSONType())
}

// Bound returns the lon/lat bounding box of the feature's geometry.
func Bound(f *geojson.Feature) orb.Bound {
	if f == nil || f.Geometry == nil {
		return orb.Bound{}
	}
	return f.Geometry.Bound()
}
