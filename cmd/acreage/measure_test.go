package main

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func square(lon, lat, side float64) orb.Ring {
	return orb.Ring{{lon, lat}, {lon + side, lat}, {lon + side, lat + side}, {lon, lat + side}, {lon, lat}}
}

func TestMeasure(t *testing.T) {
	valid := geojson.NewFeature(orb.Polygon{square(-96, 40, 0.01)})
	valid.ID = "a"
	line := geojson.NewFeature(orb.LineString{{0, 0}, {1, 1}})

	rep := measure([]*geojson.Feature{valid, line, valid})

	require.Len(t, rep.Features, 3)
	assert.Equal(t, 1, rep.Invalid)
	assert.InEpsilon(t, 234.30, rep.Features[0].Acres, 0.005)
	assert.Equal(t, "a", rep.Features[0].ID)
	assert.Zero(t, rep.Features[1].Acres)
	assert.NotEmpty(t, rep.Features[1].Error)
	assert.InDelta(t, rep.Features[0].Acres*2, rep.TotalAcres, 0.011)
}

func TestReportYAML(t *testing.T) {
	rep := measure([]*geojson.Feature{geojson.NewFeature(orb.Polygon{square(-120, 38, 0.01)})})

	out, err := yaml.Marshal(rep)
	require.NoError(t, err)
	assert.Contains(t, string(out), "total_acres:")
	assert.Contains(t, string(out), "full_acres:")
	assert.NotContains(t, string(out), "error:")
}
