package main

import (
	"math"

	"github.com/paulmach/orb/geojson"
	"github.com/planscape/planmap/internal/geo"
)

// measure computes the acreage of every feature. Invalid features count as
// zero acres and carry the reason.
func measure(features []*geojson.Feature) report {
	rep := report{Features: make([]featureAcres, 0, len(features))}

	for i, f := range features {
		fa := featureAcres{Index: i, ID: f.ID}

		acres, err := geo.AcreageE(f)
		if err != nil {
			fa.Error = err.Error()
			rep.Invalid++
		} else {
			fa.Acres = acres
			fa.FullAcres, _ = geo.FullAcreage(f)
		}

		rep.TotalAcres += fa.Acres
		rep.Features = append(rep.Features, fa)
	}
	rep.TotalAcres = math.Round(rep.TotalAcres*100) / 100

	return rep
}
