package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Acreage returns the outer-ring acreage of a polygon feature rounded to two
// decimals. Invalid or non-polygonal features yield 0.
//
// Only the outer ring of the first polygon is measured: holes are not
// subtracted and further multipolygon parts are not added. FullAcreage
// measures the whole geometry.
func Acreage(f *geojson.Feature) float64 {
	acres, _ := AcreageE(f)
	return acres
}

// AcreageE is Acreage with the reason for a zero result. The value is always
// the one Acreage would return.
func AcreageE(f *geojson.Feature) (acres float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			acres, err = 0, fmt.Errorf("%w: %v", ErrInvalidGeometry, r)
		}
	}()

	if f == nil {
		return 0, ErrEmptyGeometry
	}
	if err := Validate(f.Geometry); err != nil {
		return 0, err
	}

	ring, err := OuterRing(f.Geometry)
	if err != nil {
		return 0, err
	}

	sqm, err := RingArea(ConusAlbers, ring)
	if err != nil {
		return 0, err
	}

	return round2(sqm / SquareMetersPerAcre), nil
}

// FullAcreage measures every polygon of the feature, subtracting holes, and
// rounds the total to two decimals.
func FullAcreage(f *geojson.Feature) (float64, error) {
	if f == nil {
		return 0, ErrEmptyGeometry
	}
	if err := Validate(f.Geometry); err != nil {
		return 0, err
	}

	var polys orb.MultiPolygon
	switch v := f.Geometry.(type) {
	case orb.Polygon:
		polys = orb.MultiPolygon{v}
	case orb.MultiPolygon:
		polys = v
	}

	var total float64
	for _, p := range polys {
		for i, r := range p {
			sqm, err := RingArea(ConusAlbers, r)
			if err != nil {
				return 0, err
			}
			if i == 0 {
				total += sqm
			} else {
				total -= sqm
			}
		}
	}

	if total < 0 {
		total = 0
	}
	return round2(total / SquareMetersPerAcre), nil
}

// RingArea projects a closed lon/lat ring and returns its planar area in
// square meters using the shoelace formula.
func RingArea(p *Albers, ring orb.Ring) (float64, error) {
	if len(ring) < 4 {
		return 0, ErrRingTooShort
	}

	xs := make([]float64, len(ring))
	ys := make([]float64, len(ring))
	for i, pt := range ring {
		x, y := p.Forward(pt[0], pt[1])
		if !finite(x) || !finite(y) {
			return 0, fmt.Errorf("%w: projected %v", ErrNonFinite, pt)
		}
		xs[i], ys[i] = x, y
	}

	var sum float64
	for i := 0; i < len(ring)-1; i++ {
		sum += xs[i]*ys[i+1] - xs[i+1]*ys[i]
	}

	return math.Abs(sum) / 2, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
