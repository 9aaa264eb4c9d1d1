package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	ErrEmptyGeometry   = errors.New("empty geometry")
	ErrNotPolygonal    = errors.New("geometry is not a polygon or multipolygon")
	ErrRingTooShort    = errors.New("ring has fewer than 4 positions")
	ErrRingNotClosed   = errors.New("ring is not closed")
	ErrNonFinite       = errors.New("coordinate is not finite")
	ErrSelfIntersects  = errors.New("ring self-intersects")
	ErrInvalidGeometry = errors.New("invalid geometry")
)

// Valid reports whether g is a polygon or multipolygon that passes Validate.
func Valid(g orb.Geometry) bool {
	return Validate(g) == nil
}

// Validate checks that g is a Polygon or MultiPolygon whose every ring has at
// least four finite positions, is closed, and does not cross itself.
func Validate(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Polygon:
		return validatePolygon(v)
	case orb.MultiPolygon:
		if len(v) == 0 {
			return ErrEmptyGeometry
		}
		for i, p := range v {
			if err := validatePolygon(p); err != nil {
				return fmt.Errorf("polygon %d: %w", i, err)
			}
		}
		return nil
	case nil:
		return ErrEmptyGeometry
	}

	return fmt.Errorf("%w: %s", ErrNotPolygonal, g.GeoJSONType())
}

func validatePolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return ErrEmptyGeometry
	}
	for i, r := range p {
		if err := validateRing(r); err != nil {
			return fmt.Errorf("ring %d: %w", i, err)
		}
	}
	return nil
}

func validateRing(r orb.Ring) error {
	if len(r) < 4 {
		return ErrRingTooShort
	}
	for _, pt := range r {
		if !finite(pt[0]) || !finite(pt[1]) {
			return ErrNonFinite
		}
	}
	if !r.Closed() {
		return ErrRingNotClosed
	}
	if selfIntersects(r) {
		return ErrSelfIntersects
	}
	return nil
}

// selfIntersects tests every pair of non-adjacent edges of a closed ring.
func selfIntersects(r orb.Ring) bool {
	edges := len(r) - 1
	for i := 0; i < edges; i++ {
		a1, a2 := r[i], r[i+1]
		for j := i + 1; j < edges; j++ {
			// neighbours share a vertex; the first and last edge close the ring
			if j == i+1 || (i == 0 && j == edges-1) {
				continue
			}
			if segmentsIntersect(a1, a2, r[j], r[j+1]) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
