package geo

import "math"

// GRS80 ellipsoid, the datum of the NAD83 Albers grid used for acreage.
const (
	grs80A = 6378137.0
	grs80F = 1 / 298.257222101
)

// SquareMetersPerAcre is the international acre in square meters.
const SquareMetersPerAcre = 4046.8564213562374

// Albers is an ellipsoidal Albers Equal Area Conic projection.
// Construct it with NewAlbers; the zero value is not usable.
type Albers struct {
	a, e, e2 float64
	lon0     float64 // radians
	n, c     float64
	rho0     float64
}

// ConusAlbers is the projection used for planning-area acreage:
// standard parallels 29.5°/45.5°, origin latitude 23°, central meridian -96°.
var ConusAlbers = NewAlbers(29.5, 45.5, 23, -96)

// NewAlbers builds a projection from its standard parallels, latitude of
// origin and central meridian, all in degrees.
func NewAlbers(lat1, lat2, lat0, lon0 float64) *Albers {
	e2 := 2*grs80F - grs80F*grs80F
	p := &Albers{
		a:    grs80A,
		e:    math.Sqrt(e2),
		e2:   e2,
		lon0: deg2rad(lon0),
	}

	phi1, phi2 := deg2rad(lat1), deg2rad(lat2)
	m1, m2 := p.m(phi1), p.m(phi2)
	q1, q2 := p.q(phi1), p.q(phi2)

	if math.Abs(phi1-phi2) < 1e-10 {
		p.n = math.Sin(phi1)
	} else {
		p.n = (m1*m1 - m2*m2) / (q2 - q1)
	}
	p.c = m1*m1 + p.n*q1
	p.rho0 = p.rho(p.q(deg2rad(lat0)))

	return p
}

// Forward projects a WGS84 lon/lat pair (degrees) to planar meters.
func (p *Albers) Forward(lon, lat float64) (x, y float64) {
	rho := p.rho(p.q(deg2rad(lat)))
	theta := p.n * normalizeLon(deg2rad(lon)-p.lon0)

	x = rho * math.Sin(theta)
	y = p.rho0 - rho*math.Cos(theta)

	return x, y
}

func (p *Albers) m(phi float64) float64 {
	s := math.Sin(phi)
	return math.Cos(phi) / math.Sqrt(1-p.e2*s*s)
}

func (p *Albers) q(phi float64) float64 {
	s := math.Sin(phi)
	es := p.e * s
	return (1 - p.e2) * (s/(1-es*es) - (1/(2*p.e))*math.Log((1-es)/(1+es)))
}

func (p *Albers) rho(q float64) float64 {
	// C - nq can dip just below zero at the poles.
	v := p.c - p.n*q
	if v < 0 {
		v = 0
	}
	return p.a * math.Sqrt(v) / p.n
}

func deg2rad(d float64) float64 {
	return d * math.Pi / 180
}

// normalizeLon wraps an angle in radians into [-π, π].
func normalizeLon(l float64) float64 {
	for l > math.Pi {
		l -= 2 * math.Pi
	}
	for l < -math.Pi {
		l += 2 * math.Pi
	}
	return l
}
