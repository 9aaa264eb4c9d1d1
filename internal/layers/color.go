package layers

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// Ramp is a sequence of hex colors spread evenly over a value range.
type Ramp []string

// Built-in ramps for treatment metrics.
var (
	RampFireRisk = Ramp{"#FFF3C4", "#FDB863", "#E66101", "#8C2D04"}
	RampCarbon   = Ramp{"#EDF8E9", "#A1D99B", "#41AB5D", "#005A32"}
	RampDiverge  = Ramp{"#2166AC", "#F7F7F7", "#B2182B"}
)

var ramps = map[string]Ramp{
	"fire_risk": RampFireRisk,
	"carbon":    RampCarbon,
	"diverge":   RampDiverge,
}

// RampByName looks up a built-in ramp.
func RampByName(name string) (Ramp, bool) {
	r, ok := ramps[name]
	return r, ok
}

var errShortRamp = errors.New("ramp needs at least two colors")

// Expression returns a MapLibre "interpolate" expression mapping input over
// [lo, hi] to the ramp colors.
func (r Ramp) Expression(input any, lo, hi float64) ([]any, error) {
	if len(r) < 2 {
		return nil, errShortRamp
	}
	if !(hi > lo) {
		return nil, fmt.Errorf("empty value range [%v, %v]", lo, hi)
	}
	for _, c := range r {
		if _, err := ParseHex(c); err != nil {
			return nil, err
		}
	}

	expr := []any{"interpolate", []any{"linear"}, input}
	step := (hi - lo) / float64(len(r)-1)
	for i, c := range r {
		expr = append(expr, lo+step*float64(i), c)
	}
	return expr, nil
}

// At returns the color for v over [lo, hi], clamping outside values.
func (r Ramp) At(v, lo, hi float64) (string, error) {
	if len(r) < 2 {
		return "", errShortRamp
	}
	if !(hi > lo) {
		return r[0], nil
	}

	t := (v - lo) / (hi - lo)
	if math.IsNaN(t) {
		t = 0
	}
	t = math.Max(0, math.Min(1, t))

	pos := t * float64(len(r)-1)
	i := int(math.Floor(pos))
	if i >= len(r)-1 {
		i = len(r) - 2
	}

	a, err := ParseHex(r[i])
	if err != nil {
		return "", err
	}
	b, err := ParseHex(r[i+1])
	if err != nil {
		return "", err
	}

	return FormatHex(mix(a, b, pos-float64(i))), nil
}

// ParseHex reads #RGB or #RRGGBB.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}

	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}

	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// FormatHex writes #RRGGBB in upper case.
func FormatHex(c color.RGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func mix(a, b color.RGBA, t float64) color.RGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: 0xff}
}
