// Package quantize snaps query coordinates and radius onto a radius-dependent grid
// so that nearby queries share cache keys.
package quantize

import (
	"math"

	"github.com/mohammed-shakir/places-cache-gateway/internal/core/model"
)

const (
	MinRadiusBucket = 50
	MaxRadius       = 50000

	// fixed output precision, ~1.1m
	precision = 1e5

	// keeps longitude cells finite near the poles
	minCos = 0.01
)

type step struct {
	below int // radius upper bound (exclusive)
	deg   float64
}

// cell size grows with radius; last entry is the hard cap
var steps = []step{
	{below: 100, deg: 0.0001},
	{below: 500, deg: 0.0005},
	{below: 1000, deg: 0.001},
	{below: 5000, deg: 0.002},
	{below: 20000, deg: 0.005},
}

const capDeg = 0.01

// Quantize maps a query point and radius onto its grid cell.
func Quantize(lat, lng float64, radiusMeters int) model.QuantizedQuery {
	r := RoundRadius(radiusMeters)
	latCell := CellSizeDegrees(r)

	gLat := snap(lat, latCell)
	gLat = clamp(gLat, -90, 90)

	lngCell := LngCellSize(latCell, gLat)
	gLng := snap(lng, lngCell)
	gLng = clamp(gLng, -180, 180)

	return model.QuantizedQuery{
		GridLat:    round5(gLat),
		GridLng:    round5(gLng),
		GridRadius: r,
	}
}

// RoundRadius rounds up to the next doubling bucket (50, 100, 200, ...), capped at MaxRadius.
// The result is never below the input unless the input exceeds MaxRadius.
func RoundRadius(radiusMeters int) int {
	if radiusMeters <= MinRadiusBucket {
		return MinRadiusBucket
	}
	b := MinRadiusBucket
	for b < radiusMeters {
		b *= 2
		if b >= MaxRadius {
			return MaxRadius
		}
	}
	return b
}

// CellSizeDegrees returns the latitude cell size for a radius; monotone non-decreasing.
func CellSizeDegrees(radiusMeters int) float64 {
	for _, s := range steps {
		if radiusMeters < s.below {
			return s.deg
		}
	}
	return capDeg
}

// LngCellSize widens a latitude cell by 1/cos(lat).
func LngCellSize(latCell, lat float64) float64 {
	c := math.Cos(lat * math.Pi / 180)
	if c < minCos {
		c = minCos
	}
	return latCell / c
}

func snap(v, cell float64) float64 {
	return math.Round(v/cell) * cell
}

func round5(v float64) float64 {
	r := math.Round(v*precision) / precision
	if r == 0 {
		return 0
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
