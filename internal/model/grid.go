package model

import "github.com/paulmach/orb"

// Grid dimension limits. A scan never probes fewer than 9 or more than 49 cells.
const (
	MinGridSize     = 3
	MaxGridSize     = 7
	DefaultGridSize = 3

	DefaultRadiusMiles = 0.5
)

// LatLng is a WGS84 coordinate in signed degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Point returns the coordinate as an orb.Point, which is [lng, lat].
func (c LatLng) Point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// GridSpec describes the sampled square around a center.
type GridSpec struct {
	Center      LatLng  `json:"center"`
	Size        int     `json:"grid_size"`    // always odd, within [MinGridSize, MaxGridSize]
	RadiusMiles float64 `json:"radius_miles"` // center to outer ring
}

// Cells returns the number of coordinates a complete scan of the spec produces.
func (s GridSpec) Cells() int {
	return s.Size * s.Size
}

// Half returns floor(Size/2), the number of rings around the center cell.
func (s GridSpec) Half() int {
	return s.Size / 2
}

// SampleCoordinate is one grid cell. Row and Col are offsets from the center
// cell, ranging over [-Half, +Half]; positive Row is north, positive Col is east.
type SampleCoordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Row int     `json:"row"`
	Col int     `json:"col"`
}

// LatLng returns the cell position without its grid offsets.
func (c SampleCoordinate) LatLng() LatLng {
	return LatLng{Lat: c.Lat, Lng: c.Lng}
}

// IsCenter reports whether the coordinate is the grid's center cell.
func (c SampleCoordinate) IsCenter() bool {
	return c.Row == 0 && c.Col == 0
}
