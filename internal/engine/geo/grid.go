package geo

import (
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/rendis/rankgrid/internal/model"
)

// DegreesPerMile approximates one mile as 0.0145 degrees of latitude near the
// equator. It is applied to longitude as well, without a cos(lat) correction,
// so grids stretch east-west toward the poles.
const DegreesPerMile = 0.0145

const metersPerMile = 1609.344

// NormalizeSize clamps a requested grid size to [MinGridSize, MaxGridSize] and
// rounds even sizes up to the next odd one, so a true center cell exists.
// 4 and 5 produce the same 5x5 grid, as do 6 and 7.
func NormalizeSize(size int) int {
	if size < model.MinGridSize {
		size = model.MinGridSize
	}
	if size > model.MaxGridSize {
		size = model.MaxGridSize
	}
	if size%2 == 0 {
		size++
	}
	return size
}

// NewSpec builds a normalized GridSpec.
func NewSpec(center model.LatLng, size int, radiusMiles float64) model.GridSpec {
	return model.GridSpec{
		Center:      center,
		Size:        NormalizeSize(size),
		RadiusMiles: radiusMiles,
	}
}

// StepDegrees returns the per-axis distance between adjacent cells.
func StepDegrees(spec model.GridSpec) float64 {
	half := NormalizeSize(spec.Size) / 2
	return spec.RadiusMiles * DegreesPerMile / float64(half)
}

// GenerateGrid returns the size x size sample coordinates around center,
// rows from south to north, columns from west to east within each row.
// Scanners and stored results rely on this order for index correlation.
func GenerateGrid(center model.LatLng, size int, radiusMiles float64) []model.SampleCoordinate {
	return Generate(NewSpec(center, size, radiusMiles))
}

// Generate is GenerateGrid for an existing spec.
func Generate(spec model.GridSpec) []model.SampleCoordinate {
	size := NormalizeSize(spec.Size)
	half := size / 2
	step := spec.RadiusMiles * DegreesPerMile / float64(half)

	coords := make([]model.SampleCoordinate, 0, size*size)
	for i := -half; i <= half; i++ {
		for j := -half; j <= half; j++ {
			coords = append(coords, model.SampleCoordinate{
				Lat: spec.Center.Lat + float64(i)*step,
				Lng: spec.Center.Lng + float64(j)*step,
				Row: i,
				Col: j,
			})
		}
	}
	return coords
}

// Bounds returns the bounding box of the given coordinates.
func Bounds(coords []model.SampleCoordinate) orb.Bound {
	if len(coords) == 0 {
		return orb.Bound{}
	}
	b := coords[0].LatLng().Point().Bound()
	for _, c := range coords[1:] {
		b = b.Extend(c.LatLng().Point())
	}
	return b
}

// DistanceMiles is the great-circle distance between two coordinates.
func DistanceMiles(a, b model.LatLng) float64 {
	return orbgeo.Distance(a.Point(), b.Point()) / metersPerMile
}
