package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/geotag/photomap/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// DefaultRegionDelta is the latitude/longitude span of a map centred on one photo.
const DefaultRegionDelta = 0.01

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Validate checks a fix against WGS84 ranges.
func Validate(c core.Coords) error {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		c.Latitude < -90 || c.Latitude > 90 ||
		c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("%w: %v", ErrInvalidCoordinates, c)
	}
	return nil
}

// CoordsFromString parses a "lat,lng" string.
func CoordsFromString(s string) (core.Coords, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return core.Coords{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.Coords{}, ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.Coords{}, ErrInvalidCoordinates
	}
	c := core.Coords{Latitude: lat, Longitude: lng}
	if err := Validate(c); err != nil {
		return core.Coords{}, err
	}
	return c, nil
}

// FormatCoords renders a fix with four decimals, as shown in marker callouts.
func FormatCoords(c core.Coords) string {
	return fmt.Sprintf("%.4f, %.4f", c.Latitude, c.Longitude)
}

// Point4326 returns the fix as a lon/lat point.
func Point4326(c core.Coords) (geom.Point, error) {
	if err := Validate(c); err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: c.Longitude, Y: c.Latitude},
		Type: geom.DimXY,
	})
}

// WebMercator projects a fix to EPSG:3857 for tile based map surfaces.
func WebMercator(c core.Coords) (geom.Point, error) {
	if err := Validate(c); err != nil {
		return geom.NewEmptyPoint(geom.DimXY), err
	}
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(c.Longitude, c.Latitude, 0)
	p, err := geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.DimXY,
	})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("projecting %v: %w", c, err)
	}
	return p, nil
}

// Region is the visible area of a map surface.
type Region struct {
	Center         core.Coords `json:"center"`
	LatitudeDelta  float64     `json:"latitudeDelta"`
	LongitudeDelta float64     `json:"longitudeDelta"`
}

// RegionAround centres a region on c with DefaultRegionDelta span.
func RegionAround(c core.Coords) Region {
	return Region{Center: c, LatitudeDelta: DefaultRegionDelta, LongitudeDelta: DefaultRegionDelta}
}

// Contains reports whether c falls inside the region.
func (r Region) Contains(c core.Coords) bool {
	return math.Abs(c.Latitude-r.Center.Latitude) <= r.LatitudeDelta/2 &&
		math.Abs(c.Longitude-r.Center.Longitude) <= r.LongitudeDelta/2
}

// Bounds returns the region outline as a closed lon/lat ring.
func (r Region) Bounds() (geom.LineString, error) {
	minX := r.Center.Longitude - r.LongitudeDelta/2
	maxX := r.Center.Longitude + r.LongitudeDelta/2
	minY := r.Center.Latitude - r.LatitudeDelta/2
	maxY := r.Center.Latitude + r.LatitudeDelta/2
	seq := geom.NewSequence([]float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}, geom.DimXY)
	ring, err := geom.NewLineString(seq)
	if err != nil {
		return geom.LineString{}, fmt.Errorf("region bounds: %w", err)
	}
	return ring, nil
}
