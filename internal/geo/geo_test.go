package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/geotag/photomap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordsFromString(t *testing.T) {
	c, err := CoordsFromString("12.9716, 77.5946")
	require.NoError(t, err)
	assert.Equal(t, core.Coords{Latitude: 12.9716, Longitude: 77.5946}, c)

	for _, bad := range []string{"", "12.9", "a,b", "1,2,3", "91,0", "0,-181"} {
		_, err := CoordsFromString(bad)
		assert.True(t, errors.Is(err, ErrInvalidCoordinates), "input %q", bad)
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(core.Coords{Latitude: -90, Longitude: 180}))
	assert.Error(t, Validate(core.Coords{Latitude: math.NaN()}))
	assert.Error(t, Validate(core.Coords{Latitude: 90.1}))
}

func TestFormatCoords(t *testing.T) {
	assert.Equal(t, "12.9716, 77.5946", FormatCoords(core.Coords{Latitude: 12.97159, Longitude: 77.59461}))
	assert.Equal(t, "-1.0000, 0.5000", FormatCoords(core.Coords{Latitude: -1, Longitude: 0.5}))
}

func TestPoint4326(t *testing.T) {
	p, err := Point4326(core.Coords{Latitude: 10, Longitude: 20})
	require.NoError(t, err)
	coords, ok := p.Coordinates()
	require.True(t, ok)
	assert.Equal(t, 20.0, coords.X)
	assert.Equal(t, 10.0, coords.Y)

	p, err = Point4326(core.Coords{Latitude: math.NaN(), Longitude: 20})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
	assert.True(t, p.IsEmpty())
}

func TestWebMercator(t *testing.T) {
	p, err := WebMercator(core.Coords{Latitude: 0, Longitude: 0})
	require.NoError(t, err)
	coords, ok := p.Coordinates()
	require.True(t, ok)
	assert.InDelta(t, 0, coords.X, 1e-6)
	assert.InDelta(t, 0, coords.Y, 1e-6)

	p, err = WebMercator(core.Coords{Latitude: 0, Longitude: 180})
	require.NoError(t, err)
	coords, _ = p.Coordinates()
	assert.InDelta(t, 20037508.34, coords.X, 1)

	_, err = WebMercator(core.Coords{Latitude: 100})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	p, err = WebMercator(core.Coords{Latitude: math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
	assert.True(t, p.IsEmpty())
}

func TestRegionAround(t *testing.T) {
	center := core.Coords{Latitude: 12.9716, Longitude: 77.5946}
	r := RegionAround(center)

	assert.Equal(t, 0.01, r.LatitudeDelta)
	assert.Equal(t, 0.01, r.LongitudeDelta)
	assert.True(t, r.Contains(center))
	assert.True(t, r.Contains(core.Coords{Latitude: 12.9756, Longitude: 77.5986}))
	assert.False(t, r.Contains(core.Coords{Latitude: 12.99, Longitude: 77.5946}))

	ring, err := r.Bounds()
	require.NoError(t, err)
	assert.True(t, ring.IsClosed())
	assert.Equal(t, 5, ring.Coordinates().Length())
}
