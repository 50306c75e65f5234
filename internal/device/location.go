package device

import (
	"context"
	"fmt"
	"time"

	"github.com/geotag/photomap/internal/geo"
	"github.com/geotag/photomap/internal/location"
	"github.com/geotag/photomap/pkg/core"
)

// FixedLocation reports the same fix every time, after an optional delay.
type FixedLocation struct {
	Coords core.Coords
	Delay  time.Duration
}

var _ location.Provider = FixedLocation{}

// ParseFixedLocation builds a provider from "lat,lng".
func ParseFixedLocation(s string) (FixedLocation, error) {
	c, err := geo.CoordsFromString(s)
	if err != nil {
		return FixedLocation{}, fmt.Errorf("device location: %w", err)
	}
	return FixedLocation{Coords: c}, nil
}

// GetCurrentPosition implements location.Provider.
func (f FixedLocation) GetCurrentPosition(ctx context.Context, _ location.Options) (core.Coords, error) {
	if f.Delay > 0 {
		t := time.NewTimer(f.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return core.Coords{}, ctx.Err()
		}
	}
	return f.Coords, nil
}

// NoLocation always fails as unavailable.
type NoLocation struct{}

// GetCurrentPosition implements location.Provider.
func (NoLocation) GetCurrentPosition(context.Context, location.Options) (core.Coords, error) {
	return core.Coords{}, core.ErrLocationUnavailable
}
