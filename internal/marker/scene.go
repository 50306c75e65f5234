package marker

import (
	"fmt"

	"github.com/geotag/photomap/internal/geo"
	"github.com/geotag/photomap/pkg/core"
)

const (
	// BadgeFrame is the outer size of the thumbnail badge.
	BadgeFrame = 50
	// BadgeImage is the size of the image inside the badge.
	BadgeImage = 44
	// Placeholder is shown when there is no image to display.
	Placeholder = "📷"
)

// Badge is the thumbnail drawn above the pin.
type Badge struct {
	Frame    int    `json:"frame"`
	Image    int    `json:"image"`
	ImageURI string `json:"imageUri,omitempty"`
	Glyph    string `json:"glyph,omitempty"`
	Spinner  bool   `json:"spinner,omitempty"`
}

// Callout is the panel opened by tapping a marker.
type Callout struct {
	ImageURI    string `json:"imageUri,omitempty"`
	Glyph       string `json:"glyph,omitempty"`
	Timestamp   string `json:"timestamp"`
	Coordinates string `json:"coordinates"`
	Identity    string `json:"identity"`
}

// Marker is one rendered pin.
type Marker struct {
	ID      core.RecordID    `json:"id"`
	Coords  core.Coords      `json:"coords"`
	Phase   string           `json:"phase"`
	Badge   Badge            `json:"badge"`
	Callout Callout          `json:"callout"`
	phase   core.MarkerPhase
}

// MarkerPhase returns the typed phase.
func (m Marker) MarkerPhase() core.MarkerPhase { return m.phase }

// Scene is everything a map surface needs to draw.
type Scene struct {
	Region   geo.Region    `json:"region"`
	Selected core.RecordID `json:"selected"`
	Markers  []Marker      `json:"markers"`
}

// Render builds the marker for route at phase.
func Render(route core.MapRoute, phase core.MarkerPhase) Marker {
	m := Marker{
		ID:     route.ID,
		Coords: route.Coords(),
		Phase:  phase.String(),
		phase:  phase,
		Badge:  Badge{Frame: BadgeFrame, Image: BadgeImage},
		Callout: Callout{
			Timestamp:   route.Timestamp,
			Coordinates: geo.FormatCoords(route.Coords()),
			Identity:    route.Identity,
		},
	}

	switch phase {
	case core.MarkerLoaded:
		m.Badge.ImageURI = route.ImageURI
	case core.MarkerLoading:
		m.Badge.Spinner = true
	default:
		m.Badge.Glyph = Placeholder
	}

	if route.ImageURI != "" && phase != core.MarkerError {
		m.Callout.ImageURI = route.ImageURI
	} else {
		m.Callout.Glyph = Placeholder
	}
	return m
}

// Scene renders every tracked marker with the region centred on selected.
func (b *Board) Scene(selected core.RecordID) (Scene, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sel, ok := b.markers[selected]
	if !ok {
		return Scene{}, fmt.Errorf("marker %s: %w", selected, core.ErrNotFound)
	}

	s := Scene{
		Region:   geo.RegionAround(sel.route.Coords()),
		Selected: selected,
		Markers:  make([]Marker, 0, len(b.order)),
	}
	for _, id := range b.order {
		e := b.markers[id]
		s.Markers = append(s.Markers, Render(e.route, e.phase))
	}
	return s, nil
}
