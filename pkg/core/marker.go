// pkg/core/marker.go
package core

// MarkerPhase is the image-load state of a single map marker.
type MarkerPhase int

const (
	MarkerLoading MarkerPhase = iota
	MarkerLoaded
	MarkerError
)

func (p MarkerPhase) String() string {
	switch p {
	case MarkerLoading:
		return "loading"
	case MarkerLoaded:
		return "loaded"
	case MarkerError:
		return "error"
	default:
		return "unknown"
	}
}

// MapRoute carries the fields of a selected record into the map view.
type MapRoute struct {
	ID        RecordID `json:"id"`
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	ImageURI  string   `json:"imageUri"`
	Timestamp string   `json:"timestamp"`
	Identity  string   `json:"identity"`
}

// RouteFor builds the map route for a record.
func RouteFor(p PhotoRecord) MapRoute {
	return MapRoute{
		ID:        p.ID,
		Latitude:  p.Location.Latitude,
		Longitude: p.Location.Longitude,
		ImageURI:  p.DataURI(),
		Timestamp: p.FormattedTimestamp(),
		Identity:  p.Identity(),
	}
}

// Coords returns the route position.
func (r MapRoute) Coords() Coords {
	return Coords{Latitude: r.Latitude, Longitude: r.Longitude}
}
