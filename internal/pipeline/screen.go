package pipeline

import (
	"github.com/geotag/photomap/internal/location"
	"github.com/geotag/photomap/pkg/core"
)

// Screen is the rendered capture screen.
type Screen struct {
	Image          *core.ImageRef
	LocationStatus string
	CanRetry       bool
	Uploading      bool
	CanUpload      bool
	UploadLabel    string
}

// Screen renders the current session and location state.
func (m *Manager) Screen() Screen {
	st := m.deps.Session.State()
	loc := m.deps.Location.State()

	s := Screen{
		Image:          st.Image,
		LocationStatus: loc.Status(),
		CanRetry:       loc.CanRetry(),
		Uploading:      st.Uploading,
		CanUpload:      st.CanUpload,
		UploadLabel:    "Upload",
	}
	if st.Uploading {
		s.UploadLabel = "Uploading..."
	}
	// a fix kept from an earlier visit counts as acquired
	if loc.Phase == location.Idle && st.Location != nil {
		s.LocationStatus = "Location: " + st.Location.String()
		s.CanRetry = false
	}
	return s
}
