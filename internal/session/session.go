// Package session holds the ephemeral state of one capture screen visit:
// the pending image, the pending location fix and the upload latch.
package session

import (
	"sync"

	"github.com/geotag/photomap/pkg/core"
)

// Snapshot is a consistent read of the session taken when an upload begins.
type Snapshot struct {
	Image    core.ImageRef
	Location core.Coords
}

// CaptureSession is safe for concurrent use. The image is only written by
// media acquisition, the location only by location acquisition, and the upload
// coordinator owns the latch.
type CaptureSession struct {
	mu        sync.Mutex
	image     *core.ImageRef
	location  *core.Coords
	uploading bool
	listeners []func(State)
}

// State is a read-only view for rendering.
type State struct {
	Image     *core.ImageRef
	Location  *core.Coords
	Uploading bool
	CanUpload bool
}

// New creates an empty session.
func New() *CaptureSession {
	return &CaptureSession{}
}

// OnChange registers a listener called after every mutation.
func (s *CaptureSession) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetImage replaces the pending image. Last write wins.
func (s *CaptureSession) SetImage(ref core.ImageRef) {
	s.mutate(func() {
		r := ref
		s.image = &r
	})
}

// ClearImage drops the pending image.
func (s *CaptureSession) ClearImage() {
	s.mutate(func() { s.image = nil })
}

// SetLocation records the latest fix.
func (s *CaptureSession) SetLocation(c core.Coords) {
	s.mutate(func() {
		loc := c
		s.location = &loc
	})
}

// State returns the current view.
func (s *CaptureSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// CanUpload reports whether both inputs are present and no upload is in flight.
func (s *CaptureSession) CanUpload() bool {
	return s.State().CanUpload
}

// BeginUpload takes the latch and returns the inputs to upload.
func (s *CaptureSession) BeginUpload() (Snapshot, error) {
	var (
		snap Snapshot
		err  error
	)
	s.mutate(func() {
		switch {
		case s.uploading:
			err = core.ErrUploadInProgress
		case s.image == nil:
			err = core.ErrMissingImage
		case s.location == nil:
			err = core.ErrMissingLocation
		default:
			s.uploading = true
			snap = Snapshot{Image: *s.image, Location: *s.location}
		}
	})
	return snap, err
}

// EndUpload releases the latch. On success the pending image is cleared;
// the location fix is kept for the next capture.
func (s *CaptureSession) EndUpload(success bool) {
	s.mutate(func() {
		s.uploading = false
		if success {
			s.image = nil
		}
	})
}

func (s *CaptureSession) mutate(fn func()) {
	s.mu.Lock()
	fn()
	state := s.stateLocked()
	listeners := append([]func(State){}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

func (s *CaptureSession) stateLocked() State {
	st := State{Uploading: s.uploading}
	if s.image != nil {
		img := *s.image
		st.Image = &img
	}
	if s.location != nil {
		loc := *s.location
		st.Location = &loc
	}
	st.CanUpload = st.Image != nil && st.Location != nil && !s.uploading
	return st
}
