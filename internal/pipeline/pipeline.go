// Package pipeline wires the capture screen commands to the dispatcher.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geotag/photomap/internal/dispatcher"
	"github.com/geotag/photomap/internal/location"
	"github.com/geotag/photomap/internal/media"
	"github.com/geotag/photomap/internal/session"
	"github.com/geotag/photomap/internal/upload"
	"github.com/geotag/photomap/pkg/core"
)

// Commands understood by the capture pipeline.
const (
	CmdCaptureCamera   = ":CAPTURE:CAMERA:"
	CmdPickGallery     = ":PICK:GALLERY:"
	CmdAcquireLocation = ":LOCATION:ACQUIRE:"
	CmdUpload          = ":UPLOAD:"
	CmdClearImage      = ":IMAGE:CLEAR:"
)

// ErrMediaFailed is returned when the media provider reported an error.
var ErrMediaFailed = errors.New("media selection failed")

// Dependencies holds everything one capture screen needs.
type Dependencies struct {
	Session  *session.CaptureSession
	Location *location.Acquirer
	Media    *media.Acquirer
	Uploader *upload.Coordinator
	Logger   *slog.Logger
}

// Manager owns one capture screen visit.
type Manager struct {
	deps Dependencies
}

// NewManager creates a pipeline manager.
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{deps: deps}
}

// RegisterHandlers registers all capture commands with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Media selection - sync, the caller waits for the picker
	d.Register(CmdCaptureCamera, m.handleCapture, dispatcher.Logged())
	d.Register(CmdPickGallery, m.handlePick, dispatcher.Logged())
	d.Register(CmdClearImage, m.handleClear)

	d.Register(CmdAcquireLocation, m.handleLocation, dispatcher.Logged())

	// Upload - sync, the coordinator latch rejects a second submit
	d.Register(CmdUpload, m.handleUpload, dispatcher.Logged())
}

// Mount starts location acquisition the way the capture screen does on
// open. The returned channel yields the settled location state.
func (m *Manager) Mount(ctx context.Context, d *dispatcher.Dispatcher) <-chan location.State {
	out := make(chan location.State, 1)
	go func() {
		defer close(out)
		res, err := d.Dispatch(ctx, dispatcher.Event{Command: CmdAcquireLocation})
		if err != nil {
			m.deps.Logger.Warn("Location acquisition not started", "error", err)
			return
		}
		if st, ok := res.(location.State); ok {
			out <- st
		}
	}()
	return out
}

func (m *Manager) handleCapture(ctx context.Context, _ dispatcher.Event) (any, error) {
	ref, outcome := m.deps.Media.CaptureFromCamera(ctx)
	return mediaResult(ref, outcome)
}

func (m *Manager) handlePick(ctx context.Context, _ dispatcher.Event) (any, error) {
	ref, outcome := m.deps.Media.PickFromGallery(ctx)
	return mediaResult(ref, outcome)
}

func mediaResult(ref core.ImageRef, outcome media.Outcome) (any, error) {
	switch outcome {
	case media.Selected:
		return ref, nil
	case media.Denied:
		return nil, core.ErrPermissionDenied
	case media.Failed:
		return nil, ErrMediaFailed
	default:
		return nil, nil
	}
}

func (m *Manager) handleClear(_ context.Context, _ dispatcher.Event) (any, error) {
	m.deps.Media.Clear()
	return nil, nil
}

func (m *Manager) handleLocation(ctx context.Context, _ dispatcher.Event) (any, error) {
	st := m.deps.Location.Acquire(ctx)
	return st, nil
}

func (m *Manager) handleUpload(ctx context.Context, _ dispatcher.Event) (any, error) {
	id, err := m.deps.Uploader.Upload(ctx, m.deps.Session)
	if err != nil {
		return nil, err
	}
	return id, nil
}
