// Package media acquires a pending image from the camera or the gallery.
package media

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geotag/photomap/internal/notify"
	"github.com/geotag/photomap/pkg/core"
)

// ErrCancelled is returned by providers when the user backs out. It is
// never surfaced to the user.
var ErrCancelled = errors.New("selection cancelled")

// Camera captures a new photo.
type Camera interface {
	Capture(ctx context.Context) (core.ImageRef, error)
}

// Gallery picks an existing photo.
type Gallery interface {
	Pick(ctx context.Context) (core.ImageRef, error)
}

// Permissions is the subset of the permission gate media needs.
type Permissions interface {
	RequestCamera(ctx context.Context) bool
}

// Sink receives the selected image.
type Sink interface {
	SetImage(core.ImageRef)
	ClearImage()
}

// Outcome of a selection attempt.
type Outcome int

const (
	Selected Outcome = iota
	Cancelled
	Denied
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Selected:
		return "selected"
	case Cancelled:
		return "cancelled"
	case Denied:
		return "denied"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Dependencies holds the acquirer collaborators. Gallery, Notifier and
// Logger are optional.
type Dependencies struct {
	Permissions Permissions
	Camera      Camera
	Gallery     Gallery
	Sink        Sink
	Notifier    notify.Notifier
	Logger      *slog.Logger
}

// Acquirer writes a selection into the session only when one was made.
type Acquirer struct {
	deps Dependencies
}

// New creates an acquirer.
func New(deps Dependencies) *Acquirer {
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Acquirer{deps: deps}
}

// CaptureFromCamera requires camera permission, then captures.
func (a *Acquirer) CaptureFromCamera(ctx context.Context) (core.ImageRef, Outcome) {
	if !a.deps.Permissions.RequestCamera(ctx) {
		if ctx.Err() != nil {
			return core.ImageRef{}, Cancelled
		}
		a.deps.Notifier.Failure("Permission denied", "Camera permission is required.")
		return core.ImageRef{}, Denied
	}
	if a.deps.Camera == nil {
		return core.ImageRef{}, Failed
	}

	ref, err := a.deps.Camera.Capture(ctx)
	return a.settle(ctx, "camera", ref, err)
}

// PickFromGallery picks without a permission check.
func (a *Acquirer) PickFromGallery(ctx context.Context) (core.ImageRef, Outcome) {
	if a.deps.Gallery == nil {
		return core.ImageRef{}, Failed
	}
	ref, err := a.deps.Gallery.Pick(ctx)
	return a.settle(ctx, "gallery", ref, err)
}

// Clear drops the pending image.
func (a *Acquirer) Clear() {
	a.deps.Sink.ClearImage()
}

func (a *Acquirer) settle(ctx context.Context, source string, ref core.ImageRef, err error) (core.ImageRef, Outcome) {
	switch {
	case err == nil && !ref.IsZero():
		a.deps.Sink.SetImage(ref)
		a.deps.Logger.Debug("Image selected", "source", source, "uri", ref.URI)
		return ref, Selected
	case err == nil, errors.Is(err, ErrCancelled), ctx.Err() != nil:
		return core.ImageRef{}, Cancelled
	default:
		// provider error codes are treated like a cancel for the session
		a.deps.Logger.Warn("Image selection failed", "source", source, "error", err)
		return core.ImageRef{}, Failed
	}
}
