// Package upload turns a completed capture session into a stored PhotoRecord.
package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geotag/photomap/internal/auth"
	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/media"
	"github.com/geotag/photomap/internal/notify"
	"github.com/geotag/photomap/internal/session"
	"github.com/geotag/photomap/pkg/core"
)

// Session is the part of a capture session the coordinator drives.
type Session interface {
	BeginUpload() (session.Snapshot, error)
	EndUpload(success bool)
}

// Appender is the write side of a document store.
type Appender interface {
	Append(ctx context.Context, collection string, record core.PhotoRecord) (core.RecordID, error)
}

// Navigator moves the UI to the collection view after a successful upload.
type Navigator interface {
	ToCollection()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

// ToCollection calls f.
func (f NavigatorFunc) ToCollection() { f() }

// Policy controls identity handling. The zero value accepts anonymous
// uploads under core.AnonymousIdentity.
type Policy struct {
	RequireIdentity bool
	// DefaultIdentity replaces the anonymous sentinel when set.
	DefaultIdentity string
}

// PolicyFromConfig maps the identity section of the config.
func PolicyFromConfig(cfg config.IdentityConfig) Policy {
	return Policy{RequireIdentity: !cfg.AllowAnonymous, DefaultIdentity: cfg.Default}
}

// Dependencies holds the coordinator collaborators. Auth, Navigator,
// Notifier, Telemetry and Logger are optional.
type Dependencies struct {
	Store      Appender
	Reader     media.Reader
	Auth       auth.Authenticator
	Navigator  Navigator
	Notifier   notify.Notifier
	Telemetry  Telemetry
	Logger     *slog.Logger
	Collection string
	Policy     Policy
	Now        func() time.Time
}

// Coordinator runs uploads. One coordinator may serve many sessions.
type Coordinator struct {
	deps Dependencies
}

// New creates a coordinator.
func New(deps Dependencies) *Coordinator {
	if deps.Collection == "" {
		deps.Collection = core.DefaultCollection
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	if deps.Telemetry == nil {
		deps.Telemetry = NopTelemetry{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Coordinator{deps: deps}
}

// Upload reads, encodes and appends the session's pending photo. Once the
// latch is taken the work is detached from ctx cancellation.
func (c *Coordinator) Upload(ctx context.Context, sess Session) (core.RecordID, error) {
	snap, err := sess.BeginUpload()
	if err != nil {
		return "", err
	}

	work := context.WithoutCancel(ctx)
	start := c.deps.Now()

	id, size, err := c.write(work, snap)

	attempt := Attempt{
		Collection: c.deps.Collection,
		ID:         id,
		Bytes:      size,
		Duration:   c.deps.Now().Sub(start),
		Err:        err,
	}
	c.deps.Telemetry.RecordAttempt(work, attempt)

	if err != nil {
		sess.EndUpload(false)
		c.deps.Logger.Error("Upload failed", "collection", c.deps.Collection, "error", err)
		c.deps.Notifier.Failure("Upload Failed", err.Error())
		return "", err
	}

	sess.EndUpload(true)
	c.deps.Logger.Info("Photo uploaded", "id", id, "bytes", size, "duration", attempt.Duration)
	c.deps.Notifier.Success("Upload Successful", "")
	if c.deps.Navigator != nil {
		c.deps.Navigator.ToCollection()
	}
	return id, nil
}

func (c *Coordinator) write(ctx context.Context, snap session.Snapshot) (core.RecordID, int, error) {
	identity, err := c.identity()
	if err != nil {
		return "", 0, err
	}

	data, err := c.deps.Reader.ReadImage(ctx, snap.Image)
	if err != nil {
		if !errors.Is(err, core.ErrImageRead) {
			err = fmt.Errorf("%w: %v", core.ErrImageRead, err)
		}
		return "", 0, err
	}
	if len(data) == 0 {
		return "", 0, fmt.Errorf("%w: %w", core.ErrImageRead, core.ErrMissingImage)
	}

	record := core.PhotoRecord{
		ImageData:  base64.StdEncoding.EncodeToString(data),
		Location:   snap.Location,
		CapturedBy: identity,
	}
	// any Appender may be plugged in, so partial records stop here
	if err := record.Validate(); err != nil {
		return "", len(data), err
	}

	id, err := c.deps.Store.Append(ctx, c.deps.Collection, record)
	if err != nil {
		if !errors.Is(err, core.ErrStoreWrite) {
			err = fmt.Errorf("%w: %v", core.ErrStoreWrite, err)
		}
		return "", len(data), err
	}
	return id, len(data), nil
}

func (c *Coordinator) identity() (string, error) {
	if c.deps.Auth != nil {
		if id, ok := c.deps.Auth.CurrentIdentity(); ok && id != "" {
			return id, nil
		}
	}
	if c.deps.Policy.RequireIdentity {
		return "", core.ErrUnauthenticated
	}
	if c.deps.Policy.DefaultIdentity != "" {
		return c.deps.Policy.DefaultIdentity, nil
	}
	return core.AnonymousIdentity, nil
}
