package device

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/geotag/photomap/internal/media"
	"github.com/geotag/photomap/pkg/core"
)

// defaultSettle is how long a dropped file must stay quiet before it is taken.
const defaultSettle = 250 * time.Millisecond

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// IsImage reports whether path has an image extension.
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// FileRef returns a file:// reference for path.
func FileRef(path string) core.ImageRef {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return core.ImageRef{URI: (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()}
}

// DropFolderCamera "captures" the next image written into a watched
// directory, the way a tethered camera drops files on disk.
type DropFolderCamera struct {
	Dir    string
	Settle time.Duration
	Logger *slog.Logger
}

var _ media.Camera = (*DropFolderCamera)(nil)

// Capture waits for a new image. Cancelling ctx is reported as media.ErrCancelled.
func (c *DropFolderCamera) Capture(ctx context.Context) (core.ImageRef, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	settle := c.Settle
	if settle <= 0 {
		settle = defaultSettle
	}

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return core.ImageRef{}, fmt.Errorf("creating drop dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return core.ImageRef{}, fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(c.Dir); err != nil {
		return core.ImageRef{}, fmt.Errorf("watching %s: %w", c.Dir, err)
	}
	logger.Info("Waiting for a photo", "dir", c.Dir)

	var (
		candidate string
		timer     = time.NewTimer(time.Hour)
	)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return core.ImageRef{}, media.ErrCancelled

		case event, ok := <-w.Events:
			if !ok {
				return core.ImageRef{}, media.ErrCancelled
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !IsImage(event.Name) || strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			candidate = event.Name
			timer.Reset(settle)

		case err, ok := <-w.Errors:
			if !ok {
				return core.ImageRef{}, media.ErrCancelled
			}
			return core.ImageRef{}, fmt.Errorf("watching %s: %w", c.Dir, err)

		case <-timer.C:
			logger.Debug("Photo dropped", "path", candidate)
			return FileRef(candidate), nil
		}
	}
}

// StaticCamera returns the same image every time.
type StaticCamera struct {
	Path string
}

// Capture implements media.Camera.
func (s StaticCamera) Capture(ctx context.Context) (core.ImageRef, error) {
	if s.Path == "" {
		return core.ImageRef{}, media.ErrCancelled
	}
	if _, err := os.Stat(s.Path); err != nil {
		return core.ImageRef{}, fmt.Errorf("camera: %w", err)
	}
	return FileRef(s.Path), nil
}
