package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/geotag/photomap/pkg/core"
)

// Reader loads the bytes behind an image reference.
type Reader interface {
	ReadImage(ctx context.Context, ref core.ImageRef) ([]byte, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context, ref core.ImageRef) ([]byte, error)

// ReadImage calls f.
func (f ReaderFunc) ReadImage(ctx context.Context, ref core.ImageRef) ([]byte, error) {
	return f(ctx, ref)
}

// FileReader reads file:// URIs and bare paths from the local filesystem.
type FileReader struct{}

// ReadImage implements Reader.
func (FileReader) ReadImage(ctx context.Context, ref core.ImageRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ref.URI
	if strings.HasPrefix(path, "file://") {
		u, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrImageRead, err)
		}
		path = u.Path
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImageRead, err)
	}
	return data, nil
}

// Resolver dispatches to a Reader by URI scheme. References without a
// registered scheme fall back to the default reader.
type Resolver struct {
	mu       sync.RWMutex
	schemes  map[string]Reader
	fallback Reader
}

// NewResolver creates a resolver that reads local files by default.
func NewResolver() *Resolver {
	return &Resolver{
		schemes:  map[string]Reader{"file": FileReader{}},
		fallback: FileReader{},
	}
}

// Register binds a reader to scheme, e.g. "blob".
func (r *Resolver) Register(scheme string, reader Reader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes[scheme] = reader
}

// ReadImage implements Reader.
func (r *Resolver) ReadImage(ctx context.Context, ref core.ImageRef) ([]byte, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("%w: empty reference", core.ErrImageRead)
	}

	r.mu.RLock()
	reader := r.fallback
	if i := strings.Index(ref.URI, "://"); i > 0 {
		scheme := ref.URI[:i]
		rr, ok := r.schemes[scheme]
		if !ok {
			r.mu.RUnlock()
			return nil, fmt.Errorf("%w: unsupported scheme %q", core.ErrImageRead, scheme)
		}
		reader = rr
	}
	r.mu.RUnlock()

	return reader.ReadImage(ctx, ref)
}
