package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/geotag/photomap/pkg/core"
)

// Scheme prefixes image references that point into a Store.
const Scheme = "blob"

const refPrefix = Scheme + "://"

// Ref returns the image reference for key.
func Ref(key string) core.ImageRef {
	return core.ImageRef{URI: refPrefix + key}
}

// KeyOf extracts the key from a blob reference.
func KeyOf(ref core.ImageRef) (string, bool) {
	if !strings.HasPrefix(ref.URI, refPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(ref.URI, refPrefix)
	return key, key != ""
}

// Reader resolves blob references against a Store.
type Reader struct {
	Store Store
}

// ReadImage loads the referenced blob.
func (r Reader) ReadImage(ctx context.Context, ref core.ImageRef) ([]byte, error) {
	key, ok := KeyOf(ref)
	if !ok {
		return nil, fmt.Errorf("%w: not a blob reference: %s", core.ErrImageRead, ref.URI)
	}
	_, rc, err := r.Store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImageRead, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImageRead, err)
	}
	return data, nil
}
