package device

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/geotag/photomap/internal/blob"
	"github.com/geotag/photomap/internal/media"
	"github.com/geotag/photomap/pkg/core"
)

// GalleryPrefix is the key prefix gallery images are stored under.
const GalleryPrefix = "gallery/"

// Chooser picks one entry from the gallery. ok=false means cancelled.
type Chooser func(items []blob.Info) (index int, ok bool)

// Newest chooses the most recently stored image.
func Newest(items []blob.Info) (int, bool) {
	if len(items) == 0 {
		return 0, false
	}
	best := 0
	for i, it := range items {
		if it.LastModified.After(items[best].LastModified) {
			best = i
		}
	}
	return best, true
}

// BlobGallery picks images out of a blob store.
type BlobGallery struct {
	Store  blob.Store
	Choose Chooser
}

var _ media.Gallery = (*BlobGallery)(nil)

// Pick implements media.Gallery. An empty gallery is a cancelled pick.
func (g *BlobGallery) Pick(ctx context.Context) (core.ImageRef, error) {
	items, err := g.Store.List(ctx, GalleryPrefix)
	if err != nil {
		return core.ImageRef{}, fmt.Errorf("listing gallery: %w", err)
	}
	if len(items) == 0 {
		return core.ImageRef{}, media.ErrCancelled
	}

	choose := g.Choose
	if choose == nil {
		choose = Newest
	}
	i, ok := choose(items)
	if !ok || i < 0 || i >= len(items) {
		return core.ImageRef{}, media.ErrCancelled
	}
	return blob.Ref(items[i].Key), nil
}

// AddToGallery copies a local image into the gallery and returns its key.
func AddToGallery(ctx context.Context, store blob.Store, file string) (blob.Info, error) {
	if !IsImage(file) {
		return blob.Info{}, fmt.Errorf("%s: not a jpeg or png image", file)
	}
	f, err := os.Open(file)
	if err != nil {
		return blob.Info{}, err
	}
	defer f.Close()

	key := path.Join(GalleryPrefix, filepath.Base(file))
	info, err := store.Put(ctx, key, f, blob.PutOptions{
		ContentType: mime.TypeByExtension(filepath.Ext(file)),
		Metadata:    map[string]string{"source": filepath.Base(file)},
	})
	if err != nil {
		return blob.Info{}, fmt.Errorf("adding %s: %w", file, err)
	}
	return info, nil
}
