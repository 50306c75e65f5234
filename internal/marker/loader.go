package marker

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for image.Decode
	_ "image/png"
	"io"
	"net/http"
	"strings"

	"github.com/geotag/photomap/pkg/core"
)

// maxRemoteImage caps how much of a remote image is read.
const maxRemoteImage = 16 << 20

// Loader fetches and decodes a marker image.
type Loader interface {
	Load(ctx context.Context, uri string) (image.Image, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, uri string) (image.Image, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, uri string) (image.Image, error) {
	return f(ctx, uri)
}

// URILoader decodes base64 data URIs and fetches http(s) URIs.
type URILoader struct {
	Client *http.Client
}

// Load implements Loader.
func (l URILoader) Load(ctx context.Context, uri string) (image.Image, error) {
	switch {
	case strings.HasPrefix(uri, "data:"):
		return decodeDataURI(uri)
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return l.fetch(ctx, uri)
	default:
		return nil, fmt.Errorf("%w: unsupported uri", core.ErrImageDecode)
	}
}

func (l URILoader) fetch(ctx context.Context, uri string) (image.Image, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImageDecode, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImageDecode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", core.ErrImageDecode, resp.StatusCode)
	}
	return decode(io.LimitReader(resp.Body, maxRemoteImage))
}

func decodeDataURI(uri string) (image.Image, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 {
		return nil, fmt.Errorf("%w: malformed data uri", core.ErrImageDecode)
	}
	meta, payload := uri[len("data:"):comma], uri[comma+1:]
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: data uri is not base64", core.ErrImageDecode)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImageDecode, err)
	}
	return decode(bytes.NewReader(raw))
}

func decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrImageDecode, err)
	}
	return img, nil
}
