package marker

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geotag/photomap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURI(t *testing.T) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 4, 3))
}

func route(id, uri string) core.MapRoute {
	return core.MapRoute{
		ID:        core.RecordID(id),
		Latitude:  37.7749,
		Longitude: -122.4194,
		ImageURI:  uri,
		Timestamp: "5/1/2024, 12:00:00 PM",
		Identity:  "u",
	}
}

// gatedLoader blocks every load until release is closed.
type gatedLoader struct {
	release chan struct{}
	mu      sync.Mutex
	calls   []string
}

func (g *gatedLoader) Load(ctx context.Context, uri string) (image.Image, error) {
	g.mu.Lock()
	g.calls = append(g.calls, uri)
	g.mu.Unlock()
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if uri == "bad" {
		return nil, core.ErrImageDecode
	}
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

func TestURILoader_DataURI(t *testing.T) {
	img, err := URILoader{}.Load(context.Background(), dataURI(t))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(4, 3), img.Bounds().Size())

	_, err = URILoader{}.Load(context.Background(), "data:image/jpeg;base64,bm90IGFuIGltYWdl")
	assert.ErrorIs(t, err, core.ErrImageDecode)

	_, err = URILoader{}.Load(context.Background(), "data:image/jpeg;base64")
	assert.ErrorIs(t, err, core.ErrImageDecode)

	_, err = URILoader{}.Load(context.Background(), "ftp://x")
	assert.ErrorIs(t, err, core.ErrImageDecode)
}

func TestURILoader_HTTP(t *testing.T) {
	body := pngBytes(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	img, err := URILoader{Client: srv.Client()}.Load(context.Background(), srv.URL+"/p.png")
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = URILoader{Client: srv.Client()}.Load(context.Background(), srv.URL+"/missing")
	assert.ErrorIs(t, err, core.ErrImageDecode)
}

func TestBoard_InitialPhases(t *testing.T) {
	g := &gatedLoader{release: make(chan struct{})}
	b := NewBoard(context.Background(), g, nil)
	defer b.Close()

	b.Track(route("a", "good"), route("b", ""))

	phase, ok := b.Phase("a")
	require.True(t, ok)
	assert.Equal(t, core.MarkerLoading, phase)

	phase, _ = b.Phase("b")
	assert.Equal(t, core.MarkerError, phase)

	close(g.release)
	require.NoError(t, b.Settle(context.Background()))

	phase, _ = b.Phase("a")
	assert.Equal(t, core.MarkerLoaded, phase)
	size, ok := b.ImageSize("a")
	require.True(t, ok)
	assert.Equal(t, image.Pt(2, 2), size)
}

func TestBoard_FailureIsIsolated(t *testing.T) {
	g := &gatedLoader{release: make(chan struct{})}
	b := NewBoard(context.Background(), g, nil)
	defer b.Close()

	b.Track(route("ok", "good"), route("broken", "bad"))
	close(g.release)
	require.NoError(t, b.Settle(context.Background()))

	ok, _ := b.Phase("ok")
	broken, _ := b.Phase("broken")
	assert.Equal(t, core.MarkerLoaded, ok)
	assert.Equal(t, core.MarkerError, broken)
}

func TestBoard_URIChangeReentersLoading(t *testing.T) {
	g := &gatedLoader{release: make(chan struct{})}
	close(g.release)
	b := NewBoard(context.Background(), g, nil)
	defer b.Close()

	var (
		mu     sync.Mutex
		phases []core.MarkerPhase
	)
	b.OnChange(func(id core.RecordID, p core.MarkerPhase) {
		mu.Lock()
		phases = append(phases, p)
		mu.Unlock()
	})

	b.Track(route("a", "bad"))
	require.NoError(t, b.Settle(context.Background()))
	b.Track(route("a", "bad")) // same uri, no reload
	require.NoError(t, b.Settle(context.Background()))
	b.Track(route("a", "good"))
	require.NoError(t, b.Settle(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []core.MarkerPhase{core.MarkerLoading, core.MarkerError, core.MarkerLoading, core.MarkerLoaded}, phases)
	assert.Len(t, g.calls, 2)
}

func TestBoard_RetrackDuringLoad(t *testing.T) {
	g := &gatedLoader{release: make(chan struct{})}
	b := NewBoard(context.Background(), g, nil)
	defer b.Close()

	b.Track(route("a", "good"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				r := route("a", "good")
				r.Identity = fmt.Sprintf("u%d-%d", i, j)
				b.Track(r)
			}
		}(i)
	}
	wg.Wait()
	close(g.release)
	require.NoError(t, b.Settle(context.Background()))

	phase, ok := b.Phase("a")
	require.True(t, ok)
	assert.Equal(t, core.MarkerLoaded, phase)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, []string{"good"}, g.calls)
}

func TestBoard_CloseCancelsLoads(t *testing.T) {
	g := &gatedLoader{release: make(chan struct{})}
	b := NewBoard(context.Background(), g, nil)

	b.Track(route("a", "good"))
	done := make(chan struct{})
	go func() {
		b.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close did not cancel the load")
	}

	phase, _ := b.Phase("a")
	assert.Equal(t, core.MarkerLoading, phase)

	b.Track(route("c", "good"))
	_, ok := b.Phase("c")
	assert.False(t, ok)
}

func TestBoard_SyncDropsMissing(t *testing.T) {
	loader := LoaderFunc(func(context.Context, string) (image.Image, error) {
		return nil, errors.New("nope")
	})
	b := NewBoard(context.Background(), loader, nil)
	defer b.Close()

	b.Sync([]core.MapRoute{route("a", "x"), route("b", "y")})
	b.Sync([]core.MapRoute{route("b", "y")})
	require.NoError(t, b.Settle(context.Background()))

	_, ok := b.Phase("a")
	assert.False(t, ok)
	phase, ok := b.Phase("b")
	assert.True(t, ok)
	assert.Equal(t, core.MarkerError, phase)
}

func TestRender(t *testing.T) {
	r := route("a", "data:image/jpeg;base64,xx")

	loaded := Render(r, core.MarkerLoaded)
	assert.Equal(t, BadgeFrame, loaded.Badge.Frame)
	assert.Equal(t, BadgeImage, loaded.Badge.Image)
	assert.Equal(t, r.ImageURI, loaded.Badge.ImageURI)
	assert.Empty(t, loaded.Badge.Glyph)
	assert.Equal(t, "37.7749, -122.4194", loaded.Callout.Coordinates)
	assert.Equal(t, r.Timestamp, loaded.Callout.Timestamp)
	assert.Equal(t, core.MarkerLoaded, loaded.MarkerPhase())

	loading := Render(r, core.MarkerLoading)
	assert.True(t, loading.Badge.Spinner)
	assert.Equal(t, r.ImageURI, loading.Callout.ImageURI)

	failed := Render(r, core.MarkerError)
	assert.Equal(t, Placeholder, failed.Badge.Glyph)
	assert.Equal(t, Placeholder, failed.Callout.Glyph)
	assert.Equal(t, "37.7749, -122.4194", failed.Callout.Coordinates)
	assert.Equal(t, "error", failed.Phase)
}

func TestBoard_Scene(t *testing.T) {
	b := NewBoard(context.Background(), URILoader{}, nil)
	defer b.Close()

	b.Track(route("a", dataURI(t)))
	require.NoError(t, b.Settle(context.Background()))

	scene, err := b.Scene("a")
	require.NoError(t, err)
	assert.Equal(t, core.RecordID("a"), scene.Selected)
	assert.Equal(t, 37.7749, scene.Region.Center.Latitude)
	assert.Equal(t, 0.01, scene.Region.LatitudeDelta)
	assert.Equal(t, 0.01, scene.Region.LongitudeDelta)
	require.Len(t, scene.Markers, 1)
	assert.Equal(t, "loaded", scene.Markers[0].Phase)

	_, err = b.Scene("nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
