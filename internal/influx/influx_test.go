package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/upload"
	"github.com/geotag/photomap/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(zerolog.Nop(), config.InfluxConfig{}, filepath.Join(t.TempDir(), "b.gz"))
	assert.Error(t, m.Connect(context.Background()))
	assert.Error(t, m.WritePoint(context.Background(), PointFor(upload.Attempt{}, time.Now())))
}

func TestConnect_UnreachableWritesBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "uploads.lp.gz")
	m := NewManager(zerolog.Nop(), config.InfluxConfig{
		Enabled:  true,
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "photomap",
		Bucket:   "uploads",
	}, backup)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.IsValid)

	m.RecordAttempt(ctx, upload.Attempt{Collection: "photos", ID: "abc", Bytes: 42, Duration: 1500 * time.Millisecond})
	m.RecordAttempt(ctx, upload.Attempt{Collection: "photos", Err: core.ErrStoreWrite})
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "\n\n")
	assert.True(t, strings.HasSuffix(string(raw), "\n"))
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "upload,collection=photos,outcome=success "))
	assert.Contains(t, lines[0], "bytes=42i")
	assert.Contains(t, lines[0], "duration_ms=1500i")
	assert.Contains(t, lines[1], "outcome=store_write")
}

func TestPointFor(t *testing.T) {
	at := time.Unix(1700000000, 0)
	p := PointFor(upload.Attempt{Collection: "photos", Err: errors.New("boom")}, at)

	assert.Equal(t, Measurement, p.Name())
	assert.Equal(t, at, p.Time())

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, "error", tags["outcome"])

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, "boom", fields["error"])
	assert.NotContains(t, fields, "id")
}
