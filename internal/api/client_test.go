// internal/api/client_test.go
package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geotag/photomap/internal/upload"
	"github.com/geotag/photomap/pkg/core"
)

// Compile-time check: the client can stand in for a local store.
var _ upload.Appender = (*Client)(nil)

func TestNew(t *testing.T) {
	c := New("http://localhost:8080", "secret123")

	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected baseURL=http://localhost:8080, got %s", c.baseURL)
	}
	if c.secret != "secret123" {
		t.Errorf("expected secret=secret123, got %s", c.secret)
	}
	if c.httpClient == nil {
		t.Error("httpClient is nil")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := New("http://localhost:8080/", "secret")
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "")
	if err := c.Healthcheck(context.Background()); err != nil {
		t.Errorf("Healthcheck failed: %v", err)
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	c := New("http://localhost:59999", "") // unlikely to be listening
	if err := c.Healthcheck(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "")
	if err := c.Healthcheck(context.Background()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestUpload_Success(t *testing.T) {
	var receivedSecret, receivedLat, receivedLng, receivedUID string
	var receivedFileContent []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/photos" {
			t.Errorf("expected path /api/photos, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}

		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("failed to parse multipart form: %v", err)
			return
		}

		receivedSecret = r.FormValue("secret")
		receivedLat = r.FormValue("latitude")
		receivedLng = r.FormValue("longitude")
		receivedUID = r.FormValue("uid")

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("failed to get file: %v", err)
			return
		}
		defer file.Close()
		receivedFileContent, _ = io.ReadAll(file)

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":"abc"}`)
	}))
	defer server.Close()

	c := New(server.URL, "mysecret")
	id, err := c.Upload(context.Background(), []byte("jpeg bytes"), core.Coords{Latitude: 12.9716, Longitude: 77.5946}, "u1")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if id != "abc" {
		t.Errorf("expected id=abc, got %s", id)
	}
	if receivedSecret != "mysecret" {
		t.Errorf("expected secret=mysecret, got %s", receivedSecret)
	}
	if receivedLat != "12.9716" || receivedLng != "77.5946" {
		t.Errorf("expected 12.9716,77.5946, got %s,%s", receivedLat, receivedLng)
	}
	if receivedUID != "u1" {
		t.Errorf("expected uid=u1, got %s", receivedUID)
	}
	if string(receivedFileContent) != "jpeg bytes" {
		t.Errorf("expected file content 'jpeg bytes', got '%s'", string(receivedFileContent))
	}
}

func TestUpload_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":"invalid secret"}`)
	}))
	defer server.Close()

	c := New(server.URL, "wrong-secret")
	_, err := c.Upload(context.Background(), []byte("x"), core.Coords{}, "")
	if !IsStatus(err, http.StatusForbidden) {
		t.Fatalf("expected 403 status error, got %v", err)
	}
	var se *StatusError
	if errors.As(err, &se) && se.Message != "invalid secret" {
		t.Errorf("expected message 'invalid secret', got %q", se.Message)
	}
}

func TestAppend_WrapsStoreWrite(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(server.URL, "")
	rec := core.PhotoRecord{ImageData: base64.StdEncoding.EncodeToString([]byte("img")), Location: core.Coords{Latitude: 1, Longitude: 2}}
	_, err := c.Append(context.Background(), core.DefaultCollection, rec)
	if !errors.Is(err, core.ErrStoreWrite) {
		t.Errorf("expected ErrStoreWrite, got %v", err)
	}

	_, err = c.Append(context.Background(), core.DefaultCollection, core.PhotoRecord{})
	if !errors.Is(err, core.ErrStoreWrite) {
		t.Errorf("expected ErrStoreWrite for empty record, got %v", err)
	}
}

func TestGetPhoto_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"photo not found"}`)
	}))
	defer server.Close()

	c := New(server.URL, "")
	_, err := c.GetPhoto(context.Background(), "missing")
	if !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if !IsStatus(err, http.StatusNotFound) {
		t.Errorf("expected 404 status error, got %v", err)
	}
}

func TestFeedURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/feed"},
		{"https://maps.example.com/photomap/", "wss://maps.example.com/photomap/feed"},
	}
	for _, tt := range tests {
		got, err := New(tt.base, "").FeedURL()
		if err != nil {
			t.Fatalf("FeedURL(%s): %v", tt.base, err)
		}
		if got != tt.want {
			t.Errorf("FeedURL(%s) = %s, want %s", tt.base, got, tt.want)
		}
	}
}
