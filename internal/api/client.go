// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/geotag/photomap/internal/marker"
	"github.com/geotag/photomap/pkg/core"
	"github.com/geotag/photomap/pkg/streaming"
)

// StatusError is a non-success response from the map feed server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Message)
}

// Client talks to a remote photomap server.
type Client struct {
	baseURL    string
	secret     string
	httpClient *http.Client

	// feedBackoff overrides the first reconnect delay of feeds.
	feedBackoff time.Duration
}

// New creates a new API client.
func New(baseURL, secret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Healthcheck checks if the server is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// ListPhotos fetches the collection, newest first, without image payloads.
func (c *Client) ListPhotos(ctx context.Context) (streaming.SnapshotPayload, error) {
	var snap streaming.SnapshotPayload
	err := c.getJSON(ctx, "/api/photos", &snap)
	return snap, err
}

// GetPhoto fetches one record with its image.
func (c *Client) GetPhoto(ctx context.Context, id core.RecordID) (streaming.PhotoDetail, error) {
	var detail streaming.PhotoDetail
	err := c.getJSON(ctx, "/api/photos/"+url.PathEscape(string(id)), &detail)
	return detail, err
}

// Scene fetches the rendered map scene for a record.
func (c *Client) Scene(ctx context.Context, id core.RecordID) (marker.Scene, error) {
	var scene marker.Scene
	err := c.getJSON(ctx, "/api/photos/"+url.PathEscape(string(id))+"/scene", &scene)
	return scene, err
}

// Append uploads record so the client can stand in for a local store.
// The server assigns the id and timestamp; collection must be the one the
// server serves.
func (c *Client) Append(ctx context.Context, _ string, record core.PhotoRecord) (core.RecordID, error) {
	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, err)
	}
	data, err := base64.StdEncoding.DecodeString(record.ImageData)
	if err != nil {
		return "", fmt.Errorf("%w: decoding image: %v", core.ErrStoreWrite, err)
	}
	id, err := c.Upload(ctx, data, record.Location, record.CapturedBy)
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrStoreWrite, err)
	}
	return id, nil
}

// Upload sends image bytes and their geotag as a multipart form.
func (c *Client) Upload(ctx context.Context, image []byte, at core.Coords, uid string) (core.RecordID, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	// Form fields
	_ = writer.WriteField("secret", c.secret)
	_ = writer.WriteField("latitude", strconv.FormatFloat(at.Latitude, 'f', -1, 64))
	_ = writer.WriteField("longitude", strconv.FormatFloat(at.Longitude, 'f', -1, 64))
	_ = writer.WriteField("uid", uid)

	// File
	part, err := writer.CreateFormFile("file", "photo.jpg")
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("failed to write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/photos", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", statusError(resp)
	}
	var created struct {
		ID core.RecordID `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	return created.ID, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &body)

	se := &StatusError{Code: resp.StatusCode, Message: body.Error}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", core.ErrNotFound, se)
	}
	return se
}

// IsStatus reports whether err is a StatusError with code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
