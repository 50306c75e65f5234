// pkg/core/photo.go
package core

import (
	"fmt"
	"math"
	"time"
)

// AnonymousIdentity is recorded as capturedBy when no authenticated user exists.
const AnonymousIdentity = "test_user"

// DefaultCollection is the store collection photos are appended to.
const DefaultCollection = "photos"

// TimestampLayout mirrors an en-US locale date-time string.
const TimestampLayout = "1/2/2006, 3:04:05 PM"

// RecordID is a store-assigned photo identifier.
type RecordID string

// Coords is a WGS84 location fix in decimal degrees.
type Coords struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// String renders the fix at map callout precision.
func (c Coords) String() string {
	return fmt.Sprintf("%.4f, %.4f", c.Latitude, c.Longitude)
}

// ImageRef points at a pending image on the device (file path, file:// or blob:// URI).
type ImageRef struct {
	URI string
}

// IsZero reports whether the reference is empty.
func (r ImageRef) IsZero() bool {
	return r.URI == ""
}

// PhotoRecord is a persisted, geotagged photo. Records are immutable once written.
type PhotoRecord struct {
	ID         RecordID  `json:"id"`
	ImageData  string    `json:"image"`
	Location   Coords    `json:"location"`
	CapturedBy string    `json:"uid"`
	CreatedAt  time.Time `json:"timestamp"`
}

// Validate rejects partial records before they reach a store.
func (p PhotoRecord) Validate() error {
	if p.ImageData == "" {
		return ErrMissingImage
	}
	if math.IsNaN(p.Location.Latitude) || math.IsNaN(p.Location.Longitude) ||
		p.Location.Latitude < -90 || p.Location.Latitude > 90 ||
		p.Location.Longitude < -180 || p.Location.Longitude > 180 {
		return fmt.Errorf("%w: %v", ErrMissingLocation, p.Location)
	}
	return nil
}

// DataURI returns the image payload in a form displays can load directly.
func (p PhotoRecord) DataURI() string {
	if p.ImageData == "" {
		return ""
	}
	return "data:image/jpeg;base64," + p.ImageData
}

// FormattedTimestamp renders CreatedAt in local time, or "N/A" while the
// server timestamp is still pending.
func (p PhotoRecord) FormattedTimestamp() string {
	return FormatTimestamp(p.CreatedAt)
}

// FormatTimestamp renders t with TimestampLayout, "N/A" for the zero time.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Local().Format(TimestampLayout)
}

// Identity returns CapturedBy with the anonymous sentinel as fallback.
func (p PhotoRecord) Identity() string {
	if p.CapturedBy == "" {
		return AnonymousIdentity
	}
	return p.CapturedBy
}

// CountLabel renders the collection header, e.g. "1 photo" or "3 photos".
func CountLabel(n int) string {
	if n == 1 {
		return "1 photo"
	}
	return fmt.Sprintf("%d photos", n)
}
