package core

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPhotoRecord_Validate(t *testing.T) {
	loc := Coords{Latitude: 12.9716, Longitude: 77.5946}

	tests := []struct {
		name    string
		record  PhotoRecord
		wantErr error
	}{
		{"complete", PhotoRecord{ImageData: "abc", Location: loc}, nil},
		{"missing image", PhotoRecord{Location: loc}, ErrMissingImage},
		{"longitude out of range", PhotoRecord{ImageData: "abc", Location: Coords{Latitude: 1, Longitude: 181}}, ErrMissingLocation},
		{"latitude out of range", PhotoRecord{ImageData: "abc", Location: Coords{Latitude: 91, Longitude: 1}}, ErrMissingLocation},
		{"latitude NaN", PhotoRecord{ImageData: "abc", Location: Coords{Latitude: math.NaN(), Longitude: 1}}, ErrMissingLocation},
		{"longitude NaN", PhotoRecord{ImageData: "abc", Location: Coords{Latitude: 1, Longitude: math.NaN()}}, ErrMissingLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestPhotoRecord_DisplayFields(t *testing.T) {
	p := PhotoRecord{ID: "p1", ImageData: "QUJD", Location: Coords{Latitude: 1.23456, Longitude: -2.5}}

	assert.Equal(t, "data:image/jpeg;base64,QUJD", p.DataURI())
	assert.Equal(t, "N/A", p.FormattedTimestamp())
	assert.Equal(t, AnonymousIdentity, p.Identity())
	assert.Equal(t, "1.2346, -2.5000", p.Location.String())

	p.CreatedAt = time.Date(2024, 3, 5, 14, 7, 9, 0, time.Local)
	assert.Equal(t, "3/5/2024, 2:07:09 PM", p.FormattedTimestamp())

	assert.Empty(t, PhotoRecord{}.DataURI())
}

func TestCountLabel(t *testing.T) {
	assert.Equal(t, "0 photos", CountLabel(0))
	assert.Equal(t, "1 photo", CountLabel(1))
	assert.Equal(t, "12 photos", CountLabel(12))
}

func TestRouteFor(t *testing.T) {
	p := PhotoRecord{ID: "p1", ImageData: "QUJD", Location: Coords{Latitude: 10, Longitude: 20}, CapturedBy: "u1"}
	r := RouteFor(p)

	assert.Equal(t, RecordID("p1"), r.ID)
	assert.Equal(t, 10.0, r.Latitude)
	assert.Equal(t, 20.0, r.Longitude)
	assert.Equal(t, p.DataURI(), r.ImageURI)
	assert.Equal(t, "N/A", r.Timestamp)
	assert.Equal(t, "u1", r.Identity)
	assert.Equal(t, p.Location, r.Coords())
}
