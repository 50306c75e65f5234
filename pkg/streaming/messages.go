// Package streaming defines the live map feed wire protocol.
package streaming

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/geotag/photomap/pkg/core"
)

// Message type constants matching the feed protocol.
const (
	TypeSubscribe = "subscribe"
	TypeSnapshot  = "snapshot"
	TypeAck       = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// SubscribePayload selects the collection a feed client wants.
type SubscribePayload struct {
	Collection string `json:"collection"`
}

// PhotoSummary is a collection item without its image payload.
type PhotoSummary struct {
	ID        core.RecordID `json:"id"`
	Location  core.Coords   `json:"location"`
	UID       string        `json:"uid"`
	Timestamp time.Time     `json:"timestamp"`
	Formatted string        `json:"formatted"`
	HasImage  bool          `json:"hasImage"`
}

// PhotoDetail is a single record with its image as a data URI.
type PhotoDetail struct {
	PhotoSummary
	ImageURI string `json:"imageUri"`
}

// Detail renders the full record.
func Detail(p core.PhotoRecord) PhotoDetail {
	return PhotoDetail{PhotoSummary: Summarize(p), ImageURI: p.DataURI()}
}

// SnapshotPayload is one full emission of a collection.
type SnapshotPayload struct {
	Collection string         `json:"collection"`
	Count      int            `json:"count"`
	Label      string         `json:"label"`
	Photos     []PhotoSummary `json:"photos"`
}

// Summarize strips the image payload from a record.
func Summarize(p core.PhotoRecord) PhotoSummary {
	return PhotoSummary{
		ID:        p.ID,
		Location:  p.Location,
		UID:       p.Identity(),
		Timestamp: p.CreatedAt,
		Formatted: p.FormattedTimestamp(),
		HasImage:  p.ImageData != "",
	}
}

// NewSnapshot summarizes records in their current order.
func NewSnapshot(collection string, records []core.PhotoRecord) SnapshotPayload {
	photos := make([]PhotoSummary, 0, len(records))
	for _, r := range records {
		photos = append(photos, Summarize(r))
	}
	return SnapshotPayload{
		Collection: collection,
		Count:      len(records),
		Label:      core.CountLabel(len(records)),
		Photos:     photos,
	}
}

// Marshal encodes payload inside a typed envelope.
func Marshal(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(Envelope{Type: msgType, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// MarshalAck encodes an acknowledgement of msgType.
func MarshalAck(msgType string) ([]byte, error) {
	return json.Marshal(AckMessage{Type: TypeAck, For: msgType})
}
