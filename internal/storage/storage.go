// internal/storage/storage.go
package storage

import (
	"context"
	"sort"

	"github.com/geotag/photomap/pkg/core"
)

// Unsubscribe stops a live query. It is safe to call more than once.
type Unsubscribe func()

// OrderBy describes how a collection snapshot is sorted.
type OrderBy struct {
	Field      string
	Descending bool
}

// NewestFirst orders by createdAt descending; ties are broken by id ascending.
var NewestFirst = OrderBy{Field: "createdAt", Descending: true}

// Backend is the document store capability every implementation must satisfy.
// Append assigns the record id and createdAt at write time.
type Backend interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error

	Append(ctx context.Context, collection string, record core.PhotoRecord) (core.RecordID, error)
	Query(ctx context.Context, collection string, order OrderBy) ([]core.PhotoRecord, error)

	// Subscribe delivers a full snapshot right away and after every change
	// until the returned Unsubscribe is called or ctx is done.
	Subscribe(ctx context.Context, collection string, order OrderBy, onChange func([]core.PhotoRecord)) (Unsubscribe, error)
}

// Sort orders records in place. Records without a server timestamp sort
// first under a descending order, the way a pending write shows up on top.
func Sort(records []core.PhotoRecord, order OrderBy) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if order.Descending {
				if a.CreatedAt.IsZero() || b.CreatedAt.IsZero() {
					return a.CreatedAt.IsZero()
				}
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Sorted returns a sorted copy of records.
func Sorted(records []core.PhotoRecord, order OrderBy) []core.PhotoRecord {
	out := make([]core.PhotoRecord, len(records))
	copy(out, records)
	Sort(out, order)
	return out
}
