// Package convert maps between domain records and SQL rows.
package convert

import (
	"github.com/geotag/photomap/internal/model"
	"github.com/geotag/photomap/pkg/core"
	"gorm.io/datatypes"
)

// PhotoToGorm builds the row for record in collection.
func PhotoToGorm(collection string, record core.PhotoRecord) model.Photo {
	return model.Photo{
		ID:         string(record.ID),
		Collection: collection,
		ImageData:  record.ImageData,
		Location:   datatypes.NewJSONType(record.Location),
		CapturedBy: record.CapturedBy,
		CreatedAt:  record.CreatedAt,
	}
}

// PhotoToCore converts a row back into a domain record.
func PhotoToCore(row model.Photo) core.PhotoRecord {
	return core.PhotoRecord{
		ID:         core.RecordID(row.ID),
		ImageData:  row.ImageData,
		Location:   row.Location.Data(),
		CapturedBy: row.CapturedBy,
		CreatedAt:  row.CreatedAt,
	}
}

// PhotosToCore converts rows in order.
func PhotosToCore(rows []model.Photo) []core.PhotoRecord {
	out := make([]core.PhotoRecord, len(rows))
	for i, r := range rows {
		out[i] = PhotoToCore(r)
	}
	return out
}
