package model

import (
	"time"

	"github.com/geotag/photomap/pkg/core"
	"gorm.io/datatypes"
)

// Photo is the SQL row for a persisted photo record. Location keeps the
// nested {latitude, longitude} document shape in a JSON column.
type Photo struct {
	ID         string                        `json:"id" gorm:"primaryKey;size:36"`
	Collection string                        `json:"collection" gorm:"size:64;not null;index:idx_photos_collection_created,priority:1"`
	ImageData  string                        `json:"image" gorm:"type:text;not null"`
	Location   datatypes.JSONType[core.Coords] `json:"location" gorm:"not null"`
	CapturedBy string                        `json:"uid" gorm:"size:128;not null"`
	CreatedAt  time.Time                     `json:"timestamp" gorm:"not null;index:idx_photos_collection_created,priority:2"`
}

// TableName pins the table name independent of naming strategy.
func (*Photo) TableName() string {
	return "photos"
}

// DatabaseModels lists every model AutoMigrate manages.
var DatabaseModels = []any{
	&Photo{},
}
