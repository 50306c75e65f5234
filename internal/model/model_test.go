package model

import (
	"encoding/json"
	"testing"

	"github.com/geotag/photomap/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "photos", (&Photo{}).TableName())
	assert.Len(t, DatabaseModels, 1)
}

func TestPhoto_LocationColumnValue(t *testing.T) {
	p := Photo{Location: datatypes.NewJSONType(core.Coords{Latitude: 1.5, Longitude: -2.25})}

	v, err := p.Location.Value()
	require.NoError(t, err)

	var raw []byte
	switch typed := v.(type) {
	case string:
		raw = []byte(typed)
	case []byte:
		raw = typed
	default:
		t.Fatalf("unexpected value type %T", v)
	}

	var decoded map[string]float64
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, map[string]float64{"latitude": 1.5, "longitude": -2.25}, decoded)
}
