package geojson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kass/go-georef/pkg/models"
)

func TestExport(t *testing.T) {
	entities := []*models.ImageEntity{
		{
			ID: "A-01", Name: "North marker", Kind: models.KindPoint, Origin: models.OriginImage,
			HasGeo: true, Lat: 37.774912345, Lng: -122.419434567,
		},
		{
			ID: "A-02", Kind: models.KindSpot, Origin: models.OriginGps,
			HasGeo: true, Lat: 37.78, Lng: -122.41, Elevation: 52.3,
		},
		{
			ID: "unresolved", Kind: models.KindPoint, Origin: models.OriginImage,
			HasPixel: true, ImageX: 1, ImageY: 2, // no position yet
		},
	}

	fc := Export(entities)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "FeatureCollection", fc.Type)

	first := fc.Features[0]
	assert.Equal(t, "Feature", first.Type)
	assert.Equal(t, "Point", first.Geometry.Type)
	assert.Equal(t, []float64{-122.41943, 37.77491}, first.Geometry.Coordinates)
	assert.Equal(t, "A-01", first.Properties["id"])
	assert.Equal(t, "North marker", first.Properties["name"])
	assert.Equal(t, "point", first.Properties["type"])
	assert.Equal(t, "image", first.Properties["source"])

	second := fc.Features[1]
	require.Len(t, second.Geometry.Coordinates, 3)
	assert.Equal(t, 52.3, second.Geometry.Coordinates[2])
	assert.Equal(t, "gps", second.Properties["source"])
}

func TestExportRoundsAllCoordinates(t *testing.T) {
	entities := []*models.ImageEntity{
		{ID: "peak", HasGeo: true, Lat: 46.852941234, Lng: 10.493812345, Elevation: 3312.4567891},
	}

	fc := Export(entities)
	require.Len(t, fc.Features, 1)
	// Elevation gets the same 5-decimal treatment as lng/lat.
	assert.Equal(t, []float64{10.49381, 46.85294, 3312.45679}, fc.Features[0].Geometry.Coordinates)
}

func TestExportElevationOnlyWhenPositive(t *testing.T) {
	entities := []*models.ImageEntity{
		{ID: "zero", HasGeo: true, Lat: 1, Lng: 2, Elevation: 0},
		{ID: "negative", HasGeo: true, Lat: 3, Lng: 4, Elevation: -12},
	}

	fc := Export(entities)
	require.Len(t, fc.Features, 2)
	assert.Len(t, fc.Features[0].Geometry.Coordinates, 2)
	assert.Len(t, fc.Features[1].Geometry.Coordinates, 2)
}

func TestExportRouteGrouping(t *testing.T) {
	entities := []*models.ImageEntity{
		{ID: "wp1", Kind: models.KindWaypoint, RouteID: "r1", Origin: models.OriginImage, HasGeo: true, Lat: 1, Lng: 2},
	}

	fc := Export(entities)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "r1", fc.Features[0].Properties["route"])
}

func TestMarshalValidJson(t *testing.T) {
	entities := []*models.ImageEntity{
		{ID: "A-01", Kind: models.KindPoint, Origin: models.OriginImage, HasGeo: true, Lat: 37.7749, Lng: -122.4194},
	}

	data, err := Export(entities).Marshal()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "FeatureCollection", decoded["type"])
}
