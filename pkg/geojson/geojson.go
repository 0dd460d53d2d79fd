// Package geojson renders resolved entities as a GeoJSON FeatureCollection.
//
// The output types are hand-rolled rather than orb geometries because the
// contract requires an optional elevation as a third coordinate, and orb
// points are strictly two-dimensional.
package geojson

import (
	"encoding/json"
	"math"

	"github.com/kass/go-georef/pkg/models"
)

// coordPrecision is the number of decimal places kept in output coordinates.
const coordPrecision = 5

// FeatureCollection is a standard GeoJSON FeatureCollection of Point features.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single GeoJSON feature.
type Feature struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   Geometry               `json:"geometry"`
}

// Geometry holds a Point geometry with [lng, lat, elevation?] coordinates.
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Export builds one Point feature per geo-resolved entity, in input order.
// Coordinates are rounded to 5 decimal places; elevation is included only
// when present and positive.
func Export(entities []*models.ImageEntity) *FeatureCollection {
	fc := &FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(entities)),
	}

	for _, e := range entities {
		if !e.HasGeo {
			continue
		}

		coords := []float64{roundTo(e.Lng, coordPrecision), roundTo(e.Lat, coordPrecision)}
		if e.Elevation > 0 {
			coords = append(coords, roundTo(e.Elevation, coordPrecision))
		}

		props := map[string]interface{}{
			"id":     e.ID,
			"name":   e.Name,
			"type":   string(e.Kind),
			"source": string(e.Origin),
		}
		if e.RouteID != "" {
			props["route"] = e.RouteID
		}
		for k, v := range e.Props {
			if _, taken := props[k]; !taken {
				props[k] = v
			}
		}

		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Properties: props,
			Geometry:   Geometry{Type: "Point", Coordinates: coords},
		})
	}
	return fc
}

// Marshal renders the collection as indented JSON.
func (fc *FeatureCollection) Marshal() ([]byte, error) {
	return json.MarshalIndent(fc, "", "  ")
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
